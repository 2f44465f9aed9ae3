package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/replica"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/alphabet"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/server/cache"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/service"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/snapshot"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("rindex service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("rindex service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting rindex service", "port", cfg.Server.Port, "follow", cfg.Index.Follow)
	if cfg.Index.Follow && !cfg.Kafka.Enabled {
		return errors.New("follow mode requires kafka")
	}
	m := metrics.New(nil)
	checker := health.NewChecker()

	ix, err := loadIndex(cfg.Index)
	if err != nil {
		return err
	}
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d runs, version %d", ix.RunCount(), ix.Version())}
	})

	opts := service.Options{
		Snapshots: snapshot.NewWriter(cfg.Index.SnapshotDir),
		Metrics:   m,
		ReadOnly:  cfg.Index.Follow,
	}

	var jr *journal.Journal
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		jr = journal.New(db)
		if err := jr.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating journal: %w", err)
		}
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, locate caching disabled", "error", err)
		} else {
			defer rc.Close()
			opts.Cache = cache.New(rc, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(rc.Ping, true))
			slog.Info("locate cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL, "epoch", opts.Cache.Epoch())
		}
	}

	if cfg.Kafka.Enabled && !cfg.Index.Follow {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Edits)
		defer producer.Close()
		opts.Sinks = append(opts.Sinks, events.NewPublisher(producer, m))
		slog.Info("edit events enabled", "topic", cfg.Kafka.Topics.Edits)
	}
	if jr != nil && !cfg.Index.Follow {
		opts.Sinks = append(opts.Sinks, jr)
		opts.Compactor = jr
	}

	svc := service.New(ix, opts)

	if jr != nil && !cfg.Index.Follow {
		n, err := journal.Replay(ctx, jr, ix.Version(), func(ev events.EditEvent) error {
			return svc.Apply(ctx, ev)
		})
		if err != nil {
			return fmt.Errorf("replaying journal: %w", err)
		}
		slog.Info("journal replayed", "edits", n, "version", ix.Version())
	}

	mux := http.NewServeMux()
	handler.New(svc).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	var limiter *ratelimit.Limiter
	if cfg.Server.EditRateLimit > 0 {
		limiter = ratelimit.New(cfg.Server.EditRateLimit, time.Minute)
		chain = append(chain, middleware.RateLimit(limiter))
	}
	chain = append(chain, middleware.Timeout(cfg.Server.RequestTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, chain...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("rindex service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if limiter != nil {
		g.Go(func() error { return limiter.Run(ctx) })
	}
	if cfg.Metrics.Enabled {
		g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.Port) })
	}
	if cfg.Index.Follow {
		follower := replica.NewFollower(svc, m)
		g.Go(func() error { return follower.Run(ctx, cfg.Kafka) })
	}
	return g.Wait()
}

// loadIndex restores the newest snapshot, or indexes the initial text file
// when there is none.
func loadIndex(cfg config.IndexConfig) (*rindex.Index, error) {
	opts := rindex.Options{UndoDepth: cfg.UndoDepth}
	path, err := snapshot.Latest(cfg.SnapshotDir)
	if err != nil {
		return nil, err
	}
	if path != "" {
		snap, _, err := snapshot.Load(path)
		if err != nil {
			return nil, err
		}
		slog.Info("restoring snapshot", "path", path, "version", snap.Version, "runs", len(snap.Runs))
		return rindex.FromSnapshot(snap, opts)
	}

	end, err := cfg.EndMarkerByte()
	if err != nil {
		return nil, err
	}
	var text []byte
	if cfg.InitialTextFile != "" {
		if text, err = os.ReadFile(cfg.InitialTextFile); err != nil {
			return nil, fmt.Errorf("reading initial text: %w", err)
		}
	}
	var a *alphabet.Alphabet
	if cfg.Alphabet != "" {
		a, err = alphabet.New([]byte(cfg.Alphabet), end)
	} else {
		a, err = alphabet.FromText(text, end)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("building index", "text_length", len(text), "alphabet_size", a.Size()-1)
	return rindex.New(text, a, opts)
}
