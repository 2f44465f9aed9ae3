package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/tracing"
)

// maxBodyBytes bounds edit request bodies.
const maxBodyBytes = 1 << 20

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "rindex-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/rank", h.Rank)
	mux.HandleFunc("GET /api/v1/count", h.Count)
	mux.HandleFunc("GET /api/v1/locate", h.Locate)
	mux.HandleFunc("GET /api/v1/text", h.Text)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/insert", h.Insert)
	mux.HandleFunc("POST /api/v1/delete", h.Delete)
	mux.HandleFunc("POST /api/v1/undo", h.Undo)
	mux.HandleFunc("POST /api/v1/snapshot", h.Snapshot)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type RankResponse struct {
	Char  string `json:"c"`
	Pos   int    `json:"i"`
	Rank  int    `json:"rank"`
	Index uint64 `json:"version"`
}

func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := q.Get("c")
	if len(c) != 1 {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "parameter 'c' must be a single character"))
		return
	}
	i, err := intParam(q.Get("i"), "i")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.Rank(r.Context(), c[0], i)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RankResponse{Char: c, Pos: i, Rank: n, Index: h.svc.Version()})
}

type LocateResponse struct {
	Pattern  string `json:"pattern"`
	CacheHit bool   `json:"cache_hit"`
	rindex.QueryResults
}

func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, false)
}

func (h *Handler) Locate(w http.ResponseWriter, r *http.Request) {
	positions := true
	if v := r.URL.Query().Get("positions"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "positions must be a boolean"))
			return
		}
		positions = b
	}
	h.search(w, r, positions)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, positions bool) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	requestID, _ := logger.RequestID(ctx)
	ctx, span := tracing.Start(ctx, "search", requestID)
	defer func() {
		span.End()
		span.Log(log)
	}()

	pattern := r.URL.Query().Get("p")
	if pattern == "" {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'p' is required"))
		return
	}
	res, hit, err := h.svc.Locate(ctx, []byte(pattern), positions)
	if err != nil {
		log.Error("search failed", "pattern_length", len(pattern), "error", err)
		h.writeError(w, r, err)
		return
	}
	if positions {
		res.Positions = res.SortedPositions()
	}
	span.SetAttr("count", res.Count)
	span.SetAttr("cache_hit", hit)
	log.Info("search completed",
		"pattern_length", len(pattern),
		"count", res.Count,
		"positions", positions,
		"cache_hit", hit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, LocateResponse{Pattern: pattern, CacheHit: hit, QueryResults: res})
}

// Text returns the whole text, or the substring [pos, pos+len) when pos is
// given.
func (h *Handler) Text(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		text []byte
		err  error
	)
	if q.Get("pos") == "" {
		text, err = h.svc.Text(r.Context())
	} else {
		var pos, length int
		if pos, err = intParam(q.Get("pos"), "pos"); err == nil {
			length, err = intParam(q.Get("len"), "len")
		}
		if err == nil {
			text, err = h.svc.Extract(r.Context(), pos, length)
		}
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"text": string(text), "version": h.svc.Version()})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

type InsertRequest struct {
	Pos  int    `json:"pos"`
	Text string `json:"text"`
}

type DeleteRequest struct {
	Pos    int `json:"pos"`
	Length int `json:"length"`
}

type UndoRequest struct {
	Count int `json:"count"`
}

func (h *Handler) Insert(w http.ResponseWriter, r *http.Request) {
	var req InsertRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Text == "" {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "text must not be empty"))
		return
	}
	res, err := h.svc.Insert(r.Context(), req.Pos, []byte(req.Text))
	h.writeEdit(w, r, res, err)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	req := DeleteRequest{Length: 1}
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Length < 1 {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "length must be positive"))
		return
	}
	res, err := h.svc.Delete(r.Context(), req.Pos, req.Length)
	h.writeEdit(w, r, res, err)
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	req := UndoRequest{Count: 1}
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	res, err := h.svc.Undo(r.Context(), req.Count)
	h.writeEdit(w, r, res, err)
}

func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"path": path, "version": h.svc.Version()})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses, enabled := h.svc.CacheStats()
	if !enabled {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if _, _, enabled := h.svc.CacheStats(); !enabled {
		h.writeError(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.svc.InvalidateCache(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) writeEdit(w http.ResponseWriter, r *http.Request, res rindex.EditResult, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func intParam(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "parameter '%s' must be an integer", name)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Messages of server-side failures are
// not echoed to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
