package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/alphabet"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/snapshot"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/config"
	"github.com/spf13/cobra"
)

var (
	alphabetChars string
	endMarker     string
	snapshotDir   string
	undoDepth     int

	buildCmd = &cobra.Command{
		Use:   "build [text file]",
		Short: "Index a text file and write a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runBuild,
	}
)

func init() {
	buildCmd.Flags().StringVar(&alphabetChars, "alphabet", "", "characters edits may use (default: the characters of the text)")
	buildCmd.Flags().StringVar(&endMarker, "end-marker", "0x01", "end marker byte, as a character or a number")
	buildCmd.Flags().StringVarP(&snapshotDir, "out", "o", "data/snapshots", "snapshot directory")
}

func runBuild(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ix, err := buildIndex(text)
	if err != nil {
		return err
	}
	path, err := snapshot.NewWriter(snapshotDir).Write(ix.Snapshot())
	if err != nil {
		return err
	}
	st := ix.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "%s\ttext_length\t%d\truns\t%d\n", path, st.TextLength, st.Runs)
	return nil
}

func buildIndex(text []byte) (*rindex.Index, error) {
	end, err := config.IndexConfig{EndMarker: endMarker}.EndMarkerByte()
	if err != nil {
		return nil, err
	}
	var a *alphabet.Alphabet
	if alphabetChars != "" {
		a, err = alphabet.New([]byte(alphabetChars), end)
	} else {
		a, err = alphabet.FromText(text, end)
	}
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ix, err := rindex.New(text, a, rindex.Options{UndoDepth: undoDepth})
	if err != nil {
		return nil, err
	}
	slog.Info("index built", "text_length", len(text), "runs", ix.RunCount(), "duration", time.Since(start))
	return ix, nil
}
