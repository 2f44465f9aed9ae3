package main

import (
	"encoding/json"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	verify bool

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Work with snapshot files",
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect [snapshot file]",
		Short: "Print the header of a snapshot, and its statistics with --verify",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
)

func init() {
	inspectCmd.Flags().BoolVar(&verify, "verify", false, "load the snapshot and check the index invariants")
}

type inspectOutput struct {
	Path          string        `json:"path"`
	FormatVersion uint32        `json:"format_version"`
	EndMarker     byte          `json:"end_marker"`
	AlphabetSize  uint16        `json:"alphabet_size"`
	Runs          uint64        `json:"runs"`
	Samples       uint64        `json:"samples"`
	Edits         uint64        `json:"edits"`
	Version       uint64        `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	Stats         *rindex.Stats `json:"stats,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	h, err := snapshot.ReadHeader(args[0])
	if err != nil {
		return err
	}
	out := inspectOutput{
		Path:          args[0],
		FormatVersion: h.Version,
		EndMarker:     h.EndMarker,
		AlphabetSize:  h.AlphabetSize,
		Runs:          h.RunCount,
		Samples:       h.SampleCount,
		Edits:         h.Edits,
		Version:       h.IndexVersion,
		CreatedAt:     time.Unix(h.CreatedAt, 0).UTC(),
	}
	if verify {
		snap, _, err := snapshot.Load(args[0])
		if err != nil {
			return err
		}
		ix, err := rindex.FromSnapshot(snap, rindex.Options{})
		if err != nil {
			return err
		}
		if err := ix.Verify(); err != nil {
			return err
		}
		st := ix.Stats()
		out.Stats = &st
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
