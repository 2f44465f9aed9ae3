package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	textFile     string
	fromSnapshot string
	logFile      string
	tabCode      string
	newlineCode  string
	saveDir      string

	queryCmd = &cobra.Command{
		Use:   "query [commands file]",
		Short: "Run a batch of INSERT/DELETE/COUNT/LOCATE commands against an index",
		Long: `Runs one command per line against an index built from --text or restored
from --snapshot, writing a tab-separated log line per command and a
per-kind summary on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}
)

func init() {
	f := queryCmd.Flags()
	f.StringVar(&textFile, "text", "", "text file to index")
	f.StringVar(&fromSnapshot, "snapshot", "", "snapshot file to restore instead of --text")
	f.StringVar(&logFile, "log", "-", "query log output, - for stdout")
	f.StringVar(&tabCode, "tab-code", "", "operand sequence that stands for a tab")
	f.StringVar(&newlineCode, "newline-code", "", "operand sequence that stands for a newline")
	f.StringVar(&saveDir, "save", "", "write a snapshot of the final index into this directory")
	f.StringVar(&alphabetChars, "alphabet", "", "characters edits may use (default: the characters of the text)")
	f.StringVar(&endMarker, "end-marker", "0x01", "end marker byte, as a character or a number")
	f.IntVar(&undoDepth, "undo-depth", -1, "committed edits kept for undo, negative disables")
	queryCmd.MarkFlagsMutuallyExclusive("text", "snapshot")
	queryCmd.MarkFlagsOneRequired("text", "snapshot")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ix, err := openIndex()
	if err != nil {
		return err
	}
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	var out io.Writer = cmd.OutOrStdout()
	if logFile != "-" {
		f, err := os.Create(logFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)

	runner := query.NewRunner(ix, query.Parser{TabCode: tabCode, NewlineCode: newlineCode})
	res, runErr := runner.Run(cmd.Context(), in, w)
	if err := w.Flush(); err != nil {
		return errors.Join(runErr, err)
	}
	if res != nil {
		printSummary(cmd.ErrOrStderr(), res)
	}
	if runErr != nil {
		return runErr
	}

	if saveDir != "" {
		path, err := snapshot.NewWriter(saveDir).Write(ix.Snapshot())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "snapshot\t%s\n", path)
	}
	return nil
}

func openIndex() (*rindex.Index, error) {
	if fromSnapshot != "" {
		snap, _, err := snapshot.Load(fromSnapshot)
		if err != nil {
			return nil, err
		}
		return rindex.FromSnapshot(snap, rindex.Options{UndoDepth: undoDepth})
	}
	text, err := os.ReadFile(textFile)
	if err != nil {
		return nil, err
	}
	return buildIndex(text)
}

func printSummary(w io.Writer, res *query.BatchResults) {
	sum := res.Summarize()
	kinds := make([]query.Kind, 0, len(sum))
	for k := range sum {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCOUNT\tAVG\tMIN\tMAX\tREORDERS\tOCCURRENCES")
	for _, k := range kinds {
		s := sum[k]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%d\n", k, s.Count, s.Average(), s.MinTime, s.MaxTime, s.Reorders, s.Occurrences)
	}
	tw.Flush()
	fmt.Fprintf(w, "checksum\t%d\n", res.Checksum)
}
