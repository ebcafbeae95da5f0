package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinylyard/api/internal/services"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	ChunkSize  int
	StartIndex int
	Once       bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull the external catalog into the product store",
		Long: `Pull the external catalog into the product store.

With --chunk-size the command keeps requesting chunks until the run reports
isComplete. Use --once to process a single chunk.

Products missing from the catalog are hidden only by an unchunked pass that
starts at index 0 (no --chunk-size and no --start). Chunked passes never hide
anything, so follow them with a plain "catalogctl sync" when stale products
must be hidden.

Example:
  catalogctl sync
  catalogctl sync --chunk-size 100 --start 300 --once --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "items per chunk (0 processes the whole catalog)")
	cmd.Flags().IntVar(&opts.StartIndex, "start", 0, "catalog index to start from")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "stop after one chunk")

	return cmd
}

type syncOutput struct {
	Chunks []chunkOutput `json:"chunks"`
	Synced int           `json:"syncedCount"`
	Errors int           `json:"errorCount"`
	Hidden int           `json:"hiddenCount"`
	Done   bool          `json:"isComplete"`
	// Full reports whether a chunk ran the stale visibility pass.
	Full bool `json:"full"`
}

type chunkOutput struct {
	RunID          string   `json:"runId"`
	StartIndex     int      `json:"startIndex"`
	SyncedCount    int      `json:"syncedCount"`
	SkippedCount   int      `json:"skippedCount"`
	ErrorCount     int      `json:"errorCount"`
	TotalProcessed int      `json:"totalProcessed"`
	TotalProducts  int      `json:"totalProducts"`
	IsComplete     bool     `json:"isComplete"`
	NextChunk      *int     `json:"nextChunk"`
	HiddenCount    int      `json:"hiddenCount"`
	Message        string   `json:"message"`
	Log            []string `json:"log,omitempty"`
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	if opts.ChunkSize < 0 || opts.StartIndex < 0 {
		return NewExitError(ExitCommandError, "--chunk-size and --start must not be negative")
	}
	return withEngine(cmd, opts.RootOptions, func(ctx context.Context, engine Engine) error {
		if engine.Sync == nil {
			return NewExitError(ExitCommandError, "sync coordinator unavailable")
		}
		var out syncOutput
		start := opts.StartIndex
		for {
			report, err := engine.Sync.Run(ctx, services.SyncRequest{
				Direction:  services.SyncDirectionPull,
				ChunkSize:  opts.ChunkSize,
				StartIndex: start,
			})
			if err != nil {
				return syncExitError(err)
			}
			out.Chunks = append(out.Chunks, toChunkOutput(report, opts.Verbose))
			out.Synced += report.SyncedCount
			out.Errors += report.ErrorCount
			out.Hidden += report.HiddenCount
			out.Done = report.IsComplete
			out.Full = out.Full || report.Full
			if opts.Format != "json" {
				printChunk(cmd.OutOrStdout(), report, opts.Verbose)
			}
			if opts.Once || report.IsComplete || report.NextChunk == nil {
				break
			}
			start = *report.NextChunk
		}
		if opts.Format == "json" {
			return formatter{format: opts.Format, out: cmd.OutOrStdout()}.emit(out, nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "done: %d synced, %d errors, %d hidden, complete=%t\n", out.Synced, out.Errors, out.Hidden, out.Done)
		if out.Done && !out.Full {
			fmt.Fprintln(cmd.OutOrStdout(), "note: stale products were not hidden; run without --chunk-size and --start to hide them")
		}
		return nil
	})
}

func syncExitError(err error) error {
	var fetchErr *services.SyncFetchError
	switch {
	case errors.As(err, &fetchErr):
		return WrapExitError(ExitFailure, fmt.Sprintf("catalog fetch failed (run %s)", fetchErr.Report.RunID), fetchErr.Err)
	case errors.Is(err, services.ErrSyncInProgress):
		return WrapExitError(ExitFailure, "another sync holds the lock", err)
	case errors.Is(err, services.ErrSyncInvalidInput):
		return WrapExitError(ExitCommandError, "invalid sync request", err)
	default:
		return WrapExitError(ExitFailure, "sync failed", err)
	}
}

func toChunkOutput(report services.SyncRunReport, verbose bool) chunkOutput {
	out := chunkOutput{
		RunID:          report.RunID,
		StartIndex:     report.StartIndex,
		SyncedCount:    report.SyncedCount,
		SkippedCount:   report.SkippedCount,
		ErrorCount:     report.ErrorCount,
		TotalProcessed: report.TotalProcessed,
		TotalProducts:  report.TotalProducts,
		IsComplete:     report.IsComplete,
		NextChunk:      report.NextChunk,
		HiddenCount:    report.HiddenCount,
		Message:        report.Message,
	}
	if verbose {
		out.Log = report.Log
	}
	return out
}

func printChunk(w io.Writer, report services.SyncRunReport, verbose bool) {
	elapsed := report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(w, "[%s] %d/%d %s (%s)\n", report.RunID, report.TotalProcessed, report.TotalProducts, report.Message, elapsed)
	if verbose {
		for _, line := range report.Log {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
