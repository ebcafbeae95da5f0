package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, rootOpts, func(ctx context.Context, engine Engine) error {
				if engine.Sync == nil {
					return NewExitError(ExitCommandError, "sync coordinator unavailable")
				}
				info, err := engine.Sync.LastSync(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read sync state", err)
				}
				type statusOutput struct {
					LastSync      *time.Time `json:"lastSync"`
					LastSyncCount int        `json:"lastSyncCount"`
					LocationID    string     `json:"locationId"`
					RunID         string     `json:"runId,omitempty"`
					IsComplete    bool       `json:"isComplete"`
				}
				out := statusOutput{
					LastSyncCount: info.LastSyncCount,
					LocationID:    info.LocationID,
					RunID:         info.RunID,
					IsComplete:    info.IsComplete,
				}
				if !info.LastSync.IsZero() {
					last := info.LastSync.UTC()
					out.LastSync = &last
				}
				return formatter{format: rootOpts.Format, out: cmd.OutOrStdout()}.emit(out, func(w io.Writer) {
					if out.LastSync == nil {
						fmt.Fprintln(w, "never synced")
						return
					}
					location := out.LocationID
					if location == "" {
						location = "(all locations)"
					}
					fmt.Fprintf(w, "last sync %s, %d items, location %s, run %s, complete=%t\n",
						out.LastSync.Format(time.RFC3339), out.LastSyncCount, location, out.RunID, out.IsComplete)
				})
			})
		},
	}
}
