// Package cli implements catalogctl, the operator command line for the catalog sync engine.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinylyard/api/internal/services"
)

// Engine is the slice of the sync engine the commands drive.
type Engine struct {
	Sync     services.SyncCoordinator
	Products services.ProductCatalog
	Close    func(ctx context.Context) error
}

// EngineFactory builds an Engine once flags are parsed.
type EngineFactory func(ctx context.Context, opts *RootOptions) (Engine, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string

	factory EngineFactory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for catalogctl.
func NewRootCommand(factory EngineFactory) *cobra.Command {
	opts := &RootOptions{factory: factory}

	cmd := &cobra.Command{
		Use:   "catalogctl",
		Short: "Operate the catalog sync engine",
		Long:  "Run catalog pulls and inspect their results against the configured product store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file merged under the process environment")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewProductsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withEngine builds the engine, runs fn, and closes the engine whatever fn returns.
func withEngine(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, engine Engine) error) error {
	if opts.factory == nil {
		return NewExitError(ExitCommandError, "no engine configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	engine, err := opts.factory(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialise engine", err)
	}
	if engine.Close != nil {
		defer func() {
			_ = engine.Close(context.WithoutCancel(ctx))
		}()
	}
	return fn(ctx, engine)
}
