package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/vinylyard/api/internal/cli"
	"github.com/vinylyard/api/internal/di"
	"github.com/vinylyard/api/internal/platform/config"
	"github.com/vinylyard/api/internal/platform/observability"
	"github.com/vinylyard/api/internal/platform/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand(newEngine).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}

// newEngine loads configuration the same way the API does and opens a container against it.
// Logging stays silent unless --verbose is set so command output remains parseable.
func newEngine(ctx context.Context, opts *cli.RootOptions) (cli.Engine, error) {
	logger := zap.NewNop()
	if opts.Verbose {
		l, err := observability.NewLogger()
		if err != nil {
			return cli.Engine{}, fmt.Errorf("init logger: %w", err)
		}
		logger = l.Named("catalogctl")
	}

	env, err := config.EnvironmentValues(config.WithEnvFile(opts.EnvFile))
	if err != nil {
		return cli.Engine{}, err
	}

	fetcherOpts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(firstNonEmpty(env["API_SECRET_FALLBACK_FILE"], ".secrets.local")),
		secrets.WithEnvironment(strings.ToLower(firstNonEmpty(env["API_SECURITY_ENVIRONMENT"], "local"))),
	}
	if project := firstNonEmpty(env["API_SECRET_DEFAULT_PROJECT_ID"], env["API_FIRESTORE_PROJECT_ID"]); project != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithDefaultProject(project))
	}
	fetcher, err := secrets.NewFetcher(ctx, fetcherOpts...)
	if err != nil {
		return cli.Engine{}, fmt.Errorf("init secret fetcher: %w", err)
	}

	cfg, err := config.Load(ctx,
		config.WithEnvFile(opts.EnvFile),
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Catalog.AccessToken"),
	)
	if err != nil {
		_ = fetcher.Close()
		return cli.Engine{}, err
	}

	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		_ = fetcher.Close()
		return cli.Engine{}, err
	}

	return cli.Engine{
		Sync:     container.Services.Sync,
		Products: container.Services.Products,
		Close: func(ctx context.Context) error {
			err := container.Close(ctx)
			_ = fetcher.Close()
			_ = logger.Sync()
			return err
		},
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
