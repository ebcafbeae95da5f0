package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const tokenResource = "projects/vinyl-prod/secrets/catalog_access_token/versions/latest"

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.set(tokenResource, "sq-token-1")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("vinyl-prod"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 3; i++ {
		got, err := fetcher.Resolve(ctx, "secret://catalog_access_token")
		if err != nil {
			t.Fatalf("Resolve #%d returned error: %v", i, err)
		}
		if got != "sq-token-1" {
			t.Fatalf("Resolve #%d: expected sq-token-1, got %s", i, got)
		}
	}

	if calls := client.callCount(tokenResource); calls != 1 {
		t.Fatalf("expected a single remote fetch, got %d", calls)
	}
}

func TestResolveRefetchesAfterCacheTTL(t *testing.T) {
	ctx := context.Background()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newFakeSecretClient()
	client.set(tokenResource, "sq-token-1")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("vinyl-prod"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if got, _ := fetcher.Resolve(ctx, "secret://catalog_access_token"); got != "sq-token-1" {
		t.Fatalf("expected initial token, got %q", got)
	}

	client.set(tokenResource, "sq-token-2")
	now = now.Add(30 * time.Second)
	if got, _ := fetcher.Resolve(ctx, "secret://catalog_access_token"); got != "sq-token-1" {
		t.Fatalf("expected cached token within ttl, got %q", got)
	}

	now = now.Add(31 * time.Second)
	got, err := fetcher.Resolve(ctx, "secret://catalog_access_token")
	if err != nil {
		t.Fatalf("Resolve after ttl returned error: %v", err)
	}
	if got != "sq-token-2" {
		t.Fatalf("expected rotated token after ttl, got %q", got)
	}
	if calls := client.callCount(tokenResource); calls != 2 {
		t.Fatalf("expected two remote fetches, got %d", calls)
	}
}

func TestInvalidateForcesRemoteFetch(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.set(tokenResource, "sq-token-1")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("vinyl-prod"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://catalog_access_token"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	client.set(tokenResource, "sq-token-2")
	fetcher.Invalidate("secret://catalog_access_token?version=latest")

	got, err := fetcher.Resolve(ctx, "secret://catalog_access_token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sq-token-2" {
		t.Fatalf("expected refreshed value, got %q", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallback(t, "# local development\nsecret://catalog_access_token=local-token\n")

	client := newFakeSecretClient()
	client.fail(tokenResource, status.Error(codes.PermissionDenied, "denied"))

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("vinyl-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://catalog_access_token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-token" {
		t.Fatalf("expected local-token, got %s", got)
	}
}

func TestResolveUsesEnvironmentProjectAndVersionPins(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.set("projects/vinyl-staging/secrets/store_dsn/versions/7", "postgres://staging")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithEnvironment("Staging"),
		WithDefaultProject("vinyl-prod"),
		WithProjectMap(map[string]string{"staging": "vinyl-staging"}),
		WithVersionPins(map[string]string{"staging:secret://store_dsn": "7"}),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://store_dsn")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "postgres://staging" {
		t.Fatalf("expected pinned staging value, got %q", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallback(t, "secret://catalog_access_token=local-token\n")
	client := newFakeSecretClient()

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("vinyl-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://catalog_access_token"); err == nil {
		t.Fatalf("expected not found error to surface")
	} else if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("expected wrapped NotFound, got %v", err)
	}
}

func TestResolveRejectsUnsupportedScheme(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithSecretManagerClient(newFakeSecretClient()))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if _, err := fetcher.Resolve(context.Background(), "vault://catalog_access_token"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		secretManagerClientFactory = originalFactory
	})

	fallbackPath := writeFallback(t, "sm://store_dsn?version=3=file:catalog.db\n")

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.ResolveSecret(ctx, "secret://store_dsn?version=3")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if value != "file:catalog.db" {
		t.Fatalf("expected local value, got %s", value)
	}
}

func writeFallback(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeSecretClient) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[name] = err
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++

	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error {
	return nil
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
