package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinylyard/api/internal/services"
)

type stubSync struct {
	run      func(ctx context.Context, req services.SyncRequest) (services.SyncRunReport, error)
	lastSync func(ctx context.Context) (services.LastSyncInfo, error)
}

func (s *stubSync) Run(ctx context.Context, req services.SyncRequest) (services.SyncRunReport, error) {
	return s.run(ctx, req)
}

func (s *stubSync) LastSync(ctx context.Context) (services.LastSyncInfo, error) {
	return s.lastSync(ctx)
}

type stubCatalog struct {
	listing   services.ProductListing
	refreshed bool
}

func (s *stubCatalog) Get(context.Context) (services.ProductListing, error) {
	return s.listing, nil
}

func (s *stubCatalog) Refresh(context.Context) (services.ProductListing, error) {
	s.refreshed = true
	return s.listing, nil
}

func (s *stubCatalog) Invalidate(context.Context) {}

func execute(t *testing.T, engine Engine, args ...string) (string, error) {
	t.Helper()
	closed := false
	engine.Close = func(context.Context) error {
		closed = true
		return nil
	}
	cmd := NewRootCommand(func(context.Context, *RootOptions) (Engine, error) {
		return engine, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		assert.True(t, closed, "engine should be closed after the command")
	}
	return out.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand(nil)
	for _, name := range []string{"sync", "status", "products"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCommand(nil)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	envFile := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFile)
	assert.Equal(t, ".env", envFile.DefValue)

	sync, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)
	for _, name := range []string{"chunk-size", "start", "once"} {
		assert.NotNil(t, sync.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestInvalidFormatIsCommandError(t *testing.T) {
	_, err := execute(t, Engine{}, "status", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSyncFollowsChunksUntilComplete(t *testing.T) {
	var starts []int
	sync := &stubSync{run: func(_ context.Context, req services.SyncRequest) (services.SyncRunReport, error) {
		starts = append(starts, req.StartIndex)
		assert.Equal(t, 2, req.ChunkSize)
		assert.Equal(t, services.SyncDirectionPull, req.Direction)
		report := services.SyncRunReport{
			RunID:          "run",
			StartIndex:     req.StartIndex,
			SyncedCount:    2,
			TotalProcessed: req.StartIndex + 2,
			TotalProducts:  5,
		}
		if req.StartIndex+2 >= 5 {
			report.SyncedCount = 1
			report.TotalProcessed = 5
			report.IsComplete = true
		} else {
			next := req.StartIndex + 2
			report.NextChunk = &next
		}
		return report, nil
	}}

	out, err := execute(t, Engine{Sync: sync}, "sync", "--chunk-size", "2", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, starts)

	var decoded syncOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded.Chunks, 3)
	assert.Equal(t, 5, decoded.Synced)
	assert.Equal(t, 0, decoded.Hidden)
	assert.True(t, decoded.Done)
	assert.False(t, decoded.Full)
}

func TestSyncChunkedPassWarnsThatNothingWasHidden(t *testing.T) {
	sync := &stubSync{run: func(_ context.Context, req services.SyncRequest) (services.SyncRunReport, error) {
		return services.SyncRunReport{RunID: "run", StartIndex: req.StartIndex, TotalProcessed: 3, TotalProducts: 3, IsComplete: true}, nil
	}}

	out, err := execute(t, Engine{Sync: sync}, "sync", "--chunk-size", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "stale products were not hidden")
}

func TestSyncFullPassReportsHidden(t *testing.T) {
	sync := &stubSync{run: func(_ context.Context, req services.SyncRequest) (services.SyncRunReport, error) {
		assert.Equal(t, 0, req.ChunkSize)
		return services.SyncRunReport{RunID: "run", TotalProcessed: 3, TotalProducts: 3, IsComplete: true, Full: true, HiddenCount: 2}, nil
	}}

	out, err := execute(t, Engine{Sync: sync}, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "2 hidden")
	assert.NotContains(t, out, "stale products were not hidden")
}

func TestSyncHelpDescribesWhenProductsAreHidden(t *testing.T) {
	cmd := NewSyncCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "hidden only by an unchunked pass")
	assert.NotContains(t, cmd.Long, "still runs at the end")
}

func TestSyncOnceStopsAfterFirstChunk(t *testing.T) {
	calls := 0
	sync := &stubSync{run: func(_ context.Context, req services.SyncRequest) (services.SyncRunReport, error) {
		calls++
		next := req.StartIndex + req.ChunkSize
		return services.SyncRunReport{RunID: "run", StartIndex: req.StartIndex, NextChunk: &next, Message: "chunk done"}, nil
	}}

	out, err := execute(t, Engine{Sync: sync}, "sync", "--chunk-size", "10", "--start", "30", "--once")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, out, "chunk done")
	assert.Contains(t, out, "complete=false")
}

func TestSyncErrorsMapToExitCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"fetch failure", &services.SyncFetchError{Report: services.SyncRunReport{RunID: "r1"}, Err: errors.New("catalog api: 500")}, ExitFailure},
		{"lock held", services.ErrSyncInProgress, ExitFailure},
		{"invalid input", services.ErrSyncInvalidInput, ExitCommandError},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sync := &stubSync{run: func(context.Context, services.SyncRequest) (services.SyncRunReport, error) {
				return services.SyncRunReport{}, tc.err
			}}
			_, err := execute(t, Engine{Sync: sync}, "sync")
			require.Error(t, err)
			assert.Equal(t, tc.code, GetExitCode(err))
		})
	}
}

func TestSyncRejectsNegativeFlags(t *testing.T) {
	_, err := execute(t, Engine{Sync: &stubSync{}}, "sync", "--start", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusNeverSynced(t *testing.T) {
	sync := &stubSync{lastSync: func(context.Context) (services.LastSyncInfo, error) {
		return services.LastSyncInfo{}, nil
	}}
	out, err := execute(t, Engine{Sync: sync}, "status")
	require.NoError(t, err)
	assert.Equal(t, "never synced\n", out)
}

func TestStatusJSON(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sync := &stubSync{lastSync: func(context.Context) (services.LastSyncInfo, error) {
		return services.LastSyncInfo{LastSync: at, LastSyncCount: 12, LocationID: "LOC1", RunID: "run", IsComplete: true}, nil
	}}
	out, err := execute(t, Engine{Sync: sync}, "status", "--format", "json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "2025-03-01T12:00:00Z", decoded["lastSync"])
	assert.Equal(t, float64(12), decoded["lastSyncCount"])
	assert.Equal(t, "LOC1", decoded["locationId"])
}

func TestProductsRefresh(t *testing.T) {
	catalog := &stubCatalog{listing: services.ProductListing{Products: []services.Product{{
		Slug:          "blue-train",
		Title:         "Blue Train",
		Price:         decimal.RequireFromString("29.5"),
		Currency:      "USD",
		StockStatus:   "in_stock",
		StockQuantity: 4,
	}}}}
	out, err := execute(t, Engine{Products: catalog}, "products", "--refresh", "--format", "json")
	require.NoError(t, err)
	assert.True(t, catalog.refreshed)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "29.50", decoded[0]["price"])
	assert.Equal(t, "blue-train", decoded[0]["slug"])
}

func TestFactoryErrorIsCommandError(t *testing.T) {
	cmd := NewRootCommand(func(context.Context, *RootOptions) (Engine, error) {
		return Engine{}, errors.New("missing config")
	})
	cmd.SetArgs([]string{"status"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "missing config")
}
