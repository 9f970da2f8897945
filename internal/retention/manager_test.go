package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/council-da-scraper/internal/da"
	"github.com/JakeFAU/council-da-scraper/internal/metrics"
	"github.com/JakeFAU/council-da-scraper/internal/storage/memory"
)

var today = time.Date(2024, 6, 30, 9, 15, 0, 0, time.UTC)

func never() float64  { return 0.99 }
func always() float64 { return 0 }

func seed(t *testing.T, store *memory.RecordStore, ages map[string]int) {
	t.Helper()
	for ref, age := range ages {
		require.NoError(t, store.Upsert(context.Background(), da.Record{
			CouncilReference: ref,
			Address:          "1 Main St, NSW",
			Description:      "Dwelling",
			DateScraped:      today.AddDate(0, 0, -age),
		}))
	}
}

func TestRunDeletesOnlyStaleRecords(t *testing.T) {
	t.Parallel()

	store := memory.NewRecordStore()
	seed(t, store, map[string]int{"old": 40, "fresh": 10})

	report, err := NewManager(store, Config{}, nil, WithRandom(never)).Run(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Stale)
	assert.Equal(t, int64(1), report.Deleted)
	assert.Equal(t, da.DateOf(today.AddDate(0, 0, -40)), report.Oldest)
	assert.Equal(t, da.DateOf(today.AddDate(0, 0, -30)), report.Cutoff)
	assert.Equal(t, da.DateOf(today.AddDate(0, 0, -35)), report.CompactionCutoff)

	_, ok := store.Get("old")
	assert.False(t, ok)
	_, ok = store.Get("fresh")
	assert.True(t, ok)
}

func TestRunNothingStaleIsNoop(t *testing.T) {
	t.Parallel()

	store := memory.NewRecordStore()
	seed(t, store, map[string]int{"fresh": 10, "edge": 30})

	report, err := NewManager(store, Config{}, nil, WithRandom(always)).Run(context.Background(), today)
	require.NoError(t, err)

	assert.Zero(t, report.Stale)
	assert.Zero(t, report.Deleted)
	assert.False(t, report.Compacted)
	assert.Zero(t, store.Compactions())
	assert.Len(t, store.Records(), 2)
}

func TestRunZeroProbabilityDisablesRandomCompaction(t *testing.T) {
	t.Parallel()

	store := memory.NewRecordStore()
	seed(t, store, map[string]int{"stale": 31, "fresh": 1})

	report, err := NewManager(store, Config{}, nil, WithRandom(always)).Run(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Deleted)
	assert.False(t, report.Compacted)
	assert.Empty(t, report.CompactionReason)
	assert.Zero(t, store.Compactions())

	store = memory.NewRecordStore()
	seed(t, store, map[string]int{"stale": 31})
	report, err = NewManager(store, Config{CompactionProbability: DefaultCompactionProbability}, nil,
		WithRandom(always)).Run(context.Background(), today)
	require.NoError(t, err)
	assert.True(t, report.Compacted)
	assert.Equal(t, ReasonRandom, report.CompactionReason)
}

func TestRunCompactionTriggers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ages        map[string]int
		force       bool
		random      func() float64
		wantCompact bool
		wantReason  string
	}{
		{
			name:        "recent backlog skips compaction",
			ages:        map[string]int{"a": 31, "b": 35},
			random:      never,
			wantCompact: false,
		},
		{
			name:        "backlog older than compaction cutoff",
			ages:        map[string]int{"a": 31, "b": 36},
			random:      never,
			wantCompact: true,
			wantReason:  ReasonBacklog,
		},
		{
			name:        "random trigger",
			ages:        map[string]int{"a": 31},
			random:      always,
			wantCompact: true,
			wantReason:  ReasonRandom,
		},
		{
			name:        "forced with stale records",
			ages:        map[string]int{"a": 31},
			force:       true,
			random:      never,
			wantCompact: true,
			wantReason:  ReasonForced,
		},
		{
			name:        "forced with nothing stale",
			ages:        map[string]int{"a": 1},
			force:       true,
			random:      never,
			wantCompact: true,
			wantReason:  ReasonForced,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := memory.NewRecordStore()
			seed(t, store, tc.ages)
			rec := metrics.New("https://council.example")

			m := NewManager(store, Config{Force: tc.force}, nil, WithRandom(tc.random), WithMetrics(rec))
			report, err := m.Run(context.Background(), today)
			require.NoError(t, err)

			assert.Equal(t, tc.wantCompact, report.Compacted)
			assert.Equal(t, tc.wantReason, report.CompactionReason)
			if tc.wantCompact {
				assert.Equal(t, 1, store.Compactions())
				assert.Equal(t, 1, mustGatherAndCount(t, rec, "da_compactions_total"))
			} else {
				assert.Zero(t, store.Compactions())
			}
		})
	}
}

func TestRunRespectsCustomAges(t *testing.T) {
	t.Parallel()

	store := memory.NewRecordStore()
	seed(t, store, map[string]int{"a": 8, "b": 3})

	cfg := Config{MaxAgeDays: 7, CompactionAgeDays: 14, CompactionProbability: 0}
	report, err := NewManager(store, cfg, nil, WithRandom(always)).Run(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Deleted)
	assert.False(t, report.Compacted)
}

type failingStore struct {
	countErr, deleteErr, compactErr error
}

func (f failingStore) CountOlderThan(context.Context, time.Time) (int64, time.Time, error) {
	return 2, today.AddDate(0, 0, -60), f.countErr
}

func (f failingStore) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 2, f.deleteErr
}

func (f failingStore) Compact(context.Context) error { return f.compactErr }

func TestRunPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	for name, store := range map[string]failingStore{
		"count":   {countErr: boom},
		"delete":  {deleteErr: boom},
		"compact": {compactErr: boom},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewManager(store, Config{}, nil, WithRandom(never)).Run(context.Background(), today)
			require.ErrorIs(t, err, boom)
		})
	}
}

func mustGatherAndCount(t *testing.T, rec *metrics.Recorder, name string) int {
	t.Helper()
	n, err := testutil.GatherAndCount(rec.Registry(), name)
	require.NoError(t, err)
	return n
}
