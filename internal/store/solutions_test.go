package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openmatch/internal/solution"
)

// virtualClock lets staleness tests advance time without sleeping.
type virtualClock struct {
	now time.Time
}

func newVirtualClock() *virtualClock {
	return &virtualClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *virtualClock) Now() time.Time { return c.now }

func (c *virtualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *virtualClock) AdvanceDays(days int) { c.Advance(time.Duration(days) * 24 * time.Hour) }

func newTestSolutionStore(t *testing.T) (*SolutionStore, *virtualClock) {
	t.Helper()
	objects, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { objects.Close() })

	clock := newVirtualClock()
	ss := NewSolutionStore(objects)
	ss.Clock = clock.Now
	return ss, clock
}

func testSolution(okhID string, score float64) *solution.SupplyTreeSolution {
	cost := decimal.NewFromFloat(12.50)
	tree := &solution.SupplyTree{
		ID:              "tree-1",
		ComponentID:     "comp-1",
		ComponentName:   "bracket",
		FacilityID:      "fac-1",
		ProductionStage: solution.StageFinal,
		Confidence:      score,
		MatchType:       solution.MatchExact,
		EstimatedCost:   &cost,
		EstimatedTime:   solution.Duration(2 * time.Hour),
	}
	return &solution.SupplyTreeSolution{
		MatchingMode:       solution.ModeSingleLevel,
		Score:              score,
		AllTrees:           []*solution.SupplyTree{tree},
		RootTreeIDs:        []string{"tree-1"},
		ComponentMapping:   map[string][]string{"comp-1": {"tree-1"}},
		DependencyGraph:    map[string][]string{},
		ProductionSequence: [][]string{{"tree-1"}},
		Validation:         &solution.ValidationResult{IsValid: true},
		OKHID:              okhID,
		TotalEstimatedCost: &cost,
	}
}

func TestSolutionStore_SaveDefaults(t *testing.T) {
	ss, clock := newTestSolutionStore(t)
	ctx := context.Background()

	sol := testSolution("okh-1", 0.9)
	id, err := ss.Save(ctx, sol, SaveOptions{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "sol-"), "id %q should be content-addressed", id)
	assert.Len(t, id, len("sol-")+12)
	assert.Equal(t, id, sol.ID)
	assert.Equal(t, DefaultTTLDays, sol.TTLDays)
	assert.Equal(t, clock.Now().UTC().Truncate(time.Second), sol.CreatedAt)
	assert.Equal(t, sol.CreatedAt.Add(30*24*time.Hour), sol.ExpiresAt)
}

func TestSolutionStore_ContentAddressIsStable(t *testing.T) {
	ss, _ := newTestSolutionStore(t)
	ctx := context.Background()

	id1, err := ss.Save(ctx, testSolution("okh-1", 0.9), SaveOptions{})
	require.NoError(t, err)
	id2, err := ss.Save(ctx, testSolution("okh-1", 0.9), SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "identical content at the same instant should share an id")

	id3, err := ss.Save(ctx, testSolution("okh-other", 0.9), SaveOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestSolutionStore_SaveExplicitIDOverwrites(t *testing.T) {
	ss, _ := newTestSolutionStore(t)
	ctx := context.Background()

	first := testSolution("okh-1", 0.6)
	id, err := ss.Save(ctx, first, SaveOptions{ID: "sol-named"})
	require.NoError(t, err)
	require.Equal(t, "sol-named", id)

	second := testSolution("okh-1", 0.95)
	id2, err := ss.Save(ctx, second, SaveOptions{ID: "sol-named", Tags: []string{"revised"}})
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	loaded, err := ss.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.95, loaded.Score)
	assert.Equal(t, []string{"revised"}, loaded.Tags)

	// Only the one record remains under the reused id.
	metas, err := ss.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "sol-named", metas[0].ID)
}

func TestSolutionStore_LoadRoundtrip(t *testing.T) {
	ss, _ := newTestSolutionStore(t)
	ctx := context.Background()

	saved := testSolution("okh-1", 0.85)
	id, err := ss.Save(ctx, saved, SaveOptions{ID: "sol-explicit", Tags: []string{"prototype"}, TTLDays: 7})
	require.NoError(t, err)
	assert.Equal(t, "sol-explicit", id)

	loaded, err := ss.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saved.Score, loaded.Score)
	assert.Equal(t, []string{"prototype"}, loaded.Tags)
	assert.Equal(t, 7, loaded.TTLDays)
	require.Len(t, loaded.AllTrees, 1)
	tree := loaded.AllTrees[0]
	require.NotNil(t, tree.EstimatedCost)
	assert.True(t, tree.EstimatedCost.Equal(decimal.NewFromFloat(12.50)))
	assert.Equal(t, 2*time.Hour, tree.EstimatedTime.Std())

	_, err = ss.Load(ctx, "sol-missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSolutionStore_LoadWithMetadataFreshness(t *testing.T) {
	ss, clock := newTestSolutionStore(t)
	ctx := context.Background()

	id, err := ss.Save(ctx, testSolution("okh-1", 0.9), SaveOptions{TTLDays: 10})
	require.NoError(t, err)

	_, fresh, err := ss.LoadWithMetadata(ctx, id, true)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.False(t, fresh.Stale)
	assert.Empty(t, fresh.Reason)
	assert.Equal(t, 0, fresh.AgeDays)

	clock.AdvanceDays(11)
	sol, fresh, err := ss.LoadWithMetadata(ctx, id, true)
	require.NoError(t, err)
	require.NotNil(t, sol, "stale solutions still load")
	assert.True(t, fresh.Stale)
	assert.Equal(t, "exceeded_ttl_10_days", fresh.Reason)
	assert.Equal(t, 11, fresh.AgeDays)

	_, fresh, err = ss.LoadWithMetadata(ctx, id, false)
	require.NoError(t, err)
	assert.Nil(t, fresh)
}

func TestSolutionStore_IsStaleReasons(t *testing.T) {
	ss, clock := newTestSolutionStore(t)
	ctx := context.Background()

	id, err := ss.Save(ctx, testSolution("okh-1", 0.9), SaveOptions{TTLDays: 30})
	require.NoError(t, err)

	stale, reason, err := ss.IsStale(ctx, id, 0)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Empty(t, reason)

	// Caller-supplied bound trips before the TTL does.
	clock.AdvanceDays(10)
	stale, reason, err = ss.IsStale(ctx, id, 5)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "too_old_5_days", reason)

	// TTL verdict wins once both apply.
	clock.AdvanceDays(25)
	stale, reason, err = ss.IsStale(ctx, id, 5)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "exceeded_ttl_30_days", reason)

	_, _, err = ss.IsStale(ctx, "sol-missing", 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSolutionStore_IsStaleCheckFailed(t *testing.T) {
	ss, _ := newTestSolutionStore(t)
	ctx := context.Background()

	id, err := ss.Save(ctx, testSolution("okh-1", 0.9), SaveOptions{})
	require.NoError(t, err)

	// Simulate a torn write: metadata present, blob gone.
	require.NoError(t, ss.objects.Delete(ctx, blobKey(id)))

	stale, reason, err := ss.IsStale(ctx, id, 0)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "check_failed", reason)
}

func TestSolutionStore_ExtendTTL(t *testing.T) {
	ss, clock := newTestSolutionStore(t)
	ctx := context.Background()

	id, err := ss.Save(ctx, testSolution("okh-1", 0.9), SaveOptions{TTLDays: 1})
	require.NoError(t, err)

	clock.AdvanceDays(2)
	stale, reason, err := ss.IsStale(ctx, id, 0)
	require.NoError(t, err)
	require.True(t, stale)
	require.Equal(t, "exceeded_ttl_1_days", reason)

	ok, err := ss.ExtendTTL(ctx, id, 10)
	require.NoError(t, err)
	require.True(t, ok)

	stale, _, err = ss.IsStale(ctx, id, 0)
	require.NoError(t, err)
	assert.False(t, stale, "extended solution should be fresh again")

	loaded, err := ss.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 11, loaded.TTLDays)
	assert.Equal(t, clock.Now().UTC().Truncate(time.Second), loaded.UpdatedAt)

	ok, err = ss.ExtendTTL(ctx, "sol-missing", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ss.ExtendTTL(ctx, id, 0)
	require.Error(t, err)
}

func TestSolutionStore_Delete(t *testing.T) {
	ss, _ := newTestSolutionStore(t)
	ctx := context.Background()

	id, err := ss.Save(ctx, testSolution("okh-1", 0.9), SaveOptions{})
	require.NoError(t, err)

	deleted, err := ss.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = ss.Load(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	deleted, err = ss.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete is a no-op")
}
