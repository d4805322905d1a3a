package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openmatch/internal/solution"
)

// seedListing stores three solutions across a five-day window:
// sol-a (okh-a, 0.9, ttl 2)  saved day 0, stale by day 5
// sol-b (okh-b, 0.5, nested) saved day 3
// sol-c (okh-a, 0.7)         saved day 5
func seedListing(t *testing.T) (*SolutionStore, *virtualClock) {
	t.Helper()
	ss, clock := newTestSolutionStore(t)
	ctx := context.Background()

	a := testSolution("okh-a", 0.9)
	_, err := ss.Save(ctx, a, SaveOptions{ID: "sol-a", Tags: []string{"prototype"}, TTLDays: 2})
	require.NoError(t, err)

	clock.AdvanceDays(3)
	b := testSolution("okh-b", 0.5)
	b.MatchingMode = solution.ModeNested
	_, err = ss.Save(ctx, b, SaveOptions{ID: "sol-b", Tags: []string{"beta"}})
	require.NoError(t, err)

	clock.AdvanceDays(2)
	c := testSolution("okh-a", 0.7)
	_, err = ss.Save(ctx, c, SaveOptions{ID: "sol-c", Tags: []string{"gamma"}})
	require.NoError(t, err)

	return ss, clock
}

func listedIDs(metas []*solution.Metadata) []string {
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	return ids
}

func TestList_DefaultExcludesStale(t *testing.T) {
	ss, _ := seedListing(t)
	metas, err := ss.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-b", "sol-c"}, listedIDs(metas))
}

func TestList_StaleSelection(t *testing.T) {
	ss, _ := seedListing(t)
	ctx := context.Background()

	metas, err := ss.List(ctx, ListOptions{Filter: ListFilter{IncludeStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-a", "sol-b", "sol-c"}, listedIDs(metas))

	metas, err = ss.List(ctx, ListOptions{Filter: ListFilter{OnlyStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-a"}, listedIDs(metas))
}

func TestList_Filters(t *testing.T) {
	ss, _ := seedListing(t)
	ctx := context.Background()

	metas, err := ss.List(ctx, ListOptions{Filter: ListFilter{OKHID: "okh-a", IncludeStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-a", "sol-c"}, listedIDs(metas))

	metas, err = ss.List(ctx, ListOptions{Filter: ListFilter{MatchingMode: solution.ModeNested, IncludeStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-b"}, listedIDs(metas))

	// Free-form tag match is a substring test.
	metas, err = ss.List(ctx, ListOptions{Filter: ListFilter{Tag: "proto", IncludeStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-a"}, listedIDs(metas))

	metas, err = ss.List(ctx, ListOptions{Filter: ListFilter{MinAgeDays: 2, IncludeStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-a", "sol-b"}, listedIDs(metas))

	metas, err = ss.List(ctx, ListOptions{Filter: ListFilter{MaxAgeDays: 2, IncludeStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-b", "sol-c"}, listedIDs(metas))
}

func TestList_SortAndPage(t *testing.T) {
	ss, _ := seedListing(t)
	ctx := context.Background()

	metas, err := ss.List(ctx, ListOptions{
		Filter:     ListFilter{IncludeStale: true},
		SortBy:     SortByScore,
		Descending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-a", "sol-c", "sol-b"}, listedIDs(metas))

	metas, err = ss.List(ctx, ListOptions{
		Filter: ListFilter{IncludeStale: true},
		Limit:  1,
		Offset: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-b"}, listedIDs(metas))

	metas, err = ss.List(ctx, ListOptions{Filter: ListFilter{IncludeStale: true}, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestList_NeverTouchesBlobs(t *testing.T) {
	ss, _ := seedListing(t)
	ctx := context.Background()

	// Losing a blob must not break or shrink the listing.
	require.NoError(t, ss.objects.Delete(ctx, blobKey("sol-a")))

	metas, err := ss.List(ctx, ListOptions{Filter: ListFilter{IncludeStale: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-a", "sol-b", "sol-c"}, listedIDs(metas))
}
