package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"openmatch/internal/logging"
	"openmatch/internal/solution"
)

// ListFilter narrows a listing. Zero values mean "no constraint". The
// default excludes stale solutions; IncludeStale admits them and OnlyStale
// inverts the selection.
type ListFilter struct {
	OKHID        string
	MatchingMode solution.MatchingMode
	MinAgeDays   int
	MaxAgeDays   int
	OnlyStale    bool
	IncludeStale bool
	Tag          string
}

// Sort keys accepted by ListOptions.SortBy.
const (
	SortByCreated = "created_at"
	SortByUpdated = "updated_at"
	SortByExpires = "expires_at"
	SortByScore   = "score"
	SortByAgeDays = "age_days"
)

// ListOptions combines filtering, ordering, and paging.
type ListOptions struct {
	Filter     ListFilter
	SortBy     string // SortByCreated when empty
	Descending bool
	Limit      int // 0 = no limit
	Offset     int
}

// List returns metadata records matching the options. Only side-files are
// read; a listing never deserializes a solution blob. Damaged side-files are
// skipped with a warning rather than failing the whole listing.
func (s *SolutionStore) List(ctx context.Context, opts ListOptions) ([]*solution.Metadata, error) {
	timer := logging.StartTimer(logging.CategoryStore, "List")
	defer timer.Stop()

	keys, err := s.objects.List(ctx, metadataPrefix)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	now := s.now()
	metas := make([]*solution.Metadata, 0, len(keys))
	for _, key := range keys {
		data, err := s.objects.Get(ctx, key)
		if err != nil {
			logging.StoreWarn("Listing skipped %s: %v", key, err)
			continue
		}
		var meta solution.Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			logging.StoreWarn("Listing skipped damaged side-file %s: %v", key, err)
			continue
		}
		if matchesFilter(&meta, opts.Filter, now) {
			metas = append(metas, &meta)
		}
	}

	sortMetadata(metas, opts.SortBy, opts.Descending, now)

	if opts.Offset > 0 {
		if opts.Offset >= len(metas) {
			return []*solution.Metadata{}, nil
		}
		metas = metas[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(metas) {
		metas = metas[:opts.Limit]
	}
	return metas, nil
}

func matchesFilter(meta *solution.Metadata, f ListFilter, now time.Time) bool {
	if f.OKHID != "" && meta.OKHID != f.OKHID {
		return false
	}
	if f.MatchingMode != "" && meta.MatchingMode != f.MatchingMode {
		return false
	}
	age := meta.AgeDays(now)
	if f.MinAgeDays > 0 && age < f.MinAgeDays {
		return false
	}
	if f.MaxAgeDays > 0 && age > f.MaxAgeDays {
		return false
	}
	stale, _ := staleReason(meta, now, 0)
	if f.OnlyStale && !stale {
		return false
	}
	if !f.OnlyStale && !f.IncludeStale && stale {
		return false
	}
	if f.Tag != "" && !tagMatches(meta.Tags, f.Tag) {
		return false
	}
	return true
}

func tagMatches(tags []string, want string) bool {
	want = strings.ToLower(want)
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), want) {
			return true
		}
	}
	return false
}

func sortMetadata(metas []*solution.Metadata, sortBy string, descending bool, now time.Time) {
	if sortBy == "" {
		sortBy = SortByCreated
	}
	sort.SliceStable(metas, func(i, j int) bool {
		c := compareMeta(metas[i], metas[j], sortBy, now)
		if c == 0 {
			return metas[i].ID < metas[j].ID
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
}

func compareMeta(a, b *solution.Metadata, sortBy string, now time.Time) int {
	switch sortBy {
	case SortByUpdated:
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	case SortByExpires:
		return compareTime(a.ExpiresAt, b.ExpiresAt)
	case SortByScore:
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	case SortByAgeDays:
		return a.AgeDays(now) - b.AgeDays(now)
	default:
		return compareTime(a.CreatedAt, b.CreatedAt)
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
