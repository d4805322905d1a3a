package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"openmatch/internal/logging"
	"openmatch/internal/solution"
)

// CleanupOptions selects what CleanupStale removes. Staleness follows the
// usual policy; Before additionally catches everything created earlier than
// the given instant regardless of TTL. DryRun reports without deleting.
type CleanupOptions struct {
	MaxAgeDays int
	Before     time.Time
	DryRun     bool
}

// CleanupResult reports what a cleanup removed, or would remove in dry-run.
type CleanupResult struct {
	DeletedCount int      `json:"deleted_count"`
	FreedBytes   int64    `json:"freed_bytes"`
	IDs          []string `json:"ids,omitempty"`
}

// ArchiveResult reports what an archive pass moved.
type ArchiveResult struct {
	MovedCount int      `json:"moved_count"`
	IDs        []string `json:"ids,omitempty"`
}

// inventory walks the store once and pairs up blob and metadata keys.
type inventory struct {
	metas       map[string]*solution.Metadata
	orphanMetas []string // metadata without a blob
	orphanBlobs []string // blob without metadata
}

func (s *SolutionStore) takeInventory(ctx context.Context) (*inventory, error) {
	keys, err := s.objects.List(ctx, solutionPrefix)
	if err != nil {
		return nil, err
	}

	inv := &inventory{metas: make(map[string]*solution.Metadata)}
	blobIDs := make(map[string]bool)
	for _, key := range keys {
		switch {
		case strings.HasPrefix(key, metadataPrefix):
			data, err := s.objects.Get(ctx, key)
			if err != nil {
				logging.StoreWarn("Inventory skipped %s: %v", key, err)
				continue
			}
			var meta solution.Metadata
			if err := json.Unmarshal(data, &meta); err != nil {
				logging.StoreWarn("Inventory skipped damaged side-file %s: %v", key, err)
				continue
			}
			inv.metas[idFromMetaKey(key)] = &meta
		default:
			blobIDs[idFromBlobKey(key)] = true
		}
	}

	for id := range inv.metas {
		if !blobIDs[id] {
			inv.orphanMetas = append(inv.orphanMetas, id)
		}
	}
	for id := range blobIDs {
		if _, ok := inv.metas[id]; !ok {
			inv.orphanBlobs = append(inv.orphanBlobs, id)
		}
	}
	return inv, nil
}

// CleanupStale deletes stale solutions plus orphaned halves left by torn
// writes. Idempotent: a second run over the same store removes nothing. A
// reader racing a cleanup observes NotFound for affected ids.
func (s *SolutionStore) CleanupStale(ctx context.Context, opts CleanupOptions) (*CleanupResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "CleanupStale")
	started := time.Now()
	defer timer.Stop()

	inv, err := s.takeInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}

	now := s.now()
	eligible := make(map[string]bool)
	for id, meta := range inv.metas {
		stale, _ := staleReason(meta, now, opts.MaxAgeDays)
		if stale || (!opts.Before.IsZero() && meta.CreatedAt.Before(opts.Before)) {
			eligible[id] = true
		}
	}
	for _, id := range inv.orphanMetas {
		eligible[id] = true
	}
	for _, id := range inv.orphanBlobs {
		eligible[id] = true
	}

	result := &CleanupResult{}
	for _, id := range sortedIDs(eligible) {
		freed, err := s.removeSolution(ctx, id, opts.DryRun)
		if err != nil {
			return result, fmt.Errorf("cleanup %s: %w", id, err)
		}
		result.FreedBytes += freed
		result.IDs = append(result.IDs, id)
	}
	result.DeletedCount = len(result.IDs)

	logging.Store("Cleanup removed %d solutions (%d bytes, dry_run=%v)", result.DeletedCount, result.FreedBytes, opts.DryRun)
	logging.Audit().CleanupRun(result.DeletedCount, result.FreedBytes, opts.DryRun, time.Since(started).Milliseconds())
	return result, nil
}

// removeSolution measures and, unless dry-run, deletes both halves of a
// solution. Metadata goes first so listings stop advertising the id.
func (s *SolutionStore) removeSolution(ctx context.Context, id string, dryRun bool) (int64, error) {
	var freed int64
	for _, key := range []string{metaKey(id), blobKey(id)} {
		data, err := s.objects.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return freed, err
		}
		freed += int64(len(data))
		if dryRun {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			return freed, err
		}
	}
	return freed, nil
}

// ArchiveStale moves stale solutions under archive/<prefix>/, both halves,
// then removes the originals. Archived ids vanish from listings but their
// bytes survive for manual recovery.
func (s *SolutionStore) ArchiveStale(ctx context.Context, maxAgeDays int, archivePrefix string) (*ArchiveResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ArchiveStale")
	defer timer.Stop()

	inv, err := s.takeInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	destPrefix := "archive/"
	if archivePrefix != "" {
		destPrefix += strings.Trim(archivePrefix, "/") + "/"
	}

	now := s.now()
	result := &ArchiveResult{}
	stale := make(map[string]bool)
	for id, meta := range inv.metas {
		if isStale, _ := staleReason(meta, now, maxAgeDays); isStale {
			stale[id] = true
		}
	}

	for _, id := range sortedIDs(stale) {
		// Copy blob then metadata, remove metadata then blob: at every
		// point the id is either fully listed or fully archived.
		copied := false
		for _, key := range []string{blobKey(id), metaKey(id)} {
			data, err := s.objects.Get(ctx, key)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return result, fmt.Errorf("archive %s: %w", id, err)
			}
			if err := s.objects.Put(ctx, destPrefix+key, data); err != nil {
				return result, fmt.Errorf("archive %s: %w", id, err)
			}
			copied = true
		}
		if !copied {
			continue
		}
		for _, key := range []string{metaKey(id), blobKey(id)} {
			if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
				return result, fmt.Errorf("archive %s: remove original: %w", id, err)
			}
		}
		logging.Audit().SolutionArchived(id, destPrefix+blobKey(id))
		result.IDs = append(result.IDs, id)
	}
	result.MovedCount = len(result.IDs)

	logging.Store("Archived %d stale solutions under %s", result.MovedCount, destPrefix)
	return result, nil
}

func sortedIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return dedupSortedStrings(ids)
}

func dedupSortedStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
