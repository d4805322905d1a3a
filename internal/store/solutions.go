package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"openmatch/internal/logging"
	"openmatch/internal/solution"
)

const (
	solutionPrefix = "solutions/"
	metadataPrefix = "solutions/metadata/"

	// DefaultTTLDays applies when a save does not name a TTL.
	DefaultTTLDays = 30
)

// SolutionStore persists solutions as a JSON blob plus a small metadata
// side-file. The side-file alone drives listing and staleness checks, so
// those operations never deserialize full solutions. Writes go blob first,
// metadata second; deletes run the other way round, so a listed id always
// has a loadable blob except in the face of torn writes, which readers
// surface as check_failed.
type SolutionStore struct {
	objects ObjectStore

	// Clock supplies the current time; tests substitute a virtual clock.
	Clock func() time.Time
}

// NewSolutionStore wraps an object store.
func NewSolutionStore(objects ObjectStore) *SolutionStore {
	return &SolutionStore{objects: objects, Clock: time.Now}
}

func (s *SolutionStore) now() time.Time {
	return s.Clock().UTC().Truncate(time.Second)
}

func blobKey(id string) string { return solutionPrefix + id + ".json" }
func metaKey(id string) string { return metadataPrefix + id + ".json" }

func idFromMetaKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, metadataPrefix), ".json")
}

func idFromBlobKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, solutionPrefix), ".json")
}

// SaveOptions carries the caller-controlled persistence fields.
type SaveOptions struct {
	ID      string   // generated from content when empty
	Tags    []string // replaces the solution's tags when non-nil
	TTLDays int      // DefaultTTLDays when <= 0
}

// Save writes the solution blob and its metadata side-file and returns the
// id. A missing id is derived from the solution content, so re-saving the
// same result is idempotent. Saving an existing id overwrites it.
func (s *SolutionStore) Save(ctx context.Context, sol *solution.SupplyTreeSolution, opts SaveOptions) (string, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Save")
	defer timer.Stop()

	if sol == nil {
		return "", errors.New("save: nil solution")
	}

	ttl := opts.TTLDays
	if ttl <= 0 {
		ttl = DefaultTTLDays
	}
	sol.TTLDays = ttl
	if opts.Tags != nil {
		sol.Tags = opts.Tags
	}

	now := s.now()
	if sol.CreatedAt.IsZero() {
		sol.CreatedAt = now
	}
	sol.UpdatedAt = now
	sol.ExpiresAt = sol.CreatedAt.Add(time.Duration(ttl) * 24 * time.Hour)

	id := opts.ID
	if id == "" {
		id = sol.ID
	}
	explicit := id != ""
	if id == "" {
		sol.ID = ""
		unnamed, err := json.Marshal(sol)
		if err != nil {
			return "", fmt.Errorf("save: marshal solution: %w", err)
		}
		sum := sha256.Sum256(unnamed)
		id = "sol-" + hex.EncodeToString(sum[:])[:12]
	}
	sol.ID = id

	if explicit {
		if _, err := s.objects.Get(ctx, metaKey(id)); err == nil {
			logging.StoreDebug("Save overwrites existing solution %s", id)
		}
	}

	blob, err := json.MarshalIndent(sol, "", "  ")
	if err != nil {
		return "", fmt.Errorf("save: marshal solution: %w", err)
	}
	meta, err := json.MarshalIndent(solution.MetadataOf(sol), "", "  ")
	if err != nil {
		return "", fmt.Errorf("save: marshal metadata: %w", err)
	}

	// Blob before metadata: a listed id must have a loadable blob.
	if err := s.objects.Put(ctx, blobKey(id), blob); err != nil {
		return "", fmt.Errorf("save %s: %w", id, err)
	}
	if err := s.objects.Put(ctx, metaKey(id), meta); err != nil {
		return "", fmt.Errorf("save %s metadata: %w", id, err)
	}

	logging.Store("Saved solution %s (%d trees, %d bytes, ttl %dd)", id, len(sol.AllTrees), len(blob), ttl)
	logging.Audit().SolutionSaved(id, sol.OKHID, int64(len(blob)))
	return id, nil
}

// Load reads a solution blob by id.
func (s *SolutionStore) Load(ctx context.Context, id string) (*solution.SupplyTreeSolution, error) {
	data, err := s.objects.Get(ctx, blobKey(id))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	var sol solution.SupplyTreeSolution
	if err := json.Unmarshal(data, &sol); err != nil {
		return nil, fmt.Errorf("load %s: decode: %w", id, err)
	}
	return &sol, nil
}

// FreshnessInfo reports the staleness verdict attached to a load.
type FreshnessInfo struct {
	Stale     bool      `json:"stale"`
	Reason    string    `json:"reason,omitempty"`
	AgeDays   int       `json:"age_days"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoadWithMetadata reads a solution and, when validateFreshness is set,
// evaluates its staleness against the side-file. Stale solutions still load;
// the caller decides whether to re-match.
func (s *SolutionStore) LoadWithMetadata(ctx context.Context, id string, validateFreshness bool) (*solution.SupplyTreeSolution, *FreshnessInfo, error) {
	sol, err := s.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !validateFreshness {
		return sol, nil, nil
	}

	meta, err := s.loadMetadata(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s metadata: %w", id, err)
	}
	now := s.now()
	stale, reason := staleReason(meta, now, 0)
	return sol, &FreshnessInfo{
		Stale:     stale,
		Reason:    reason,
		AgeDays:   meta.AgeDays(now),
		ExpiresAt: meta.ExpiresAt,
	}, nil
}

func (s *SolutionStore) loadMetadata(ctx context.Context, id string) (*solution.Metadata, error) {
	data, err := s.objects.Get(ctx, metaKey(id))
	if err != nil {
		return nil, err
	}
	var meta solution.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// staleReason applies the staleness policy to a metadata record. The TTL
// verdict wins over a caller-supplied max age, which wins over the absolute
// expiry, so the reported reason names the tightest bound that tripped.
func staleReason(meta *solution.Metadata, now time.Time, maxAgeDays int) (bool, string) {
	age := meta.AgeDays(now)
	if meta.TTLDays > 0 && age > meta.TTLDays {
		return true, fmt.Sprintf("exceeded_ttl_%d_days", meta.TTLDays)
	}
	if maxAgeDays > 0 && age > maxAgeDays {
		return true, fmt.Sprintf("too_old_%d_days", maxAgeDays)
	}
	if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
		return true, "expired"
	}
	return false, ""
}

// IsStale evaluates one solution. A metadata record whose blob has gone
// missing cannot be validated and reports check_failed. maxAgeDays <= 0
// means no caller-supplied bound.
func (s *SolutionStore) IsStale(ctx context.Context, id string, maxAgeDays int) (bool, string, error) {
	meta, err := s.loadMetadata(ctx, id)
	if err != nil {
		return false, "", fmt.Errorf("is_stale %s: %w", id, err)
	}
	if _, err := s.objects.Get(ctx, blobKey(id)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, "check_failed", nil
		}
		return false, "", fmt.Errorf("is_stale %s: %w", id, err)
	}
	stale, reason := staleReason(meta, s.now(), maxAgeDays)
	return stale, reason, nil
}

// ExtendTTL adds days to a solution's TTL and expiry. Returns false without
// error when the id does not exist.
func (s *SolutionStore) ExtendTTL(ctx context.Context, id string, days int) (bool, error) {
	if days <= 0 {
		return false, fmt.Errorf("extend_ttl %s: days must be positive, got %d", id, days)
	}
	sol, err := s.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	sol.TTLDays += days
	if sol.ExpiresAt.IsZero() {
		sol.ExpiresAt = sol.CreatedAt.Add(time.Duration(sol.TTLDays) * 24 * time.Hour)
	} else {
		sol.ExpiresAt = sol.ExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
	}
	sol.UpdatedAt = s.now()

	blob, err := json.MarshalIndent(sol, "", "  ")
	if err != nil {
		return false, fmt.Errorf("extend_ttl %s: marshal: %w", id, err)
	}
	meta, err := json.MarshalIndent(solution.MetadataOf(sol), "", "  ")
	if err != nil {
		return false, fmt.Errorf("extend_ttl %s: marshal metadata: %w", id, err)
	}
	if err := s.objects.Put(ctx, blobKey(id), blob); err != nil {
		return false, fmt.Errorf("extend_ttl %s: %w", id, err)
	}
	if err := s.objects.Put(ctx, metaKey(id), meta); err != nil {
		return false, fmt.Errorf("extend_ttl %s metadata: %w", id, err)
	}
	logging.Store("Extended TTL of %s by %dd (now %dd, expires %s)", id, days, sol.TTLDays, sol.ExpiresAt.Format(time.RFC3339))
	return true, nil
}

// Delete removes a solution's metadata and blob. Metadata goes first so
// listings stop advertising an id before its blob disappears. Returns false
// without error when nothing was stored under the id.
func (s *SolutionStore) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	for _, key := range []string{metaKey(id), blobKey(id)} {
		err := s.objects.Delete(ctx, key)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrNotFound):
		default:
			logging.Audit().SolutionDeleted(id, false, err.Error())
			return deleted, fmt.Errorf("delete %s: %w", id, err)
		}
	}
	if deleted {
		logging.Store("Deleted solution %s", id)
		logging.Audit().SolutionDeleted(id, true, "")
	}
	return deleted, nil
}
