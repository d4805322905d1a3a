package solution

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchingMode distinguishes a one-tree-per-facility shortlist from a full
// nested hierarchy.
type MatchingMode string

const (
	ModeSingleLevel MatchingMode = "single-level"
	ModeNested      MatchingMode = "nested"
)

// SupplyTreeSolution is the complete result of one match run.
//
// DependencyGraph maps a tree id to the ids it depends on (its
// prerequisites): a parent assembly depends on its child components, so
// leaves have empty entries and appear in the first production stage.
// ProductionSequence is a topological layering of that graph; trees within
// a stage can run in parallel.
type SupplyTreeSolution struct {
	ID           string       `json:"id"`
	MatchingMode MatchingMode `json:"matching_mode"`
	IsNested     bool         `json:"is_nested"`
	Score        float64      `json:"score"`

	AllTrees           []*SupplyTree       `json:"all_trees"`
	RootTreeIDs        []string            `json:"root_trees"`
	ComponentMapping   map[string][]string `json:"component_mapping"`
	DependencyGraph    map[string][]string `json:"dependency_graph"`
	ProductionSequence [][]string          `json:"production_sequence"`

	Validation *ValidationResult `json:"validation"`

	TotalEstimatedCost *decimal.Decimal `json:"total_estimated_cost,omitempty"`
	CriticalPathTime   string           `json:"critical_path_time,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	TTLDays  int            `json:"ttl_days,omitempty"`

	OKHID    string `json:"okh_id,omitempty"`
	OKHTitle string `json:"okh_title,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidationResult carries everything the assembler found wrong or suspect.
// A solution with IsValid=false is still returned; callers inspect this.
type ValidationResult struct {
	IsValid              bool       `json:"is_valid"`
	Errors               []string   `json:"errors,omitempty"`
	Warnings             []string   `json:"warnings,omitempty"`
	UnmatchedComponents  []string   `json:"unmatched_components,omitempty"`
	CircularDependencies [][]string `json:"circular_dependencies,omitempty"`
	MissingDependencies  []string   `json:"missing_dependencies,omitempty"`
}

// AddError records a validation error and marks the result invalid.
func (v *ValidationResult) AddError(msg string) {
	v.Errors = append(v.Errors, msg)
	v.IsValid = false
}

// AddWarning records a non-fatal finding.
func (v *ValidationResult) AddWarning(msg string) {
	v.Warnings = append(v.Warnings, msg)
}

// Index returns a tree-id lookup map over AllTrees.
func (s *SupplyTreeSolution) Index() map[string]*SupplyTree {
	idx := make(map[string]*SupplyTree, len(s.AllTrees))
	for _, t := range s.AllTrees {
		idx[t.ID] = t
	}
	return idx
}

// TreeByID finds a tree in AllTrees, or nil.
func (s *SupplyTreeSolution) TreeByID(id string) *SupplyTree {
	for _, t := range s.AllTrees {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// RootTrees resolves RootTreeIDs against AllTrees.
func (s *SupplyTreeSolution) RootTrees() []*SupplyTree {
	idx := s.Index()
	out := make([]*SupplyTree, 0, len(s.RootTreeIDs))
	for _, id := range s.RootTreeIDs {
		if t, ok := idx[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// FacilityCount counts distinct facilities across all trees.
func (s *SupplyTreeSolution) FacilityCount() int {
	seen := make(map[string]bool)
	for _, t := range s.AllTrees {
		seen[t.FacilityID] = true
	}
	return len(seen)
}

// ComponentCount counts distinct components across all trees.
func (s *SupplyTreeSolution) ComponentCount() int {
	return len(s.ComponentMapping)
}

// Age reports how long ago the solution was created, never negative.
func (s *SupplyTreeSolution) Age(now time.Time) time.Duration {
	age := now.Sub(s.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Metadata is the side-file projection of a solution; listings and
// staleness checks read only this.
type Metadata struct {
	ID           string       `json:"id"`
	OKHID        string       `json:"okh_id,omitempty"`
	OKHTitle     string       `json:"okh_title,omitempty"`
	MatchingMode MatchingMode `json:"matching_mode"`
	Score        float64      `json:"score"`

	FacilityCount  int `json:"facility_count"`
	ComponentCount int `json:"component_count"`
	TreeCount      int `json:"tree_count"`

	Tags    []string `json:"tags,omitempty"`
	TTLDays int      `json:"ttl_days"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MetadataOf projects a solution into its side-file form.
func MetadataOf(s *SupplyTreeSolution) *Metadata {
	return &Metadata{
		ID:             s.ID,
		OKHID:          s.OKHID,
		OKHTitle:       s.OKHTitle,
		MatchingMode:   s.MatchingMode,
		Score:          s.Score,
		FacilityCount:  s.FacilityCount(),
		ComponentCount: s.ComponentCount(),
		TreeCount:      len(s.AllTrees),
		Tags:           s.Tags,
		TTLDays:        s.TTLDays,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}

// AgeDays reports whole days since creation.
func (m *Metadata) AgeDays(now time.Time) int {
	age := now.Sub(m.CreatedAt)
	if age < 0 {
		return 0
	}
	return int(age.Hours() / 24)
}
