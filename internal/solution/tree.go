// Package solution defines the supply-tree data model: the scored assignment
// of components to facilities, the solution aggregate with its dependency
// graph and production schedule, and the metadata projection used for
// listings. All money uses decimal arithmetic; timestamps are UTC.
package solution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductionStage places a tree within the build order of a product.
type ProductionStage string

const (
	StageComponent   ProductionStage = "component"
	StageSubAssembly ProductionStage = "sub-assembly"
	StageFinal       ProductionStage = "final"
)

// MatchType records which matching layer dominated a tree's score.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchHeuristic MatchType = "heuristic"
	MatchNLP       MatchType = "nlp"
	MatchLLM       MatchType = "llm"
	MatchMixed     MatchType = "mixed"
	MatchUnknown   MatchType = "unknown"
)

// SupplyTree is one scored assignment of a component to a facility.
type SupplyTree struct {
	ID string `json:"id"`

	ComponentID       string   `json:"component_id"`
	ComponentName     string   `json:"component_name"`
	ComponentQuantity float64  `json:"component_quantity,omitempty"`
	ComponentUnit     string   `json:"component_unit,omitempty"`
	ComponentPath     []string `json:"component_path,omitempty"`

	FacilityID      string          `json:"facility_id"`
	FacilityName    string          `json:"facility_name,omitempty"`
	Depth           int             `json:"depth"`
	ProductionStage ProductionStage `json:"production_stage"`

	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`

	EstimatedCost *decimal.Decimal `json:"estimated_cost,omitempty"`
	EstimatedTime Duration         `json:"estimated_time,omitempty"`

	MaterialsRequired []string `json:"materials_required,omitempty"`
	CapabilitiesUsed  []string `json:"capabilities_used,omitempty"`

	ParentTreeID string   `json:"parent_tree_id,omitempty"`
	ChildTreeIDs []string `json:"child_tree_ids,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`
	RequiredBy   []string `json:"required_by,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewTreeID returns a fresh tree identifier.
func NewTreeID() string {
	return "tree-" + uuid.NewString()
}

// Now returns the current UTC time at second precision, the resolution
// solutions are persisted with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Duration serializes a time.Duration as its string form ("2h30m0s") so
// persisted solutions stay human-readable. Numeric nanoseconds are accepted
// on decode.
type Duration time.Duration

// Std converts back to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return fmt.Errorf("duration: expected string or nanoseconds: %w", err)
	}
	*d = Duration(ns)
	return nil
}
