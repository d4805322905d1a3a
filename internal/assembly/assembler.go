// Package assembly links per-component supply trees into a full solution:
// parent/child linkage, the dependency graph, a staged production sequence,
// cost and time aggregates, and structural validation.
package assembly

import (
	"fmt"
	"sort"

	"openmatch/internal/logging"
	"openmatch/internal/resolver"
	"openmatch/internal/solution"
)

// Assembler turns matched components into a SupplyTreeSolution.
type Assembler struct {
	// ScoreAggregation selects how nested-mode scores are reduced:
	// "mean" (default) or "weighted" by component quantity.
	ScoreAggregation string
}

// New returns an Assembler with the given score aggregation mode.
func New(scoreAggregation string) *Assembler {
	return &Assembler{ScoreAggregation: scoreAggregation}
}

// Assemble builds a solution from components in leaves-first order, each
// carrying the trees the matcher produced for it. Components without trees
// are recorded as unmatched and invalidate the solution without aborting it;
// a dependency cycle aborts with CircularDependencyError and no solution.
func (a *Assembler) Assemble(components []*resolver.ComponentMatch, mode solution.MatchingMode) (*solution.SupplyTreeSolution, error) {
	timer := logging.StartTimer(logging.CategoryAssembly, "Assemble")
	defer timer.Stop()

	validation := &solution.ValidationResult{IsValid: true}
	now := solution.Now()
	sol := &solution.SupplyTreeSolution{
		MatchingMode:     mode,
		IsNested:         mode == solution.ModeNested,
		ComponentMapping: make(map[string][]string),
		Validation:       validation,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	byComponent := make(map[string][]*solution.SupplyTree, len(components))
	for _, comp := range components {
		id := comp.Component.EffectiveID()
		if len(comp.Trees) == 0 {
			validation.UnmatchedComponents = append(validation.UnmatchedComponents, id)
			validation.IsValid = false
			logging.AssemblyWarn("component %s has no matching facility", id)
			continue
		}
		comp.Matched = true
		byComponent[id] = comp.Trees
		for _, t := range comp.Trees {
			sol.AllTrees = append(sol.AllTrees, t)
			sol.ComponentMapping[id] = append(sol.ComponentMapping[id], t.ID)
		}
	}
	sort.Strings(validation.UnmatchedComponents)

	a.link(components, byComponent)

	for _, t := range sol.AllTrees {
		if t.Depth > 0 && len(t.ChildTreeIDs) > 0 {
			t.ProductionStage = solution.StageSubAssembly
		}
		t.ChildTreeIDs = dedupSorted(t.ChildTreeIDs)
		t.DependsOn = dedupSorted(t.DependsOn)
		t.RequiredBy = dedupSorted(t.RequiredBy)
		if t.Depth == 0 {
			sol.RootTreeIDs = append(sol.RootTreeIDs, t.ID)
		}
	}
	sort.Slice(sol.AllTrees, func(i, j int) bool { return sol.AllTrees[i].ID < sol.AllTrees[j].ID })
	sort.Strings(sol.RootTreeIDs)
	for id := range sol.ComponentMapping {
		sol.ComponentMapping[id] = dedupSorted(sol.ComponentMapping[id])
	}

	graph, missing := buildGraph(sol.AllTrees)
	sol.DependencyGraph = graph
	if len(missing) > 0 {
		validation.MissingDependencies = dedupSorted(missing)
		for _, dep := range validation.MissingDependencies {
			validation.AddError(fmt.Sprintf("depends_on references unknown tree %s", dep))
		}
	}

	ids := make([]string, 0, len(sol.AllTrees))
	for _, t := range sol.AllTrees {
		ids = append(ids, t.ID)
	}

	if cycle := detectCycle(ids, graph); cycle != nil {
		logging.AssemblyWarn("dependency cycle detected: %v", cycle)
		return nil, &CircularDependencyError{Cycle: cycle}
	}
	stages, err := layerStages(ids, graph)
	if err != nil {
		return nil, err
	}
	sol.ProductionSequence = stages

	a.validate(sol)

	total, unpriced := aggregateCost(sol.AllTrees)
	sol.TotalEstimatedCost = total
	if unpriced > 0 && len(sol.AllTrees) > 0 {
		validation.AddWarning(fmt.Sprintf("cost_missing: %d of %d trees have no estimated cost", unpriced, len(sol.AllTrees)))
	}
	sol.CriticalPathTime = criticalPathTime(sol.AllTrees, graph, len(stages))
	sol.Score = solutionScore(sol.AllTrees, mode, a.ScoreAggregation)

	logging.Assembly("assembled %d trees in %d stages, score %.2f, valid=%v",
		len(sol.AllTrees), len(stages), sol.Score, validation.IsValid)
	return sol, nil
}

// link wires each child tree to one tree of its parent component: the
// parent's tree on the same facility when there is one, otherwise the
// parent's lowest-confidence tree, the assignment that most needs its
// inputs secured. Linkage is kept one-to-one so parent_tree_id and
// child_tree_ids stay mutual.
func (a *Assembler) link(components []*resolver.ComponentMatch, byComponent map[string][]*solution.SupplyTree) {
	for _, comp := range components {
		if comp.ParentComponentID == "" || len(comp.Trees) == 0 {
			continue
		}
		parents := byComponent[comp.ParentComponentID]
		if len(parents) == 0 {
			// Parent component unmatched; its absence is already recorded.
			continue
		}
		for _, child := range comp.Trees {
			target := pickParent(parents, child.FacilityID)
			child.ParentTreeID = target.ID
			child.RequiredBy = append(child.RequiredBy, target.ID)
			target.ChildTreeIDs = append(target.ChildTreeIDs, child.ID)
			target.DependsOn = append(target.DependsOn, child.ID)
		}
	}
}

func pickParent(parents []*solution.SupplyTree, facilityID string) *solution.SupplyTree {
	for _, p := range parents {
		if p.FacilityID == facilityID {
			return p
		}
	}
	best := parents[0]
	for _, p := range parents[1:] {
		if p.Confidence < best.Confidence ||
			(p.Confidence == best.Confidence && p.FacilityID < best.FacilityID) {
			best = p
		}
	}
	return best
}

// validate checks structural consistency: mutual parent/child linkage,
// component mapping coverage, and confidence bounds. Findings land on the
// solution's ValidationResult.
func (a *Assembler) validate(sol *solution.SupplyTreeSolution) {
	idx := sol.Index()
	v := sol.Validation
	for _, t := range sol.AllTrees {
		if t.ParentTreeID != "" {
			parent, ok := idx[t.ParentTreeID]
			switch {
			case !ok:
				v.AddError(fmt.Sprintf("tree %s references missing parent %s", t.ID, t.ParentTreeID))
			case !containsString(parent.ChildTreeIDs, t.ID):
				v.AddError(fmt.Sprintf("tree %s not listed as child of parent %s", t.ID, t.ParentTreeID))
			}
		}
		for _, childID := range t.ChildTreeIDs {
			child, ok := idx[childID]
			switch {
			case !ok:
				v.AddError(fmt.Sprintf("tree %s lists missing child %s", t.ID, childID))
			case child.ParentTreeID != t.ID:
				v.AddError(fmt.Sprintf("child %s of tree %s points at parent %s", childID, t.ID, child.ParentTreeID))
			}
		}
		if _, ok := sol.ComponentMapping[t.ComponentID]; !ok {
			v.AddError(fmt.Sprintf("tree %s component %s missing from component mapping", t.ID, t.ComponentID))
		}
		if t.Confidence < 0 || t.Confidence > 1 {
			v.AddError(fmt.Sprintf("tree %s confidence %.3f out of range", t.ID, t.Confidence))
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
