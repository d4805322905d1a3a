package assembly

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"openmatch/internal/solution"
)

// aggregateCost sums estimated costs across trees. Trees without a cost do
// not block the sum; the caller reports how many were missing. Returns nil
// when no tree carries a cost at all.
func aggregateCost(trees []*solution.SupplyTree) (total *decimal.Decimal, missing int) {
	sum := decimal.Zero
	priced := 0
	for _, t := range trees {
		if t.EstimatedCost == nil {
			missing++
			continue
		}
		sum = sum.Add(*t.EstimatedCost)
		priced++
	}
	if priced == 0 {
		return nil, missing
	}
	return &sum, missing
}

// criticalPathTime computes the longest prerequisite chain through the
// trees, weighted by estimated production time. A tree cannot start until
// all of its prerequisites finish, so its finish time is its own duration
// plus the slowest prerequisite's finish. When no tree carries a duration
// the stage count stands in for a time estimate.
func criticalPathTime(trees []*solution.SupplyTree, graph map[string][]string, stageCount int) string {
	if len(trees) == 0 {
		return ""
	}

	durations := make(map[string]time.Duration, len(trees))
	anyTimed := false
	for _, t := range trees {
		d := t.EstimatedTime.Std()
		durations[t.ID] = d
		if d > 0 {
			anyTimed = true
		}
	}
	if !anyTimed {
		return fmt.Sprintf("%d stages", stageCount)
	}

	// Memoized finish times; the graph is acyclic by the time we get here.
	finish := make(map[string]time.Duration, len(trees))
	var finishOf func(id string) time.Duration
	finishOf = func(id string) time.Duration {
		if f, ok := finish[id]; ok {
			return f
		}
		var slowest time.Duration
		for _, dep := range graph[id] {
			if f := finishOf(dep); f > slowest {
				slowest = f
			}
		}
		f := durations[id] + slowest
		finish[id] = f
		return f
	}

	var longest time.Duration
	for _, t := range trees {
		if f := finishOf(t.ID); f > longest {
			longest = f
		}
	}
	return longest.String()
}

// solutionScore reduces per-tree confidences to one number. A single-level
// run is a shortlist of alternatives, so the best candidate is the score. A
// nested run needs every assignment to work, so the score averages across
// trees; weighted aggregation lets high-quantity components count more.
func solutionScore(trees []*solution.SupplyTree, mode solution.MatchingMode, aggregation string) float64 {
	if len(trees) == 0 {
		return 0
	}

	if mode == solution.ModeSingleLevel {
		best := 0.0
		for _, t := range trees {
			if t.Confidence > best {
				best = t.Confidence
			}
		}
		return best
	}

	if aggregation == "weighted" {
		var sum, weights float64
		for _, t := range trees {
			q := t.ComponentQuantity
			if q <= 0 {
				q = 1
			}
			sum += t.Confidence * q
			weights += q
		}
		if weights > 0 {
			return sum / weights
		}
	}

	var sum float64
	for _, t := range trees {
		sum += t.Confidence
	}
	return sum / float64(len(trees))
}
