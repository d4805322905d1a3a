package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"openmatch/cmd/openmatch/ui"
	"openmatch/internal/solution"
)

// printSolution renders a solution as styled tables: summary, trees,
// production sequence, then validation findings.
func printSolution(sol *solution.SupplyTreeSolution) {
	styles := ui.DefaultStyles()

	title := "Supply Tree Solution"
	if sol.OKHTitle != "" {
		title = fmt.Sprintf("Supply Tree Solution: %s", sol.OKHTitle)
	}
	fmt.Println(styles.Title.Render(title))
	if sol.ID != "" {
		fmt.Println(styles.Muted.Render(sol.ID))
	}
	fmt.Println()

	fmt.Println(summaryTable(sol).View(styles))
	fmt.Println(treesTable(sol).View(styles))

	if len(sol.ProductionSequence) > 0 {
		fmt.Println(styles.Subtitle.Render("Production Sequence"))
		printSequence(styles, sol)
		fmt.Println()
	}

	printValidation(styles, sol.Validation)
}

func summaryTable(sol *solution.SupplyTreeSolution) *ui.Table {
	t := ui.NewTable("Summary", "FIELD", "VALUE")
	t.AddRow("Score", fmt.Sprintf("%.2f", sol.Score))
	t.AddRow("Mode", string(sol.MatchingMode))
	t.AddRow("Trees", fmt.Sprintf("%d (%d roots)", len(sol.AllTrees), len(sol.RootTreeIDs)))
	t.AddRow("Facilities", fmt.Sprintf("%d", sol.FacilityCount()))
	t.AddRow("Components", fmt.Sprintf("%d", sol.ComponentCount()))
	if sol.TotalEstimatedCost != nil {
		t.AddRow("Estimated cost", sol.TotalEstimatedCost.StringFixed(2))
	}
	if sol.CriticalPathTime != "" {
		t.AddRow("Critical path", sol.CriticalPathTime)
	}
	if sol.Validation != nil {
		t.AddRow("Valid", fmt.Sprintf("%v", sol.Validation.IsValid))
	}
	if !sol.ExpiresAt.IsZero() {
		t.AddRow("Expires", sol.ExpiresAt.Format(time.DateOnly))
	}
	return t
}

func treesTable(sol *solution.SupplyTreeSolution) *ui.Table {
	trees := make([]*solution.SupplyTree, len(sol.AllTrees))
	copy(trees, sol.AllTrees)
	sort.SliceStable(trees, func(i, j int) bool {
		if trees[i].Depth != trees[j].Depth {
			return trees[i].Depth < trees[j].Depth
		}
		return trees[i].ComponentID < trees[j].ComponentID
	})

	t := ui.NewTable("Supply Trees", "COMPONENT", "FACILITY", "STAGE", "CONF", "MATCH", "COST", "TIME")
	for _, tree := range trees {
		name := tree.ComponentName
		if name == "" {
			name = tree.ComponentID
		}
		if tree.Depth > 0 {
			name = strings.Repeat("  ", tree.Depth) + name
		}
		facility := tree.FacilityName
		if facility == "" {
			facility = tree.FacilityID
		}
		cost := ""
		if tree.EstimatedCost != nil {
			cost = tree.EstimatedCost.StringFixed(2)
		}
		dur := ""
		if tree.EstimatedTime != 0 {
			dur = tree.EstimatedTime.String()
		}
		t.AddRow(name, facility, string(tree.ProductionStage),
			fmt.Sprintf("%.2f", tree.Confidence), string(tree.MatchType), cost, dur)
	}
	return t
}

func printSequence(styles ui.Styles, sol *solution.SupplyTreeSolution) {
	idx := sol.Index()
	for i, stage := range sol.ProductionSequence {
		names := make([]string, 0, len(stage))
		for _, id := range stage {
			if tree, ok := idx[id]; ok && tree.ComponentName != "" {
				names = append(names, tree.ComponentName)
			} else if ok {
				names = append(names, tree.ComponentID)
			} else {
				names = append(names, id)
			}
		}
		label := styles.Bold.Render(fmt.Sprintf("Stage %d:", i+1))
		fmt.Printf("  %s %s\n", label, strings.Join(names, ", "))
	}
}

func printValidation(styles ui.Styles, v *solution.ValidationResult) {
	if v == nil {
		return
	}
	for _, msg := range v.Errors {
		fmt.Println(styles.Error.Render("error: " + msg))
	}
	for _, msg := range v.Warnings {
		fmt.Println(styles.Warning.Render("warning: " + msg))
	}
	if len(v.UnmatchedComponents) > 0 {
		fmt.Println(styles.Warning.Render(
			"unmatched components: " + strings.Join(v.UnmatchedComponents, ", ")))
	}
	for _, cycle := range v.CircularDependencies {
		fmt.Println(styles.Error.Render(
			"circular dependency: " + strings.Join(cycle, " -> ")))
	}
	if v.IsValid && len(v.Warnings) == 0 {
		fmt.Println(styles.Success.Render("Solution valid"))
	}
}
