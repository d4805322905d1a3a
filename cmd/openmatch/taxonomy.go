package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"openmatch/cmd/openmatch/ui"
	"openmatch/internal/orchestrator"
	"openmatch/internal/taxonomy"
)

// taxonomyCmd groups process-taxonomy inspection
var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Inspect the process taxonomy",
	Long: `Works against the taxonomy the matcher uses: the embedded table for the
configured domain, merged with the overlay file when one is configured.`,
}

var taxonomyNormalizeCmd = &cobra.Command{
	Use:   "normalize [term...]",
	Short: "Normalize raw process terms to canonical ids",
	Long: `Resolves each term through aliases and case folding. Terms the taxonomy
does not know are reported as unknown; matching treats those verbatim.

Examples:
  openmatch taxonomy normalize "CNC milling" 3d-printing
  openmatch taxonomy normalize https://en.wikipedia.org/wiki/Milling_(machining)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaxonomyNormalize,
}

var taxonomyShowCmd = &cobra.Command{
	Use:   "show [process]",
	Short: "Show the taxonomy, or one process and its relatives",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTaxonomyShow,
}

func init() {
	taxonomyCmd.AddCommand(taxonomyNormalizeCmd)
	taxonomyCmd.AddCommand(taxonomyShowCmd)
}

func loadTaxonomy() (*taxonomy.Table, error) {
	registry, err := orchestrator.NewTaxonomyRegistry(cfg.Taxonomy)
	if err != nil {
		return nil, err
	}
	return registry.Snapshot(), nil
}

func runTaxonomyNormalize(cmd *cobra.Command, args []string) error {
	table, err := loadTaxonomy()
	if err != nil {
		return err
	}

	styles := ui.DefaultStyles()
	t := ui.NewTable("", "TERM", "CANONICAL")
	for _, raw := range args {
		if id, ok := table.Normalize(raw); ok {
			t.AddRow(raw, string(id))
		} else {
			t.AddRow(raw, styles.Warning.Render("unknown"))
		}
	}
	fmt.Println(t.View(styles))
	return nil
}

func runTaxonomyShow(cmd *cobra.Command, args []string) error {
	table, err := loadTaxonomy()
	if err != nil {
		return err
	}

	styles := ui.DefaultStyles()
	if len(args) == 0 {
		fmt.Println(styles.Title.Render(fmt.Sprintf("Taxonomy: %s", table.Domain())))
		fmt.Println(styles.Muted.Render(fmt.Sprintf("%d known processes", table.Size())))
		return nil
	}

	id, ok := table.Normalize(args[0])
	if !ok {
		return fmt.Errorf("unknown process %q", args[0])
	}

	fmt.Println(styles.Title.Render(string(id)))
	if parent, ok := table.ParentOf(id); ok {
		fmt.Printf("  %s %s\n", styles.Bold.Render("parent:"), parent)
	}
	descendants := table.Descendants(id)
	if len(descendants) > 0 {
		fmt.Printf("  %s\n", styles.Bold.Render("descendants:"))
		for _, d := range descendants {
			fmt.Printf("    %s\n", d)
		}
	}
	return nil
}
