package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"openmatch/cmd/openmatch/ui"
	"openmatch/internal/orchestrator"
	"openmatch/internal/solution"
	"openmatch/internal/store"
)

var (
	solListOKH     string
	solListMode    string
	solListTag     string
	solListMinAge  int
	solListMaxAge  int
	solListStale   bool
	solListAll     bool
	solListSort    string
	solListDesc    bool
	solListLimit   int
	solListOffset  int
	solListJSON    bool
	solShowJSON    bool
	solShowFresh   bool
	solExtendDays  int
	solCleanAge    int
	solCleanBefore string
	solCleanDry    bool
	solCleanJSON   bool
	solArchAge     int
	solArchPrefix  string
)

// solutionsCmd groups the stored-solution operations
var solutionsCmd = &cobra.Command{
	Use:   "solutions",
	Short: "Inspect and manage stored solutions",
	Long: `Works against the configured solution store. Listings read only the
metadata side-files, so they stay fast regardless of solution size.`,
}

var solutionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored solutions",
	RunE:  runSolutionsList,
}

var solutionsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one stored solution",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolutionsShow,
}

var solutionsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a stored solution",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolutionsDelete,
}

var solutionsExtendCmd = &cobra.Command{
	Use:   "extend-ttl [id]",
	Short: "Extend a solution's TTL",
	Long:  `Adds days to the solution's TTL and pushes its expiry out by the same amount.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSolutionsExtend,
}

var solutionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale solutions and orphaned halves",
	RunE:  runSolutionsCleanup,
}

var solutionsArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move stale solutions into the archive prefix",
	RunE:  runSolutionsArchive,
}

func init() {
	solutionsListCmd.Flags().StringVar(&solListOKH, "okh", "", "Only solutions for this OKH id")
	solutionsListCmd.Flags().StringVar(&solListMode, "mode", "", "Only this matching mode (single-level, nested)")
	solutionsListCmd.Flags().StringVar(&solListTag, "tag", "", "Only solutions carrying this tag")
	solutionsListCmd.Flags().IntVar(&solListMinAge, "min-age", 0, "Only solutions at least this many days old")
	solutionsListCmd.Flags().IntVar(&solListMaxAge, "max-age", 0, "Only solutions at most this many days old")
	solutionsListCmd.Flags().BoolVar(&solListStale, "only-stale", false, "Only stale solutions")
	solutionsListCmd.Flags().BoolVar(&solListAll, "include-stale", false, "Include stale solutions")
	solutionsListCmd.Flags().StringVar(&solListSort, "sort", "", "Sort key: created_at, updated_at, expires_at, score, age_days")
	solutionsListCmd.Flags().BoolVar(&solListDesc, "desc", false, "Sort descending")
	solutionsListCmd.Flags().IntVar(&solListLimit, "limit", 0, "Stop after this many results (0 = all)")
	solutionsListCmd.Flags().IntVar(&solListOffset, "offset", 0, "Skip this many results")
	solutionsListCmd.Flags().BoolVar(&solListJSON, "json", false, "Print metadata as JSON")

	solutionsShowCmd.Flags().BoolVar(&solShowJSON, "json", false, "Print the solution as JSON")
	solutionsShowCmd.Flags().BoolVar(&solShowFresh, "check-freshness", false, "Report the solution's staleness alongside it")

	solutionsExtendCmd.Flags().IntVar(&solExtendDays, "days", store.DefaultTTLDays, "Days to add to the TTL")

	solutionsCleanupCmd.Flags().IntVar(&solCleanAge, "max-age", 0, "Also treat solutions older than this many days as stale (0 = config default)")
	solutionsCleanupCmd.Flags().StringVar(&solCleanBefore, "before", "", "Also remove solutions created before this date (YYYY-MM-DD)")
	solutionsCleanupCmd.Flags().BoolVar(&solCleanDry, "dry-run", false, "Report what would be removed without deleting")
	solutionsCleanupCmd.Flags().BoolVar(&solCleanJSON, "json", false, "Print the result as JSON")

	solutionsArchiveCmd.Flags().IntVar(&solArchAge, "max-age", 0, "Also treat solutions older than this many days as stale (0 = config default)")
	solutionsArchiveCmd.Flags().StringVar(&solArchPrefix, "prefix", "", "Extra path segment under archive/")

	solutionsCmd.AddCommand(solutionsListCmd)
	solutionsCmd.AddCommand(solutionsShowCmd)
	solutionsCmd.AddCommand(solutionsDeleteCmd)
	solutionsCmd.AddCommand(solutionsExtendCmd)
	solutionsCmd.AddCommand(solutionsCleanupCmd)
	solutionsCmd.AddCommand(solutionsArchiveCmd)
}

// openStore opens the configured solution store. The returned ObjectStore is
// the underlying handle; callers must Close it.
func openStore() (*store.SolutionStore, store.ObjectStore, error) {
	return orchestrator.OpenSolutionStore(cfg.Store)
}

func runSolutionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	solutions, objects, err := openStore()
	if err != nil {
		return err
	}
	defer objects.Close()

	opts := store.ListOptions{
		Filter: store.ListFilter{
			OKHID:        solListOKH,
			MatchingMode: solution.MatchingMode(solListMode),
			Tag:          solListTag,
			MinAgeDays:   solListMinAge,
			MaxAgeDays:   solListMaxAge,
			OnlyStale:    solListStale,
			IncludeStale: solListAll,
		},
		SortBy:     solListSort,
		Descending: solListDesc,
		Limit:      solListLimit,
		Offset:     solListOffset,
	}
	metas, err := solutions.List(ctx, opts)
	if err != nil {
		return err
	}

	if solListJSON {
		data, err := json.MarshalIndent(metas, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(metas) == 0 {
		fmt.Println("No solutions found.")
		return nil
	}

	styles := ui.DefaultStyles()
	now := time.Now().UTC()
	t := ui.NewTable(fmt.Sprintf("Solutions (%d)", len(metas)),
		"ID", "OKH", "MODE", "SCORE", "TREES", "AGE", "EXPIRES", "TAGS")
	for _, meta := range metas {
		okh := meta.OKHTitle
		if okh == "" {
			okh = meta.OKHID
		}
		t.AddRow(meta.ID, okh, string(meta.MatchingMode),
			fmt.Sprintf("%.2f", meta.Score),
			fmt.Sprintf("%d", meta.TreeCount),
			fmt.Sprintf("%dd", meta.AgeDays(now)),
			meta.ExpiresAt.Format(time.DateOnly),
			joinTags(meta.Tags))
	}
	fmt.Println(t.View(styles))
	return nil
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	out := tags[0]
	for _, tag := range tags[1:] {
		out += "," + tag
	}
	return out
}

func runSolutionsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	solutions, objects, err := openStore()
	if err != nil {
		return err
	}
	defer objects.Close()

	sol, fresh, err := solutions.LoadWithMetadata(ctx, args[0], solShowFresh)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("solution %s not found", args[0])
	}
	if err != nil {
		return err
	}

	if solShowJSON {
		payload := struct {
			Solution  *solution.SupplyTreeSolution `json:"solution"`
			Freshness *store.FreshnessInfo         `json:"freshness,omitempty"`
		}{sol, fresh}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printSolution(sol)
	if fresh != nil {
		styles := ui.DefaultStyles()
		if fresh.Stale {
			fmt.Println(styles.Warning.Render(
				fmt.Sprintf("Stale (%s), age %d days", fresh.Reason, fresh.AgeDays)))
		} else {
			fmt.Println(styles.Success.Render(
				fmt.Sprintf("Fresh, age %d days, expires %s", fresh.AgeDays, fresh.ExpiresAt.Format(time.DateOnly))))
		}
	}
	return nil
}

func runSolutionsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	solutions, objects, err := openStore()
	if err != nil {
		return err
	}
	defer objects.Close()

	deleted, err := solutions.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("Solution %s not found.\n", args[0])
		return nil
	}
	fmt.Printf("Deleted %s.\n", args[0])
	return nil
}

func runSolutionsExtend(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if solExtendDays <= 0 {
		return fmt.Errorf("--days must be positive, got %d", solExtendDays)
	}

	solutions, objects, err := openStore()
	if err != nil {
		return err
	}
	defer objects.Close()

	extended, err := solutions.ExtendTTL(ctx, args[0], solExtendDays)
	if err != nil {
		return err
	}
	if !extended {
		fmt.Printf("Solution %s not found.\n", args[0])
		return nil
	}
	fmt.Printf("Extended %s by %d days.\n", args[0], solExtendDays)
	return nil
}

func runSolutionsCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	solutions, objects, err := openStore()
	if err != nil {
		return err
	}
	defer objects.Close()

	opts := store.CleanupOptions{
		MaxAgeDays: solCleanAge,
		DryRun:     solCleanDry,
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = cfg.Store.MaxAgeDays
	}
	if solCleanBefore != "" {
		before, err := time.Parse(time.DateOnly, solCleanBefore)
		if err != nil {
			return fmt.Errorf("--before: %w", err)
		}
		opts.Before = before
	}

	result, err := solutions.CleanupStale(ctx, opts)
	if err != nil {
		return err
	}

	if solCleanJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	verb := "Removed"
	if solCleanDry {
		verb = "Would remove"
	}
	fmt.Printf("%s %d solutions (%d bytes).\n", verb, result.DeletedCount, result.FreedBytes)
	for _, id := range result.IDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func runSolutionsArchive(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	solutions, objects, err := openStore()
	if err != nil {
		return err
	}
	defer objects.Close()

	maxAge := solArchAge
	if maxAge == 0 {
		maxAge = cfg.Store.MaxAgeDays
	}
	result, err := solutions.ArchiveStale(ctx, maxAge, solArchPrefix)
	if err != nil {
		return err
	}

	fmt.Printf("Archived %d solutions.\n", result.MovedCount)
	for _, id := range result.IDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}
