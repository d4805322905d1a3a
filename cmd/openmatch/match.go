package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"openmatch/internal/okh"
	"openmatch/internal/okw"
	"openmatch/internal/orchestrator"
	"openmatch/internal/resolver"
)

var (
	matchFacilities     string
	matchMaxDepth       int
	matchAutoDepth      bool
	matchMinConfidence  float64
	matchTargetConf     float64
	matchLayers         []string
	matchScoreAgg       string
	matchSave           bool
	matchTags           []string
	matchTTLDays        int
	matchJSON           bool
	matchFacilityStatus []string
	matchFacilityAccess []string
)

// matchCmd runs one full match of a manifest against facilities
var matchCmd = &cobra.Command{
	Use:   "match [manifest]",
	Short: "Match an OKH manifest against facilities",
	Long: `Runs the full matching pipeline for one requirement manifest:

  1. Resolve: explode the bill of materials (embedded, external, referenced)
  2. Match: score each component against each facility through the
     enabled layers (exact, heuristic, nlp, llm)
  3. Assemble: link supply trees, schedule production stages, validate

The solution is printed as tables, or as JSON with --json. With --save it
is also persisted to the configured solution store.

Examples:
  openmatch match designs/solar-tracker.yaml --facilities facilities/
  openmatch match design.yaml --facilities okw/ --max-depth 3 --save
  openmatch match design.yaml --facilities okw/ --layers exact,heuristic`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().StringVarP(&matchFacilities, "facilities", "f", "", "Facility file or directory (required)")
	matchCmd.Flags().IntVar(&matchMaxDepth, "max-depth", 0, "BOM explosion depth; 0 = single-level")
	matchCmd.Flags().BoolVar(&matchAutoDepth, "auto-depth", true, "Lift depth 0 to the nested default when the manifest has sub-components")
	matchCmd.Flags().Float64Var(&matchMinConfidence, "min-confidence", 0, "Drop matches below this combined confidence")
	matchCmd.Flags().Float64Var(&matchTargetConf, "target-confidence", 0, "Stop the layer pipeline early at this confidence (0 = config default)")
	matchCmd.Flags().StringSliceVar(&matchLayers, "layers", nil, "Layers to run, comma-separated (exact,heuristic,nlp,llm)")
	matchCmd.Flags().StringVar(&matchScoreAgg, "score-aggregation", "", "Solution score aggregation: mean or weighted")
	matchCmd.Flags().BoolVar(&matchSave, "save", false, "Persist the solution to the configured store")
	matchCmd.Flags().StringSliceVar(&matchTags, "tag", nil, "Tags to store with the solution (repeatable)")
	matchCmd.Flags().IntVar(&matchTTLDays, "ttl-days", 0, "Solution TTL in days (0 = config default)")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "Print the solution as JSON")
	matchCmd.Flags().StringSliceVar(&matchFacilityStatus, "facility-status", nil, "Only facilities with these statuses (active, planned, inactive)")
	matchCmd.Flags().StringSliceVar(&matchFacilityAccess, "facility-access", nil, "Only facilities with these access types (public, membership, restricted)")
	matchCmd.MarkFlagRequired("facilities")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal, cancelling match")
			cancel()
		case <-ctx.Done():
		}
	}()

	manifestPath := args[0]
	baseDir := filepath.Dir(manifestPath)

	coord, err := orchestrator.FromConfig(cfg, okh.NewFileLoader(baseDir), resolver.NewFileBlobLoader(baseDir))
	if err != nil {
		return err
	}
	defer coord.Close()

	manifest, err := okh.NewFileLoader(baseDir).LoadManifest(ctx, manifestPath)
	if err != nil {
		return err
	}
	logger.Info("Manifest loaded",
		zap.String("id", manifest.ID),
		zap.String("title", manifest.Title),
		zap.String("bom", string(manifest.BOMType())))

	facilities, err := loadFacilities(ctx)
	if err != nil {
		return err
	}
	if len(facilities) == 0 {
		return fmt.Errorf("no facilities in %s match the filter", matchFacilities)
	}
	logger.Info("Facilities loaded", zap.Int("count", len(facilities)))

	opts := orchestrator.OptionsFromConfig(cfg)
	if cmd.Flags().Changed("max-depth") {
		opts.MaxDepth = matchMaxDepth
	}
	if cmd.Flags().Changed("auto-depth") {
		opts.AutoDetectDepth = matchAutoDepth
	}
	if cmd.Flags().Changed("min-confidence") {
		opts.MinConfidence = matchMinConfidence
	}
	if cmd.Flags().Changed("target-confidence") {
		opts.TargetConfidence = matchTargetConf
	}
	if len(matchLayers) > 0 {
		opts.EnabledLayers = matchLayers
	}
	if matchScoreAgg != "" {
		opts.ScoreAggregation = matchScoreAgg
	}
	if matchTTLDays > 0 {
		opts.TTLDays = matchTTLDays
	}
	opts.SaveSolution = matchSave
	opts.Tags = matchTags

	sol, err := coord.Match(ctx, manifest, facilities, opts)
	if err != nil && sol == nil {
		return err
	}
	// A save failure still yields the assembled solution; print it, then
	// report the error.

	if matchJSON {
		data, jsonErr := json.MarshalIndent(sol, "", "  ")
		if jsonErr != nil {
			return jsonErr
		}
		fmt.Println(string(data))
	} else {
		printSolution(sol)
		if matchSave && err == nil && sol.ID != "" {
			fmt.Printf("Saved as %s\n", sol.ID)
		}
	}
	return err
}

// loadFacilities reads the facility set named by --facilities, applying the
// status and access filters.
func loadFacilities(ctx context.Context) ([]*okw.Facility, error) {
	filter := okw.Filter{}
	for _, s := range matchFacilityStatus {
		filter.Statuses = append(filter.Statuses, okw.FacilityStatus(s))
	}
	for _, a := range matchFacilityAccess {
		filter.AccessTypes = append(filter.AccessTypes, okw.AccessType(a))
	}
	return okw.NewFileProvider(matchFacilities).ListFacilities(ctx, filter)
}
