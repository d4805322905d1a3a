// Command openmatch matches open-hardware requirement manifests (OKH)
// against manufacturing facility listings (OKW) and manages the resulting
// supply-tree solutions.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"openmatch/internal/config"
	"openmatch/internal/logging"
)

const version = "0.9.0"

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	// Loaded configuration, available to every subcommand
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "openmatch",
	Short: "openmatch - distributed manufacturing matching engine",
	Long: `openmatch matches open-hardware designs against manufacturing facilities.

Given an OKH requirement manifest and a set of OKW facility listings, it
explodes the bill of materials, scores every component against every
facility through a pipeline of matching layers (exact, heuristic, nlp,
llm), and assembles a supply-tree solution: who builds what, in which
order, at what estimated cost and time.

Solutions can be persisted with a TTL and managed through the solutions
subcommands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = config.FindWorkspaceRoot()
			if err != nil {
				workspace = "."
			}
		}

		// File logging is gated by debug_mode in the workspace config;
		// a failure here never blocks the command.
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("audit logging unavailable", zap.Error(err))
		}

		cfg, err = config.Load(resolveConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the openmatch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("openmatch %s\n", version)
	},
}

// initCmd writes a default configuration into the workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration to <workspace>/.openmatch/config.yaml",
	Long: `Creates the .openmatch directory in the workspace and writes the
default configuration. Existing configuration is not overwritten.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Configuration already exists: %s\n", path)
		return nil
	}

	defaults := config.DefaultConfig()
	if err := defaults.Save(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	fmt.Println("Edit it to configure matching layers, the solution store, and backends.")
	return nil
}

// resolveConfigPath returns the explicit --config path or the workspace
// default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(workspace, ".openmatch", "config.yaml")
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.openmatch/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(solutionsCmd)
	rootCmd.AddCommand(taxonomyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
