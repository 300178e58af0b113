// Package main provides the notedeck CLI: a thin operational surface over
// the embedded persistence engine (database provisioning, inspection, and
// background-job queries).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notedeck/notedeck/internal/jobs"
	"github.com/notedeck/notedeck/internal/paths"
	"github.com/notedeck/notedeck/internal/sqlite"
	"github.com/notedeck/notedeck/internal/store"
	"github.com/notedeck/notedeck/pkg/types"
)

var (
	// configDir is set by the --config flag.
	configDir string

	// databaseURL is set by the --db flag and overrides the configured URL.
	databaseURL string

	// Process-wide collaborators, initialized on startup.
	logger  *zap.Logger
	pools   *sqlite.PoolManager
	repo    types.Repository
	tracker *jobs.Tracker
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "notedeck",
	Short: "Notedeck is an embedded notebook store",
	Long: `Notedeck manages the embedded database behind a research notebook:
notebooks, sources, notes and their relationships, plus durable records
for long-running background jobs.`,
	PersistentPreRunE: initStore,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeStore()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default: ~/.notedeck)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db", "", "database URL (default: "+paths.DefaultDatabaseURL+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(jobCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision the database schema",
	Long:  `Provision the embedded database and its schema at the configured path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Opening the store applies the domain schema; the job table is
		// provisioned separately because it is owned by the tracker.
		if err := tracker.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("provisioning job table: %w", err)
		}
		fmt.Println("Database initialized successfully")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("notedeck v0.1.0")
	},
}

// initStore loads configuration and wires the logger, pool manager,
// repository and job tracker.
func initStore(cmd *cobra.Command, args []string) error {
	// Version needs no backend.
	if cmd.Name() == "version" {
		return nil
	}

	v, err := loadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err = newLogger(v)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	cfg := types.Config{
		Kind:         v.GetString(cfgKeyDatabaseKind),
		URL:          paths.ResolveDatabaseURL(databaseURL, v.GetString(cfgKeyDatabaseURL)),
		MaxReaders:   v.GetInt(cfgKeyDatabaseMaxReaders),
		WriteTimeout: v.GetDuration(cfgKeyDatabaseWriteTimeout),
	}

	pools = sqlite.NewPoolManager()
	repo, err = store.Open(cfg, pools, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	tracker = jobs.NewTracker(repo, jobs.WithLogger(logger))
	return nil
}

// closeStore drains pending writes and releases every pool.
func closeStore() error {
	if pools != nil {
		if err := pools.CloseAll(); err != nil {
			return err
		}
	}
	if logger != nil {
		// Sync errors on stderr are expected on some platforms.
		_ = logger.Sync()
	}
	return nil
}
