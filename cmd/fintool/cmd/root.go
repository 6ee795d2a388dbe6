// Package cmd provides CLI commands for fintool.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/fintool/pkg/config"
	"github.com/shunichi-ikebuchi/fintool/pkg/db"
	"github.com/shunichi-ikebuchi/fintool/pkg/store"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagging"
	"github.com/shunichi-ikebuchi/fintool/pkg/transaction"
)

var (
	cfgFile string
	debug   bool

	// cfg is loaded once per invocation in PersistentPreRun.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fintool",
	Short: "Track income and expenses, synced from bank notification emails",
	Long: `fintool is a personal finance record keeper.

It supports:
- Recording income and outcome transactions, partitioned by month
- Tagging transactions by matching their concept against tag rules
- Syncing transactions parsed from bank notification emails (Gmail)
- Monthly summaries and chart data per tag

Example:
  fintool tx add --type outcome --date 2024-01-15 --amount 120.50 --tags "food|uber"
  fintool sync run --email-type banamex --mailbox banamex
  fintool stats summary --from 2024-01-01 --to 2024-03-31`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load(getConfigFile())
		if err != nil {
			// logging is not configured yet
			fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
			os.Exit(1)
		}

		// Setup logging
		logLevel := cfg.LogLevel
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(settingCmd)
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}

// workspace holds the components one command works with.
type workspace struct {
	store        store.Store
	transactions *transaction.Manager
	tags         *tagging.Manager
}

// openWorkspace opens the record store under the configured home.
func openWorkspace() *workspace {
	exitOnError(cfg.Validate([]string{"fintool", "home"}, []string{"fintool", "dbType"}), "invalid configuration")

	logger := slog.Default()
	slog.Debug("Opening record store", "type", cfg.DBType, "home", cfg.Home)
	s, err := store.New(cfg.DBType, cfg.Paths(), logger)
	exitOnError(err, "failed to open record store")

	return &workspace{
		store:        s,
		transactions: transaction.NewManager(s, logger),
		tags:         tagging.NewManager(s, logger),
	}
}

func (w *workspace) Close() {
	if err := w.store.Close(); err != nil {
		slog.Warn("Failed to close record store", "error", err)
	}
}

// openHistory opens the sync history database.
func openHistory() *db.SyncHistory {
	dbPath := cfg.Paths().GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)

	history, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	return history
}
