package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"datasetdedup/internal/config"
	"datasetdedup/internal/logging"
)

// errPartialRun marks a run that finished with skipped files
var errPartialRun = errors.New("run finished with skipped files")

var (
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "datasetdedup",
	Short: "Deduplicate and consolidate image datasets",
	Long: `datasetdedup finds exact and near-duplicate images in a dataset folder and
writes a deduplicated copy of it, together with an audit trail of every
file that was left out and why.

Byte-identical files are grouped by a content hash. Remaining files are
grouped by perceptual hash (pHash) when their Hamming distance is within
the threshold. The source folder is never modified.

Example usage:
  datasetdedup dedupe ./raw                    # Write ./dedup_audit
  datasetdedup dedupe ./raw -o ./out -t 3      # Stricter similarity
  datasetdedup history                         # Recorded runs
  datasetdedup show <run-id> -d DUPLICATE      # What a run removed
  datasetdedup config init                     # Write a sample config`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Exit status is 0 on success, 2 when the
// run completed with skipped files and 1 on failure.
func Execute() {
	err := rootCmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, errPartialRun):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./datasetdedup.toml or ~/.config/datasetdedup/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the run history database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the config file and applies the persistent flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		if cfg.Paths.DBPath, err = config.ExpandPath(dbPath); err != nil {
			return nil, err
		}
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = strings.ToLower(logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger for cfg, also writing to any extra files
func newLogger(cfg *config.Config, files ...string) (*slog.Logger, func() error, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: append([]string{"stderr"}, files...),
	})
}
