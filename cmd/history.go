package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"datasetdedup/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded dedupe runs",
	Long: `Show the most recent dedupe runs recorded in the history database.

Example:
  datasetdedup history          # Last 10 runs
  datasetdedup history -n 0     # All runs`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := storage.NewStorage(cfg.Paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		fmt.Println("Run 'datasetdedup dedupe <folder>' to deduplicate a folder.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
			run.Status,
			strconv.Itoa(run.Summary.Scanned),
			strconv.Itoa(run.Summary.Duplicates),
			strconv.Itoa(run.Summary.SkippedTotal()),
			strconv.Itoa(run.Threshold),
			run.InputDir,
		})
	}
	fmt.Println(renderTable(
		[]string{"Run", "Started", "Took", "Status", "Scanned", "Removed", "Skipped", "Threshold", "Input"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}
