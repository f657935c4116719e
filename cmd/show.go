package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"datasetdedup/internal/models"
	"datasetdedup/internal/storage"
)

var (
	showDisposition string
	showJSON        bool
)

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the file dispositions of a recorded run",
	Long: `Show what a recorded run did with every file it scanned. The run id
may be abbreviated to any unique prefix.

Example:
  datasetdedup show 1f0c2a7e
  datasetdedup show 1f0c2a7e --disposition DUPLICATE
  datasetdedup show 1f0c2a7e --json > run.json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showDisposition, "disposition", "d", "", "Only show UNIQUE, REPRESENTATIVE, DUPLICATE or SKIPPED files")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(showCmd)
}

// runReport is the JSON shape of `show --json`
type runReport struct {
	Run   *storage.Run       `json:"run"`
	Files []*storage.RunFile `json:"files"`
}

func runShow(cmd *cobra.Command, args []string) error {
	disposition, err := parseDisposition(showDisposition)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := storage.NewStorage(cfg.Paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	run, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	files, err := store.GetRunFiles(cmd.Context(), run.ID, disposition)
	if err != nil {
		return fmt.Errorf("failed to get run files: %w", err)
	}

	if showJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runReport{Run: run, Files: files})
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.Status)
	fmt.Printf("Input:  %s\n", run.InputDir)
	fmt.Printf("Output: %s\n", run.OutputDir)
	if run.Error != "" {
		fmt.Printf("Error:  %s\n", run.Error)
	}
	fmt.Println()

	if len(files) == 0 {
		fmt.Println("No files.")
		return nil
	}

	rows := make([][]string, 0, len(files))
	for _, f := range files {
		detail := f.Representative
		switch {
		case f.Disposition == models.DispositionSkipped:
			detail = string(f.Reason)
		case f.Via != "":
			detail += " via " + filepath.Base(f.Via)
		}
		rows = append(rows, []string{f.Path, f.Label(), detail, f.OutputName, formatSize(f.FileSize)})
	}
	fmt.Println(renderTable(
		[]string{"File", "Disposition", "Kept / reason", "Output", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	fmt.Printf("%d files\n", len(files))
	return nil
}

func parseDisposition(s string) (models.Disposition, error) {
	d := models.Disposition(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case "", models.DispositionUnique, models.DispositionRepresentative, models.DispositionDuplicate, models.DispositionSkipped:
		return d, nil
	default:
		return "", fmt.Errorf("unknown disposition %q", s)
	}
}
