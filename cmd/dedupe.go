package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"datasetdedup/internal/config"
	"datasetdedup/internal/consolidate"
	"datasetdedup/internal/hash"
	"datasetdedup/internal/logging"
	"datasetdedup/internal/match"
	"datasetdedup/internal/models"
	"datasetdedup/internal/pipeline"
	"datasetdedup/internal/scan"
	"datasetdedup/internal/storage"
)

// logFileName is written into the audit root next to the output
const logFileName = "dedupe.log"

var (
	outputDir     string
	threshold     int
	workers       int
	naming        string
	noAuditCopies bool
	record        bool
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe [folder]",
	Short: "Deduplicate a folder of images",
	Long: `Scan a folder recursively, group duplicate images and write a
deduplicated copy of the dataset.

The run will:
1. Fingerprint every file (content hash + perceptual hash)
2. Group byte-identical files
3. Group perceptually similar files among the survivors
4. Copy one file per group plus every unique file into consolidated_files/
5. Copy group members into exact_duplicates/ and similar_files/ for review
6. Write duplicates_index.txt and master_file_index.txt

The source folder is never modified. The output folders must be empty or
absent: a rerun into the same audit root is refused, pick a new --output.
Exit status is 2 when some files could not be processed.

Example:
  datasetdedup dedupe ./raw
  datasetdedup dedupe ./raw --output ./clean --threshold 3
  datasetdedup dedupe ./raw --naming sequential --no-audit-copies`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Audit root to write (default from config, ./dedup_audit)")
	dedupeCmd.Flags().IntVarP(&threshold, "threshold", "t", match.DefaultThreshold, "Hamming distance threshold (0-64, lower = stricter)")
	dedupeCmd.Flags().IntVarP(&workers, "workers", "w", 8, "Number of parallel workers for hashing")
	dedupeCmd.Flags().StringVar(&naming, "naming", "", "Consolidated file naming: original or sequential")
	dedupeCmd.Flags().BoolVar(&noAuditCopies, "no-audit-copies", false, "Skip copying group members into the audit folders")
	dedupeCmd.Flags().BoolVar(&record, "record", true, "Record the run in the history database")
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyDedupeFlags(cmd, cfg, args); err != nil {
		return err
	}
	if cfg.Paths.InputDir == "" {
		return errors.New("no input folder given (argument or paths.input_dir)")
	}

	input, err := filepath.Abs(cfg.Paths.InputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", input)
	}
	root, err := filepath.Abs(cfg.Paths.AuditDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}
	if err := pipeline.CheckDisjoint(input, root); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, filepath.Join(root, logFileName))
	if err != nil {
		return err
	}
	defer closeLog()

	digest, _ := hash.ParseDigest(cfg.Hashing.ContentDigest)
	algorithm, _ := hash.ParseAlgorithm(cfg.Hashing.PerceptualAlgorithm)
	scheme, _ := consolidate.ParseNaming(cfg.Output.Naming)

	fmt.Printf("Scanning: %s\n", input)
	fmt.Printf("Output:   %s\n", root)
	fmt.Printf("Threshold: %d (Hamming distance), workers: %d\n\n", cfg.Dedup.PerceptualThreshold, cfg.Dedup.Workers)

	progress := newScanProgress(logging.NewProgressLogger(logger.With("component", "scan"), "hashing", 100))
	scanner := scan.NewScanner(
		scan.WithWorkers(cfg.Dedup.Workers),
		scan.WithHasher(hash.NewHasher(hash.WithDigest(digest), hash.WithAlgorithm(algorithm))),
		scan.WithLogger(logger.With("component", "scan")),
		scan.WithProgress(progress.update),
	)
	consolidator := consolidate.NewConsolidator(root,
		consolidate.WithNaming(scheme),
		consolidate.WithAuditCopies(cfg.Output.AuditCopies),
		consolidate.WithCopyWorkers(cfg.Dedup.CopyWorkers),
		consolidate.WithLogger(logger.With("component", "consolidate")),
	)

	opts := []pipeline.Option{
		pipeline.WithScanner(scanner),
		pipeline.WithPerceptualMatcher(match.NewPerceptualMatcher(cfg.Dedup.PerceptualThreshold)),
		pipeline.WithLogger(logger.With("component", "pipeline")),
	}
	if record {
		store, err := storage.NewStorage(cfg.Paths.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		opts = append(opts, pipeline.WithRecorder(store))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := pipeline.NewDriver(input, consolidator, opts...).Run(ctx)
	progress.finish()
	if err != nil {
		return fmt.Errorf("dedupe failed: %w", err)
	}

	printSummary(report)
	if report.Status() == models.StatusPartial {
		return errPartialRun
	}
	return nil
}

// applyDedupeFlags lets explicitly set flags override the config file
func applyDedupeFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	flags := cmd.Flags()
	if len(args) == 1 {
		cfg.Paths.InputDir = args[0]
	}
	if flags.Changed("output") {
		dir, err := config.ExpandPath(outputDir)
		if err != nil {
			return err
		}
		cfg.Paths.AuditDir = dir
	}
	if flags.Changed("threshold") {
		cfg.Dedup.PerceptualThreshold = threshold
	}
	if flags.Changed("workers") {
		cfg.Dedup.Workers = workers
	}
	if flags.Changed("naming") {
		cfg.Output.Naming = naming
	}
	if noAuditCopies {
		cfg.Output.AuditCopies = false
	}
	return cfg.Validate()
}

// scanProgress drives a progress bar on a terminal and periodic log lines
// otherwise. The scanner calls update from several workers.
type scanProgress struct {
	once   sync.Once
	bar    *progressbar.ProgressBar
	logger *logging.ProgressLogger
	tty    bool
}

func newScanProgress(logger *logging.ProgressLogger) *scanProgress {
	fd := os.Stderr.Fd()
	return &scanProgress{
		logger: logger,
		tty:    isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (p *scanProgress) update(scanned, total int, _ string) {
	if !p.tty {
		p.logger.Update(scanned, total)
		return
	}
	p.once.Do(func() {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Computing hashes"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	})
	_ = p.bar.Add(1)
}

func (p *scanProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

func printSummary(report *pipeline.Report) {
	s := report.Summary
	rows := [][]string{
		{"Scanned", strconv.Itoa(s.Scanned)},
		{"Fingerprinted", strconv.Itoa(s.Fingerprinted)},
		{"Unique", strconv.Itoa(s.Unique)},
		{"Representatives", strconv.Itoa(s.Representatives)},
		{"Duplicates removed", strconv.Itoa(s.Duplicates)},
		{"Exact groups", strconv.Itoa(s.ExactGroups)},
		{"Similar groups", strconv.Itoa(s.PerceptualGroups)},
		{"Consolidated", strconv.Itoa(s.Consolidated)},
	}
	if s.OrphanedGroups > 0 {
		rows = append(rows, []string{"Groups without kept copy", strconv.Itoa(s.OrphanedGroups)})
	}

	reasons := make([]string, 0, len(s.Skipped))
	for r := range s.Skipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		rows = append(rows, []string{"Skipped (" + r + ")", strconv.Itoa(s.Skipped[models.SkipReason(r)])})
	}

	fmt.Println("=== Dedupe Complete ===")
	fmt.Println(renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Printf("Status: %s\n", report.Status())
	fmt.Printf("Output: %s\n", report.Result.Dir)
	if report.RunID != "" {
		fmt.Printf("Run ID: %s\n", report.RunID)
		fmt.Printf("\nRun 'datasetdedup show %s' to see every file's disposition\n", shortID(report.RunID))
	}
}
