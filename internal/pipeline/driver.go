// Package pipeline sequences one dedupe run: collect, scan, group,
// consolidate, publish and record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"datasetdedup/internal/consolidate"
	"datasetdedup/internal/match"
	"datasetdedup/internal/models"
	"datasetdedup/internal/scan"
	"datasetdedup/internal/storage"
)

// Collector populates the input directory before a run, e.g. a scraper.
type Collector interface {
	Collect(ctx context.Context, dir string) error
}

// Publisher ships the consolidated directory somewhere after a run.
type Publisher interface {
	Publish(ctx context.Context, consolidatedDir string) error
}

// Recorder keeps a history of runs
type Recorder interface {
	RecordRun(ctx context.Context, run *storage.Run, entries []*models.FileEntry) error
}

// ThresholdMatcher is a perceptual matcher that reports its threshold
type ThresholdMatcher interface {
	match.Matcher
	Threshold() int
}

// Driver runs the dedupe phases in order. Grouping starts only after every
// file has been fingerprinted.
type Driver struct {
	inputDir     string
	scanner      *scan.Scanner
	exact        match.Matcher
	perceptual   ThresholdMatcher
	consolidator *consolidate.Consolidator
	collector    Collector
	publisher    Publisher
	recorder     Recorder
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Driver
type Option func(*Driver)

// WithScanner sets the scanner
func WithScanner(s *scan.Scanner) Option {
	return func(d *Driver) {
		if s != nil {
			d.scanner = s
		}
	}
}

// WithPerceptualMatcher sets the perceptual matcher
func WithPerceptualMatcher(m ThresholdMatcher) Option {
	return func(d *Driver) {
		if m != nil {
			d.perceptual = m
		}
	}
}

// WithCollector runs c against the input directory before scanning
func WithCollector(c Collector) Option {
	return func(d *Driver) {
		d.collector = c
	}
}

// WithPublisher hands the consolidated directory to p after a run
func WithPublisher(p Publisher) Option {
	return func(d *Driver) {
		d.publisher = p
	}
}

// WithRecorder records every run, including failed ones
func WithRecorder(r Recorder) Option {
	return func(d *Driver) {
		d.recorder = r
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDriver creates a Driver that dedupes inputDir into c's audit root
func NewDriver(inputDir string, c *consolidate.Consolidator, opts ...Option) *Driver {
	d := &Driver{
		inputDir:     inputDir,
		scanner:      scan.NewScanner(),
		exact:        match.NewExactMatcher(),
		perceptual:   match.NewPerceptualMatcher(match.DefaultThreshold),
		consolidator: c,
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Report is the outcome of a run that wrote its indices
type Report struct {
	RunID   string // empty unless recorded
	Result  *consolidate.Result
	Summary models.RunSummary
}

// Status returns success or partial
func (r *Report) Status() models.RunStatus {
	return r.Summary.Status()
}

// Run executes one full dedupe run. A returned error is a hard failure; skips
// only make the report partial.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	if d.consolidator == nil {
		return nil, errors.New("no consolidator configured")
	}
	run := &storage.Run{
		InputDir:  d.inputDir,
		OutputDir: d.consolidator.Root(),
		Threshold: d.perceptual.Threshold(),
		StartedAt: d.now(),
	}

	result, err := d.run(ctx)
	run.FinishedAt = d.now()

	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		d.record(ctx, run, nil)
		return nil, err
	}

	run.Summary = result.Summary
	run.Status = string(result.Status())
	report := &Report{Result: result, Summary: result.Summary}
	if d.record(ctx, run, result.Plan.Entries) {
		report.RunID = run.ID
	}
	d.logSummary(result.Summary)
	return report, nil
}

func (d *Driver) run(ctx context.Context) (*consolidate.Result, error) {
	if err := CheckDisjoint(d.inputDir, d.consolidator.Root()); err != nil {
		return nil, err
	}
	// Fail before hashing anything when a previous run already wrote here
	if err := d.consolidator.CheckOutput(); err != nil {
		return nil, err
	}

	if d.collector != nil {
		d.logger.Info("collecting input", "dir", d.inputDir)
		if err := d.collector.Collect(ctx, d.inputDir); err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
	}

	d.logger.Info("scanning", "dir", d.inputDir)
	scanned, err := d.scanner.ScanFolder(ctx, d.inputDir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	d.logger.Info("fingerprinting complete",
		"scanned", scanned.Scanned(),
		"fingerprinted", len(scanned.Records),
		"skipped", len(scanned.Skipped))

	exactGroups, ungrouped := d.exact.Group(scanned.Records)
	d.logger.Info("exact grouping complete", "groups", len(exactGroups))

	// Removed exact members never take part in the perceptual pass
	candidates := make([]*models.ImageRecord, 0, len(ungrouped)+len(exactGroups))
	candidates = append(candidates, ungrouped...)
	for _, g := range exactGroups {
		candidates = append(candidates, g.Representative)
	}
	perceptualGroups, _ := d.perceptual.Group(candidates)
	d.logger.Info("perceptual grouping complete",
		"groups", len(perceptualGroups),
		"threshold", d.perceptual.Threshold())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := consolidate.BuildPlan(scanned.Records, scanned.Skipped, exactGroups, perceptualGroups)
	result, err := d.consolidator.Consolidate(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}

	if d.publisher != nil {
		d.logger.Info("publishing", "dir", result.Dir)
		if err := d.publisher.Publish(ctx, result.Dir); err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
	}
	return result, nil
}

// record stores the run when a recorder is configured. Recording failures
// are logged, never returned: the output on disk is already complete.
func (d *Driver) record(ctx context.Context, run *storage.Run, entries []*models.FileEntry) bool {
	if d.recorder == nil {
		return false
	}
	if err := d.recorder.RecordRun(context.WithoutCancel(ctx), run, entries); err != nil {
		d.logger.Warn("failed to record run", "error", err)
		return false
	}
	return true
}

func (d *Driver) logSummary(s models.RunSummary) {
	d.logger.Info("run complete",
		"status", s.Status(),
		"scanned", s.Scanned,
		"unique", s.Unique,
		"representatives", s.Representatives,
		"duplicates", s.Duplicates,
		"exact_groups", s.ExactGroups,
		"perceptual_groups", s.PerceptualGroups,
		"consolidated", s.Consolidated,
		"skipped", s.SkippedTotal())
	if s.OrphanedGroups > 0 {
		d.logger.Warn("groups left without a kept copy", "count", s.OrphanedGroups)
	}

	reasons := make([]string, 0, len(s.Skipped))
	for r := range s.Skipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		d.logger.Warn("skipped files", "reason", r, "count", s.Skipped[models.SkipReason(r)])
	}
}

// CheckDisjoint refuses an audit root inside (or equal to) the input tree,
// where a later run would scan its own output.
func CheckDisjoint(inputDir, root string) error {
	in, err := filepath.Abs(inputDir)
	if err != nil {
		return fmt.Errorf("resolve input dir: %w", err)
	}
	out, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	rel, err := filepath.Rel(in, out)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("output dir %s must not be inside input dir %s", root, inputDir)
	}
	return nil
}
