// Package consolidate turns grouping results into the consolidated output
// directory, the audit group folders and the two index files.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"datasetdedup/internal/fileutil"
	"datasetdedup/internal/models"
)

// Output layout under the audit root
const (
	ExactDir        = "exact_duplicates"
	SimilarDir      = "similar_files"
	ConsolidatedDir = "consolidated_files"

	DuplicatesIndex = "duplicates_index.txt"
	MasterIndex     = "master_file_index.txt"
	OriginalPaths   = "original_paths.txt"
)

// Naming selects how consolidated copies are named
type Naming string

const (
	// NamingOriginal keeps the source base name and disambiguates collisions
	// with the content fingerprint.
	NamingOriginal Naming = "original"
	// NamingSequential numbers copies 00001.ext, 00002.ext, ...
	NamingSequential Naming = "sequential"
)

// ParseNaming validates a naming scheme from configuration
func ParseNaming(name string) (Naming, error) {
	switch n := Naming(strings.ToLower(strings.TrimSpace(name))); n {
	case NamingOriginal, NamingSequential:
		return n, nil
	case "":
		return NamingOriginal, nil
	default:
		return "", fmt.Errorf("unknown naming scheme %q (want original or sequential)", name)
	}
}

// Consolidator writes the deduplicated output under an audit root.
// Sources are only ever read.
type Consolidator struct {
	fs          afero.Fs
	root        string
	naming      Naming
	auditCopies bool
	workers     int
	logger      *slog.Logger
}

// Option configures a Consolidator
type Option func(*Consolidator)

// WithFs sets the filesystem used for both reading sources and writing output
func WithFs(fs afero.Fs) Option {
	return func(c *Consolidator) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// WithNaming sets the naming scheme for consolidated copies
func WithNaming(n Naming) Option {
	return func(c *Consolidator) {
		if n != "" {
			c.naming = n
		}
	}
}

// WithAuditCopies toggles copying group members into the audit folders.
// original_paths.txt is written either way.
func WithAuditCopies(enabled bool) Option {
	return func(c *Consolidator) {
		c.auditCopies = enabled
	}
}

// WithCopyWorkers bounds the number of concurrent copies
func WithCopyWorkers(n int) Option {
	return func(c *Consolidator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Consolidator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConsolidator creates a Consolidator writing under root
func NewConsolidator(root string, opts ...Option) *Consolidator {
	c := &Consolidator{
		fs:          afero.NewOsFs(),
		root:        root,
		naming:      NamingOriginal,
		auditCopies: true,
		workers:     4,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the audit root the consolidator writes under
func (c *Consolidator) Root() string {
	return c.root
}

// Result is the outcome of a consolidation that wrote its indices
type Result struct {
	Plan    *Plan
	Summary models.RunSummary
	Dir     string // consolidated_files directory
}

// Status returns success or partial depending on skips
func (r *Result) Status() models.RunStatus {
	return r.Summary.Status()
}

type copyJob struct {
	src  string
	dest string
}

// CheckOutput fails with ErrOutputNotEmpty when any output folder under the
// root already has entries. Old copies would otherwise sit next to the new
// ones and the indices would no longer describe the directory.
func (c *Consolidator) CheckOutput() error {
	for _, dir := range []string{ConsolidatedDir, ExactDir, SimilarDir} {
		path := filepath.Join(c.root, dir)
		if !fileutil.Exists(c.fs, path) {
			continue
		}
		empty, err := afero.IsEmpty(c.fs, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if !empty {
			return fmt.Errorf("%s: %w (choose a new output directory or remove it)", path, ErrOutputNotEmpty)
		}
	}
	return nil
}

// Consolidate copies every kept file, fills the audit folders and writes
// both indices. A failed copy downgrades that file to SKIPPED(copy_error);
// a non-empty output, a failed index write or a cancelled context fails the
// whole call.
func (c *Consolidator) Consolidate(ctx context.Context, plan *Plan) (*Result, error) {
	if plan == nil {
		return nil, fmt.Errorf("nil plan")
	}
	if err := c.CheckOutput(); err != nil {
		return nil, err
	}

	outDir := filepath.Join(c.root, ConsolidatedDir)
	if err := c.fs.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	kept := plan.Kept()
	c.assignNames(kept)

	jobs := make([]copyJob, len(kept))
	for i, e := range kept {
		jobs[i] = copyJob{src: e.Path, dest: filepath.Join(outDir, e.OutputName)}
	}
	errs, err := c.copyAll(ctx, jobs)
	if err != nil {
		return nil, err
	}
	for i, cerr := range errs {
		if cerr == nil {
			continue
		}
		e := kept[i]
		c.logger.Warn("copy failed", "path", e.Path, "dest", jobs[i].dest, "error", cerr)
		e.Disposition = models.DispositionSkipped
		e.Reason = models.SkipCopyError
		e.Kind = ""
		e.OutputName = ""
	}
	for _, g := range plan.OrphanedGroups() {
		c.logger.Warn("group left without a kept copy",
			"group", g.Dir(), "kind", g.Kind,
			"representative", g.Representative.Path, "members", len(g.Members))
	}

	if err := c.writeAudit(ctx, ExactDir, "_dup", plan.ExactGroups); err != nil {
		return nil, err
	}
	if err := c.writeAudit(ctx, SimilarDir, "_similar", plan.PerceptualGroups); err != nil {
		return nil, err
	}

	if err := c.writeLines(filepath.Join(outDir, DuplicatesIndex), duplicateLines(plan.Removed)); err != nil {
		return nil, err
	}
	if err := c.writeLines(filepath.Join(outDir, MasterIndex), masterLines(plan.Entries)); err != nil {
		return nil, err
	}

	return &Result{Plan: plan, Summary: plan.Summary(), Dir: outDir}, nil
}

// assignNames sets OutputName on every kept entry. Entries arrive sorted by
// path, so names are deterministic for a given input. CheckOutput has
// already guaranteed the directory holds nothing from an earlier run.
func (c *Consolidator) assignNames(kept []*models.FileEntry) {
	taken := map[string]bool{DuplicatesIndex: true, MasterIndex: true}
	available := func(name string) bool {
		return !taken[name]
	}

	seq := 0
	for _, e := range kept {
		var name string
		switch c.naming {
		case NamingSequential:
			ext := filepath.Ext(e.Path)
			for {
				seq++
				name = fmt.Sprintf("%05d%s", seq, ext)
				if available(name) {
					break
				}
			}
		default:
			name = filepath.Base(e.Path)
			if !available(name) {
				stem, ext := fileutil.SplitExt(name)
				name = fileutil.UniqueName(stem+"_"+shortHash(e.Record)+ext, available)
			}
		}
		taken[name] = true
		e.OutputName = name
	}
}

func shortHash(rec *models.ImageRecord) string {
	if rec == nil {
		return "nohash"
	}
	if len(rec.ContentHash) > 8 {
		return rec.ContentHash[:8]
	}
	return rec.ContentHash
}

// copyAll runs jobs on a bounded pool. errs[i] is the outcome of jobs[i];
// the returned error is set only when ctx is cancelled.
func (c *Consolidator) copyAll(ctx context.Context, jobs []copyJob) ([]error, error) {
	errs := make([]error, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fileutil.CopyFile(c.fs, job.src, job.dest); err != nil {
				errs[i] = fmt.Errorf("copy %s: %w: %w", job.src, ErrCopy, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return errs, nil
}

// writeAudit creates one folder per group holding a copy of every member
// and an original_paths.txt mapping audit names back to sources.
func (c *Consolidator) writeAudit(ctx context.Context, kindDir, suffix string, groups []*models.DuplicateGroup) error {
	var jobs []copyJob
	mappings := make(map[string][]string, len(groups))
	var order []string

	for _, g := range groups {
		groupDir := filepath.Join(c.root, kindDir, g.Dir())
		if err := c.fs.MkdirAll(groupDir, 0755); err != nil {
			return &IndexWriteError{Path: groupDir, Err: err}
		}

		used := make(map[string]bool)
		var lines []string
		for j, m := range g.Members {
			name := filepath.Base(m.Path)
			if used[name] {
				stem, ext := fileutil.SplitExt(name)
				name = fmt.Sprintf("%s%s%d%s", stem, suffix, j, ext)
			}
			name = fileutil.UniqueName(name, func(n string) bool { return !used[n] && n != OriginalPaths })
			used[name] = true

			lines = append(lines, fmt.Sprintf("%s => %s", name, m.Path))
			if c.auditCopies {
				jobs = append(jobs, copyJob{src: m.Path, dest: filepath.Join(groupDir, name)})
			}
		}
		mappings[groupDir] = lines
		order = append(order, groupDir)
	}

	errs, err := c.copyAll(ctx, jobs)
	if err != nil {
		return err
	}
	for i, cerr := range errs {
		if cerr != nil {
			c.logger.Warn("audit copy failed", "path", jobs[i].src, "dest", jobs[i].dest, "error", cerr)
		}
	}

	for _, dir := range order {
		if err := c.writeLines(filepath.Join(dir, OriginalPaths), mappings[dir]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consolidator) writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if err := afero.WriteFile(c.fs, path, []byte(b.String()), 0644); err != nil {
		return &IndexWriteError{Path: path, Err: err}
	}
	return nil
}

// duplicateLines renders "removed -> kept (KIND[ via intermediate])"
func duplicateLines(removed []models.RemovedEntry) []string {
	lines := make([]string, 0, len(removed))
	for _, r := range removed {
		kind := string(r.Kind)
		if r.Via != "" {
			kind += " via " + r.Via
		}
		lines = append(lines, fmt.Sprintf("%s -> %s (%s)", r.Removed, r.Representative, kind))
	}
	return lines
}

// masterLines renders "path -> LABEL[, representative][ => output name]"
func masterLines(entries []*models.FileEntry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := e.Path + " -> " + e.Label()
		if e.Representative != "" {
			line += ", " + e.Representative
			if e.Via != "" {
				line += " via " + e.Via
			}
		}
		if e.OutputName != "" {
			line += " => " + e.OutputName
		}
		lines = append(lines, line)
	}
	return lines
}
