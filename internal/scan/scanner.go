package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"datasetdedup/internal/hash"
	"datasetdedup/internal/models"
)

// Result holds every file seen by a scan: fingerprinted records and skips.
// Both slices are sorted by path.
type Result struct {
	Records []*models.ImageRecord
	Skipped []models.SkippedFile
}

// Scanned returns the number of files the scan looked at
func (r *Result) Scanned() int {
	return len(r.Records) + len(r.Skipped)
}

// Scanner scans folders for images and computes hashes
type Scanner struct {
	hasher     *hash.Hasher
	workers    int
	logger     *slog.Logger
	progressFn func(scanned, total int, current string)
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithHasher sets the hasher used for every file
func WithHasher(h *hash.Hasher) Option {
	return func(s *Scanner) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithLogger sets the logger for per-file skip reports
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress sets a progress callback. It may be called from several
// goroutines at once.
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		hasher:  hash.NewHasher(),
		workers: 8,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// partial is one worker's private accumulator
type partial struct {
	records []*models.ImageRecord
	skipped []models.SkippedFile
}

// ScanFolder fingerprints every regular file under folder. Files that cannot
// be fingerprinted, and entries that are not regular files, are returned in
// Result.Skipped; only a missing folder or a cancelled context fails the scan.
func (s *Scanner) ScanFolder(ctx context.Context, folder string) (*Result, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", folder)
	}

	s.logger.Debug("walking folder", "folder", folder, "formats", s.hasher.Extensions())
	var (
		paths       []string
		walkSkipped []models.SkippedFile
	)
	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == folder {
				return err
			}
			walkSkipped = append(walkSkipped, models.SkippedFile{Path: path, Reason: models.SkipReadError, Err: err.Error()})
			s.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case d.IsDir():
		case !d.Type().IsRegular():
			// symlinks, sockets and devices are never followed or read
			walkSkipped = append(walkSkipped, models.SkippedFile{Path: path, Reason: models.SkipUnsupportedFormat, Err: "not a regular file"})
			s.logger.Warn("skipping file", "path", path, "reason", models.SkipUnsupportedFormat, "type", d.Type().String())
		case !s.hasher.Supports(path):
			walkSkipped = append(walkSkipped, models.SkippedFile{Path: path, Reason: models.SkipUnsupportedFormat, Err: hash.ErrUnsupportedFormat.Error()})
			s.logger.Warn("skipping file", "path", path, "reason", models.SkipUnsupportedFormat)
		default:
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}

	result := &Result{Skipped: walkSkipped}
	if len(paths) == 0 {
		sortSkipped(result.Skipped)
		return result, nil
	}

	var (
		scanned  int64
		total    = len(paths)
		workers  = min(s.workers, total)
		partials = make([]partial, workers)
		work     = make(chan string)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for _, p := range paths {
			select {
			case work <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		acc := &partials[i]
		g.Go(func() error {
			for path := range work {
				if err := gctx.Err(); err != nil {
					return err
				}
				s.scanOne(path, acc)
				n := atomic.AddInt64(&scanned, 1)
				if s.progressFn != nil {
					s.progressFn(int(n), total, path)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// All fingerprints are available; merge the private accumulators.
	for _, p := range partials {
		result.Records = append(result.Records, p.records...)
		result.Skipped = append(result.Skipped, p.skipped...)
	}
	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].Path < result.Records[j].Path
	})
	sortSkipped(result.Skipped)

	return result, nil
}

func sortSkipped(skipped []models.SkippedFile) {
	sort.Slice(skipped, func(i, j int) bool {
		return skipped[i].Path < skipped[j].Path
	})
}

func (s *Scanner) scanOne(path string, acc *partial) {
	rec, err := s.hasher.Compute(path)
	if err != nil {
		reason := hash.SkipReasonFor(err)
		acc.skipped = append(acc.skipped, models.SkippedFile{Path: path, Reason: reason, Err: err.Error()})
		s.logger.Warn("skipping file", "path", path, "reason", reason, "error", err)
		return
	}
	acc.records = append(acc.records, rec)
}
