// Package storage keeps a history of dedupe runs in SQLite.
// It is only written by runs and read by reporting commands; hashing never
// consults it.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"datasetdedup/internal/models"
)

// ErrRunNotFound is returned when no run matches an id
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded dedupe invocation
type Run struct {
	ID         string            `json:"id"`
	InputDir   string            `json:"input_dir"`
	OutputDir  string            `json:"output_dir"`
	Threshold  int               `json:"threshold"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Status     string            `json:"status"` // success, partial or failed
	Summary    models.RunSummary `json:"summary"`
	Error      string            `json:"error,omitempty"`
}

// RunFile is the recorded disposition of one scanned file
type RunFile struct {
	models.FileEntry
	ContentHash    string `json:"content_hash,omitempty"`
	PerceptualHash uint64 `json:"perceptual_hash,omitempty"`
	Format         string `json:"format,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	FileSize       int64  `json:"file_size,omitempty"`
	HasExif        bool   `json:"has_exif,omitempty"`
}

// Storage handles persistence of run history
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 3

// migrations upgrade databases created by older releases. The base schema
// already has every column, so on a fresh database each one is only recorded.
var migrations = []struct {
	version     int
	description string
	table       string // column added by up; skipped when present
	column      string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add via column for subsumed exact representatives",
		table:       "run_files",
		column:      "via",
		up:          `ALTER TABLE run_files ADD COLUMN via TEXT DEFAULT ''`,
	},
	{
		version:     3,
		description: "Add orphaned_groups count to runs",
		table:       "runs",
		column:      "orphaned_groups",
		up:          `ALTER TABLE runs ADD COLUMN orphaned_groups INTEGER NOT NULL DEFAULT 0`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	// Create schema_version table first
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Create base schema
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_dir TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		threshold INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		status TEXT NOT NULL,
		scanned INTEGER NOT NULL DEFAULT 0,
		fingerprinted INTEGER NOT NULL DEFAULT 0,
		unique_count INTEGER NOT NULL DEFAULT 0,
		representatives INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		exact_groups INTEGER NOT NULL DEFAULT 0,
		perceptual_groups INTEGER NOT NULL DEFAULT 0,
		consolidated INTEGER NOT NULL DEFAULT 0,
		orphaned_groups INTEGER NOT NULL DEFAULT 0,
		skipped TEXT NOT NULL DEFAULT '{}',
		error TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS run_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		disposition TEXT NOT NULL,
		reason TEXT DEFAULT '',
		kind TEXT DEFAULT '',
		representative TEXT DEFAULT '',
		via TEXT DEFAULT '',
		output_name TEXT DEFAULT '',
		content_hash TEXT DEFAULT '',
		perceptual_hash INTEGER DEFAULT 0,
		format TEXT DEFAULT '',
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		file_size INTEGER DEFAULT 0,
		has_exif INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_run_files_run_id ON run_files(run_id);
	CREATE INDEX IF NOT EXISTS idx_run_files_representative ON run_files(run_id, representative);
	`

	_, err = s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.up == "" {
			s.setSchemaVersion(m.version)
			continue
		}

		// Check if migration is needed (column might already exist)
		if m.column != "" && s.columnExists(m.table, m.column) {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.dbPath
}

// RecordRun stores a run and the disposition of every file it scanned.
// An empty run.ID is filled with a new UUID.
func (s *Storage) RecordRun(ctx context.Context, run *Run, entries []*models.FileEntry) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	skipped, err := json.Marshal(run.Summary.Skipped)
	if err != nil {
		return fmt.Errorf("failed to encode skip counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sum := run.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, input_dir, output_dir, threshold, started_at, finished_at, status,
			scanned, fingerprinted, unique_count, representatives, duplicates,
			exact_groups, perceptual_groups, consolidated, orphaned_groups, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.InputDir, run.OutputDir, run.Threshold,
		formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Status,
		sum.Scanned, sum.Fingerprinted, sum.Unique, sum.Representatives, sum.Duplicates,
		sum.ExactGroups, sum.PerceptualGroups, sum.Consolidated, sum.OrphanedGroups, string(skipped), run.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_files (run_id, path, disposition, reason, kind, representative, via, output_name,
			content_hash, perceptual_hash, format, width, height, file_size, has_exif)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var (
			contentHash   string
			hashInt       int64
			format        string
			width, height int
			fileSize      int64
			hasExifInt    int
		)
		if r := e.Record; r != nil {
			contentHash = r.ContentHash
			// Cast uint64 to int64 for SQLite compatibility
			hashInt = int64(r.PerceptualHash)
			format = r.Format
			width, height = r.Width, r.Height
			fileSize = r.FileSize
			if r.HasExif {
				hasExifInt = 1
			}
		}
		_, err := stmt.ExecContext(ctx,
			run.ID, e.Path, string(e.Disposition), string(e.Reason), string(e.Kind),
			e.Representative, e.Via, e.OutputName,
			contentHash, hashInt, format, width, height, fileSize, hasExifInt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file %s: %w", e.Path, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, input_dir, output_dir, threshold, started_at, finished_at, status,
	scanned, fingerprinted, unique_count, representatives, duplicates,
	exact_groups, perceptual_groups, consolidated, orphaned_groups, skipped, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var (
		started, finished string
		skipped           string
		errText           sql.NullString
	)
	sum := &run.Summary
	err := row.Scan(
		&run.ID, &run.InputDir, &run.OutputDir, &run.Threshold, &started, &finished, &run.Status,
		&sum.Scanned, &sum.Fingerprinted, &sum.Unique, &sum.Representatives, &sum.Duplicates,
		&sum.ExactGroups, &sum.PerceptualGroups, &sum.Consolidated, &sum.OrphanedGroups, &skipped, &errText,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.Error = errText.String
	if err := json.Unmarshal([]byte(skipped), &sum.Skipped); err != nil {
		return nil, fmt.Errorf("failed to decode skip counts for run %s: %w", run.ID, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose id equals or uniquely starts with id
func (s *Storage) GetRun(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ? OR substr(id, 1, ?) = ? LIMIT 2`,
		id, len(id), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	case 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("run id %q is ambiguous", id)
	}
}

// GetRunFiles returns the recorded files of a run sorted by path.
// A non-empty disposition filters the result.
func (s *Storage) GetRunFiles(ctx context.Context, runID string, disposition models.Disposition) ([]*RunFile, error) {
	query := `
		SELECT path, disposition, reason, kind, representative, via, output_name,
			content_hash, perceptual_hash, format, width, height, file_size, has_exif
		FROM run_files
		WHERE run_id = ?`
	args := []any{runID}
	if disposition != "" {
		query += ` AND disposition = ?`
		args = append(args, string(disposition))
	}
	query += ` ORDER BY path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run files: %w", err)
	}
	defer rows.Close()

	var files []*RunFile
	for rows.Next() {
		f := &RunFile{}
		var (
			disp, reason, kind string
			via                sql.NullString
			hashInt            int64
			hasExifInt         int
		)
		err := rows.Scan(
			&f.Path, &disp, &reason, &kind, &f.Representative, &via, &f.OutputName,
			&f.ContentHash, &hashInt, &f.Format, &f.Width, &f.Height, &f.FileSize, &hasExifInt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		f.Disposition = models.Disposition(disp)
		f.Reason = models.SkipReason(reason)
		f.Kind = models.GroupKind(kind)
		f.Via = via.String
		f.PerceptualHash = uint64(hashInt)
		f.HasExif = hasExifInt == 1
		files = append(files, f)
	}
	return files, rows.Err()
}

// timeLayout has fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
