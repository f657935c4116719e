package models

import (
	"fmt"
	"time"
)

// ImageRecord holds fingerprints and metadata for one scanned image
type ImageRecord struct {
	Path           string    `json:"path"`
	ContentHash    string    `json:"content_hash"`    // exact digest of the file bytes (hex)
	PerceptualHash uint64    `json:"perceptual_hash"` // 64-bit perceptual fingerprint
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Format         string    `json:"format"`
	FileSize       int64     `json:"file_size"`
	ModTime        time.Time `json:"mod_time"`
	HasExif        bool      `json:"has_exif"`
}

// GroupKind tells which similarity notion formed a group
type GroupKind string

const (
	KindExact      GroupKind = "EXACT"
	KindPerceptual GroupKind = "PERCEPTUAL"
)

// DuplicateGroup represents a set of equivalent images
type DuplicateGroup struct {
	ID             int            `json:"id"`
	Kind           GroupKind      `json:"kind"`
	Members        []*ImageRecord `json:"members"`        // sorted by path
	Representative *ImageRecord   `json:"representative"` // member kept in the output
	Removed        []*ImageRecord `json:"removed"`        // members excluded from the output
}

// Dir returns the audit directory name for the group, e.g. group_0003
func (g *DuplicateGroup) Dir() string {
	return fmt.Sprintf("group_%04d", g.ID)
}

// Disposition is the final classification of a scanned file
type Disposition string

const (
	DispositionUnique         Disposition = "UNIQUE"
	DispositionRepresentative Disposition = "REPRESENTATIVE"
	DispositionDuplicate      Disposition = "DUPLICATE"
	DispositionSkipped        Disposition = "SKIPPED"
)

// SkipReason explains why a file did not reach the consolidated output
type SkipReason string

const (
	SkipDecodeError       SkipReason = "decode_error"
	SkipUnsupportedFormat SkipReason = "unsupported_format"
	SkipReadError         SkipReason = "read_error"
	SkipCopyError         SkipReason = "copy_error"
)

// SkippedFile is a scanned file that could not be fingerprinted
type SkippedFile struct {
	Path   string     `json:"path"`
	Reason SkipReason `json:"reason"`
	Err    string     `json:"error,omitempty"`
}

// FileEntry is one line of the master file index
type FileEntry struct {
	Path           string       `json:"path"`
	Disposition    Disposition  `json:"disposition"`
	Reason         SkipReason   `json:"reason,omitempty"`
	Kind           GroupKind    `json:"kind,omitempty"`           // group kind for REPRESENTATIVE and DUPLICATE
	Representative string       `json:"representative,omitempty"` // kept file for DUPLICATE
	Via            string       `json:"via,omitempty"`            // exact representative that was itself subsumed
	OutputName     string       `json:"output_name,omitempty"`    // name inside consolidated_files
	Record         *ImageRecord `json:"-"`
}

// Kept reports whether the file belongs in the consolidated output
func (e *FileEntry) Kept() bool {
	return e.Disposition == DispositionUnique || e.Disposition == DispositionRepresentative
}

// Label renders the disposition with its qualifier, e.g. SKIPPED(decode_error)
func (e *FileEntry) Label() string {
	switch e.Disposition {
	case DispositionSkipped:
		return fmt.Sprintf("%s(%s)", e.Disposition, e.Reason)
	case DispositionRepresentative, DispositionDuplicate:
		return fmt.Sprintf("%s(%s)", e.Disposition, e.Kind)
	default:
		return string(e.Disposition)
	}
}

// RemovedEntry is one line of the duplicates index
type RemovedEntry struct {
	Removed        string    `json:"removed"`
	Representative string    `json:"representative"`
	Kind           GroupKind `json:"kind"`
	Via            string    `json:"via,omitempty"`
}

// RunSummary holds the counts reported at the end of a run
type RunSummary struct {
	Scanned          int                `json:"scanned"`
	Fingerprinted    int                `json:"fingerprinted"`
	Unique           int                `json:"unique"`
	Representatives  int                `json:"representatives"`
	Duplicates       int                `json:"duplicates"`
	ExactGroups      int                `json:"exact_groups"`
	PerceptualGroups int                `json:"perceptual_groups"`
	Consolidated     int                `json:"consolidated"`
	OrphanedGroups   int                `json:"orphaned_groups"` // groups whose kept file failed to copy
	Skipped          map[SkipReason]int `json:"skipped"`
}

// SkippedTotal returns the number of skipped files across all reasons
func (s *RunSummary) SkippedTotal() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// RunStatus is the overall outcome of a run that wrote its indices
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
)

// Status derives the run status from the skip counts
func (s *RunSummary) Status() RunStatus {
	if s.SkippedTotal() > 0 {
		return StatusPartial
	}
	return StatusSuccess
}
