package consolidate

import (
	"errors"
	"fmt"
)

var (
	// ErrCopy marks a file that could not be copied into the output
	ErrCopy = errors.New("copy error")
	// ErrIndexWrite marks a failure writing an index; it fails the run
	ErrIndexWrite = errors.New("index write error")
	// ErrOutputNotEmpty marks an audit root that already holds a run's output
	ErrOutputNotEmpty = errors.New("output directory is not empty")
)

// IndexWriteError reports an index or mapping file that could not be written
type IndexWriteError struct {
	Path string
	Err  error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("write index %s: %v", e.Path, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIndexWrite) match any IndexWriteError
func (e *IndexWriteError) Is(target error) bool { return target == ErrIndexWrite }
