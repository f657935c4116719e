package hash

import (
	"errors"
	"fmt"

	"datasetdedup/internal/models"
)

var (
	// ErrDecode marks files that exist but are not decodable images
	ErrDecode = errors.New("decode error")
	// ErrUnsupportedFormat marks files whose extension has no decoder
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrRead marks files that could not be opened or read
	ErrRead = errors.New("read error")
)

// DecodeError reports an image that could not be decoded
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) match any DecodeError
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// SkipReasonFor maps a Compute error to the disposition reason it produces
func SkipReasonFor(err error) models.SkipReason {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return models.SkipUnsupportedFormat
	case errors.Is(err, ErrRead):
		return models.SkipReadError
	default:
		return models.SkipDecodeError
	}
}
