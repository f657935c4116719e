package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	gohash "hash"
	"image"
	"math/bits"
	"os"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/twmb/murmur3"

	"datasetdedup/internal/models"
)

// Digest selects the exact content fingerprint
type Digest string

const (
	DigestMurmur3 Digest = "murmur3" // 128-bit MurmurHash3
	DigestSHA256  Digest = "sha256"
)

// Algorithm selects the perceptual fingerprint
type Algorithm string

const (
	AlgorithmPHash Algorithm = "phash"
	AlgorithmDHash Algorithm = "dhash"
	AlgorithmAHash Algorithm = "ahash"
)

// ParseDigest validates a digest name from configuration
func ParseDigest(name string) (Digest, error) {
	switch d := Digest(strings.ToLower(strings.TrimSpace(name))); d {
	case DigestMurmur3, DigestSHA256:
		return d, nil
	case "":
		return DigestMurmur3, nil
	default:
		return "", fmt.Errorf("unknown content digest %q (want murmur3 or sha256)", name)
	}
}

// ParseAlgorithm validates a perceptual algorithm name from configuration
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case AlgorithmPHash, AlgorithmDHash, AlgorithmAHash:
		return a, nil
	case "":
		return AlgorithmPHash, nil
	default:
		return "", fmt.Errorf("unknown perceptual algorithm %q (want phash, dhash or ahash)", name)
	}
}

func (d Digest) newHash() gohash.Hash {
	if d == DigestSHA256 {
		return sha256.New()
	}
	return murmur3.New128()
}

// Hasher computes content and perceptual fingerprints for images.
// It holds no mutable state and is safe for concurrent use.
type Hasher struct {
	digest    Digest
	algorithm Algorithm
	decoders  Registry
}

// Option configures a Hasher
type Option func(*Hasher)

// WithDigest sets the content digest
func WithDigest(d Digest) Option {
	return func(h *Hasher) {
		if d != "" {
			h.digest = d
		}
	}
}

// WithAlgorithm sets the perceptual hash algorithm
func WithAlgorithm(a Algorithm) Option {
	return func(h *Hasher) {
		if a != "" {
			h.algorithm = a
		}
	}
}

// WithRegistry replaces the decoder registry
func WithRegistry(r Registry) Option {
	return func(h *Hasher) {
		if r != nil {
			h.decoders = r
		}
	}
}

// NewHasher creates a new Hasher
func NewHasher(opts ...Option) *Hasher {
	h := &Hasher{
		digest:    DigestMurmur3,
		algorithm: AlgorithmPHash,
		decoders:  defaultRegistry,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Supports reports whether path has a registered decoder
func (h *Hasher) Supports(path string) bool {
	_, ok := h.decoders.Lookup(path)
	return ok
}

// Extensions lists the extensions this hasher can decode
func (h *Hasher) Extensions() []string {
	return h.decoders.Extensions()
}

// Compute fingerprints one image file.
// Errors match ErrUnsupportedFormat, ErrRead or ErrDecode.
func (h *Hasher) Compute(path string) (*models.ImageRecord, error) {
	decoder, ok := h.decoders.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w: %w", path, ErrRead, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w: %w", path, ErrRead, err)
	}
	if len(data) == 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("empty file")}
	}

	img, err := decoder.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	phash, err := h.PerceptualHash(img)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	bounds := img.Bounds()
	return &models.ImageRecord{
		Path:           path,
		ContentHash:    h.contentHash(data),
		PerceptualHash: phash,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		Format:         decoder.Format(),
		FileSize:       stat.Size(),
		ModTime:        stat.ModTime(),
		HasExif:        hasExif(data),
	}, nil
}

// PerceptualHash computes the 64-bit perceptual fingerprint of img
func (h *Hasher) PerceptualHash(img image.Image) (uint64, error) {
	var (
		ih  *goimagehash.ImageHash
		err error
	)
	switch h.algorithm {
	case AlgorithmDHash:
		ih, err = goimagehash.DifferenceHash(img)
	case AlgorithmAHash:
		ih, err = goimagehash.AverageHash(img)
	default:
		ih, err = goimagehash.PerceptionHash(img)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to compute %s: %w", h.algorithm, err)
	}
	return ih.GetHash(), nil
}

func (h *Hasher) contentHash(data []byte) string {
	d := h.digest.newHash()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// hasExif reports whether data carries a parseable EXIF block.
// goexif can panic on malformed TIFF headers; treat that as "no EXIF".
func hasExif(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, err := exif.Decode(bytes.NewReader(data))
	return err == nil
}

// HammingDistance calculates the Hamming distance between two hashes
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}
