// Package testutil generates image fixtures for tests.
package testutil

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

// Blocks returns an opaque size x size image made of 8x8 random gray blocks.
// Equal seeds give identical pixels.
func Blocks(seed int64, size int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	levels := make([]uint8, 64)
	for i := range levels {
		levels[i] = uint8(rng.Intn(256))
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := size / 8
	if cell == 0 {
		cell = 1
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			bx, by := min(x/cell, 7), min(y/cell, 7)
			v := levels[by*8+bx]
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// Gradient returns a horizontal gradient image
func Gradient(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(x * 255 / size)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// WritePNG encodes img as PNG at dir/name and returns the path
func WritePNG(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()
	return write(t, dir, name, func(f *os.File) error { return png.Encode(f, img) })
}

// WriteJPEG encodes img as JPEG at dir/name and returns the path
func WriteJPEG(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()
	return write(t, dir, name, func(f *os.File) error {
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	})
}

// WriteBMP encodes img as BMP at dir/name and returns the path
func WriteBMP(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()
	return write(t, dir, name, func(f *os.File) error { return bmp.Encode(f, img) })
}

// WriteBytes writes raw bytes at dir/name and returns the path
func WriteBytes(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// CopyFile duplicates src byte for byte at dir/name
func CopyFile(t testing.TB, src, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("failed to read %s: %v", src, err)
	}
	return WriteBytes(t, dir, name, data)
}

func write(t testing.TB, dir, name string, encode func(*os.File) error) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := encode(f); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
	return path
}
