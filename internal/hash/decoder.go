package hash

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/png"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Decoder turns the bytes of one image format into pixels.
// A decoder must reject input that is not in its own format.
type Decoder interface {
	Format() string
	Decode(r io.Reader) (image.Image, error)
}

type decoderFunc struct {
	format string
	decode func(io.Reader) (image.Image, error)
}

func (d decoderFunc) Format() string { return d.format }

func (d decoderFunc) Decode(r io.Reader) (image.Image, error) { return d.decode(r) }

var errNotJPEG = errors.New("missing JPEG start-of-image marker")

// decodeJPEG applies the EXIF orientation so rotated copies of a photo
// hash the same as the upright original.
func decodeJPEG(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errNotJPEG
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

var (
	jpegDecoder = decoderFunc{format: "jpeg", decode: decodeJPEG}
	pngDecoder  = decoderFunc{format: "png", decode: png.Decode}
	gifDecoder  = decoderFunc{format: "gif", decode: gif.Decode}
	webpDecoder = decoderFunc{format: "webp", decode: webp.Decode}
	bmpDecoder  = decoderFunc{format: "bmp", decode: bmp.Decode}
	tiffDecoder = decoderFunc{format: "tiff", decode: tiff.Decode}
)

// Registry maps lower-case file extensions to decoders
type Registry map[string]Decoder

// DefaultRegistry returns the decoders for every supported format
func DefaultRegistry() Registry {
	return Registry{
		".jpg":  jpegDecoder,
		".jpeg": jpegDecoder,
		".png":  pngDecoder,
		".gif":  gifDecoder,
		".webp": webpDecoder,
		".bmp":  bmpDecoder,
		".tiff": tiffDecoder,
		".tif":  tiffDecoder,
	}
}

// Lookup returns the decoder for path based on its extension
func (r Registry) Lookup(path string) (Decoder, bool) {
	d, ok := r[strings.ToLower(filepath.Ext(path))]
	return d, ok
}

// Extensions lists the registered extensions in sorted order
func (r Registry) Extensions() []string {
	exts := make([]string, 0, len(r))
	for ext := range r {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

var defaultRegistry = DefaultRegistry()
