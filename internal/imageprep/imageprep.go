// Package imageprep normalizes uploaded payment screenshots and QR codes
// before they are sent to the image host.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrUnsupported is returned for bytes that do not decode as an image.
var ErrUnsupported = errors.New("unsupported image format")

// DefaultMaxPixels bounds the decoded canvas size of an upload.
const DefaultMaxPixels = 40_000_000

// Normalizer downsizes images to fit a bounding box and re-encodes them as JPEG.
type Normalizer struct {
	MaxDim    int
	MaxPixels int
	Quality   int
}

// New returns a Normalizer fitting images into maxDim x maxDim.
func New(maxDim int) *Normalizer {
	if maxDim <= 0 {
		maxDim = 1600
	}
	return &Normalizer{MaxDim: maxDim, MaxPixels: DefaultMaxPixels, Quality: 80}
}

// Normalize decodes data, shrinks it when larger than the bounding box,
// and returns JPEG bytes together with a .jpg filename derived from name.
func (n *Normalizer) Normalize(data []byte, name string) ([]byte, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if n.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(n.MaxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupported, cfg.Width, cfg.Height, n.MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	b := img.Bounds()
	if b.Dx() > n.MaxDim || b.Dy() > n.MaxDim {
		img = imaging.Fit(img, n.MaxDim, n.MaxDim, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(n.Quality)); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), jpegName(name), nil
}

func jpegName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return base + ".jpg"
}
