package imageprep

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeShrinks(t *testing.T) {
	out, name, err := New(100).Normalize(pngBytes(t, 400, 200), "proof.png")
	require.NoError(t, err)
	assert.Equal(t, "proof.jpg", name)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestNormalizeKeepsSmall(t *testing.T) {
	out, _, err := New(100).Normalize(pngBytes(t, 40, 30), "a.png")
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, _, err := New(0).Normalize([]byte("definitely not an image"), "x.png")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestJpegName(t *testing.T) {
	assert.Equal(t, "image.jpg", jpegName(""))
	assert.Equal(t, "shot.jpg", jpegName("/tmp/shot.webp"))
}

func TestNormalizeRejectsOversizedCanvas(t *testing.T) {
	// A blank canvas compresses to a few KB but would decode to far more.
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3000, 2000))))

	n := New(100)
	n.MaxPixels = 1_000_000
	_, _, err := n.Normalize(buf.Bytes(), "huge.png")
	assert.ErrorIs(t, err, ErrUnsupported)

	n.MaxPixels = 0
	_, _, err = n.Normalize(buf.Bytes(), "huge.png")
	assert.NoError(t, err)
}
