package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuition/internal/retry"
)

type flakyHost struct {
	failures int
	calls    int
	names    []string
}

func (h *flakyHost) Upload(_ context.Context, data []byte, name string) (string, error) {
	h.calls++
	h.names = append(h.names, name)
	if h.calls <= h.failures {
		return "", errors.New("timeout")
	}
	return "https://img.example/" + name, nil
}

func TestUploadRetries(t *testing.T) {
	host := &flakyHost{failures: 2}
	u := NewUploader(host, nil, retry.Policy{Attempts: 3}, nil)

	url, err := u.Upload(context.Background(), []byte("x"), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/a.jpg", url)
	assert.Equal(t, 3, host.calls)
}

func TestUploadGivesUp(t *testing.T) {
	host := &flakyHost{failures: 10}
	u := NewUploader(host, nil, retry.Policy{Attempts: 3}, nil)

	_, err := u.Upload(context.Background(), []byte("x"), "a.jpg")
	require.Error(t, err)
	assert.Equal(t, 3, host.calls)
}

func TestUploadWithoutHost(t *testing.T) {
	_, err := NewUploader(nil, nil, retry.Default(), nil).Upload(context.Background(), []byte("x"), "a.jpg")
	assert.ErrorIs(t, err, ErrNoHost)
}

func TestPrepare(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))

	u := NewUploader(nil, nil, retry.Default(), nil)
	out, name, err := u.Prepare(buf.Bytes(), "qr.png")
	require.NoError(t, err)
	assert.Equal(t, "qr.jpg", name)
	assert.NotEmpty(t, out)
}
