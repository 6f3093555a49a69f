package media

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"tuition/internal/imageprep"
	"tuition/internal/logging"
	"tuition/internal/metrics"
	"tuition/internal/retry"
)

// ErrNoHost is returned when no image host is configured.
var ErrNoHost = errors.New("image storage not configured")

// Host stores an image and returns its public URL.
type Host interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Uploader prepares images locally and pushes them to a Host under a retry policy.
type Uploader struct {
	host   Host
	norm   *imageprep.Normalizer
	policy retry.Policy
	log    *zap.Logger
}

// NewUploader wires an uploader. host may be nil, in which case Upload fails with ErrNoHost.
func NewUploader(host Host, norm *imageprep.Normalizer, policy retry.Policy, log *zap.Logger) *Uploader {
	if norm == nil {
		norm = imageprep.New(0)
	}
	return &Uploader{host: host, norm: norm, policy: policy, log: logging.OrNop(log)}
}

// Prepare normalizes the image without touching the network.
func (u *Uploader) Prepare(data []byte, name string) ([]byte, string, error) {
	return u.norm.Normalize(data, name)
}

// Upload sends prepared bytes to the host, retrying per policy.
func (u *Uploader) Upload(ctx context.Context, data []byte, name string) (string, error) {
	if u.host == nil {
		return "", ErrNoHost
	}
	var url string
	err := retry.Do(ctx, u.policy.WithHook(func(attempt int, err error) {
		u.log.Warn("image upload failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}), func(ctx context.Context) error {
		var err error
		url, err = u.host.Upload(ctx, data, name)
		metrics.RemoteAttempts.WithLabelValues("upload", outcome(err)).Inc()
		return err
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
