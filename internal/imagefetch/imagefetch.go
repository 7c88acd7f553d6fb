package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/metrics"
)

// ErrNotFound covers every download failure. Callers skip the post's image.
var ErrNotFound = errors.New("image not found")

const DefaultTimeout = 10 * time.Second

// MaxImageBytes caps a single download. Larger images are skipped.
const MaxImageBytes = 20 << 20

type Image struct {
	Data     []byte
	MIMEType string
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		maxBytes: MaxImageBytes,
	}
}

// Fetch downloads url. Any failure is logged and reported as ErrNotFound.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Image, error) {
	img, err := f.download(ctx, url)
	if err != nil {
		metrics.ImageFetchFailures.Inc()
		log.Warn().Err(err).Str("url", url).Msg("failed to download image")
		return Image{}, ErrNotFound
	}
	return img, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("failed to download image, status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, err
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}

	return Image{
		Data:     data,
		MIMEType: detectMIME(resp.Header.Get("Content-Type"), data),
	}, nil
}

// detectMIME prefers an image/* Content-Type, then sniffs the bytes, then
// falls back to jpeg, which is what the CDN serves for post images.
func detectMIME(contentType string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/jpeg"
}
