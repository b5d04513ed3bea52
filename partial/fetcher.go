package partial

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"resty.dev/v3"
)

var ErrUnexpectedStatus = errors.New("unexpected fragment response status")

// Fetcher loads fragment HTML by its path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// HTTPFetcher fetches fragments from web server. Requests are not retried.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates fetcher for fragments served under baseURL.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	c := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetHeader("Accept", "text/html")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &HTTPFetcher{client: c}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	res, err := f.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fragment %v: %w", path, err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("%w: %v for %v", ErrUnexpectedStatus, res.StatusCode(), path)
	}
	return res.Bytes(), nil
}

// Close releases idle connections of underlying HTTP client.
func (f *HTTPFetcher) Close() error {
	return f.client.Close()
}

// FSFetcher reads fragments from file system (embedded static files). Missing file is reported the same way as
// HTTP 404 response.
type FSFetcher struct {
	FS fs.FS
}

func (f FSFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := fs.ReadFile(f.FS, strings.TrimPrefix(path, "/"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: 404 for %v", ErrUnexpectedStatus, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fragment %v: %w", path, err)
	}
	return b, nil
}
