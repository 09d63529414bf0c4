// Package fetch downloads remote documents over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/custodia-labs/docqa/internal/adapters/driven/apierr"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Fetcher implements the interface.
var _ driven.SourceFetcher = (*Fetcher)(nil)

// Default settings.
const (
	DefaultMaxBytes  = 50 << 20
	DefaultUserAgent = "docqa/1.0"
	defaultRetryWait = 200 * time.Millisecond
	providerName     = "fetch"
)

// Config holds fetcher settings.
type Config struct {
	// MaxBytes caps the document size. Zero uses DefaultMaxBytes.
	MaxBytes int64

	// RetryCount is the number of retries after a failed request or a 5xx.
	RetryCount int

	// UserAgent is sent with every request.
	UserAgent string
}

// Fetcher streams remote documents with resty.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

// New creates an HTTP fetcher. Request deadlines come from the caller's
// context.
func New(cfg Config) *Fetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	client := resty.New().
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(defaultRetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && apierr.IsRetryableStatus(r.StatusCode())
		})

	return &Fetcher{client: client, maxBytes: cfg.MaxBytes}
}

// Fetch downloads url into w.
func (f *Fetcher) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return 0, classify(err)
	}
	body := resp.RawBody()
	defer body.Close()

	if status := resp.StatusCode(); status < http.StatusOK || status >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("%w: %s returned status %d", domain.ErrSourceUnreachable, url, status)
	}

	n, err := io.Copy(w, io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return n, classify(err)
	}
	if n > f.maxBytes {
		return n, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrSourceUnreachable, url, f.maxBytes)
	}
	return n, nil
}

// classify keeps deadline expiry distinct from every other download failure.
func classify(err error) error {
	err = apierr.FromTransport(providerName, err)
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrSourceUnreachable, err)
}
