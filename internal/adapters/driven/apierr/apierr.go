// Package apierr classifies failures of outbound HTTP API calls into the
// domain error kinds the core services act on.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// FromTransport wraps an error returned by an HTTP client call.
// Deadline expiry becomes domain.ErrTimeout; dropped connections become
// domain.ErrTransient; cancellation is returned unchanged.
func FromTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", provider, domain.ErrTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w: %w", provider, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: send request: %w", provider, err)
}

// FromStatus builds an error for a non-success response.
// Rate limiting and server errors are transient.
func FromStatus(provider string, status int, body string) error {
	if len(body) > 512 {
		body = body[:512]
	}
	if IsRetryableStatus(status) {
		return fmt.Errorf("%s: %w: status %d: %s", provider, domain.ErrTransient, status, body)
	}
	return fmt.Errorf("%s: API returned status %d: %s", provider, status, body)
}

// IsRetryableStatus reports whether a response status is worth retrying.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
