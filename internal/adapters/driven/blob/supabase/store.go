// Package supabase implements the blob store port on Supabase Storage.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/custodia-labs/docqa/internal/adapters/driven/apierr"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.BlobStore = (*Store)(nil)

// Default settings.
const (
	DefaultBucket  = "pdfs"
	DefaultTimeout = 10 * time.Second
	listPageSize   = 100
	providerName   = "supabase"
)

// ErrNotConfigured indicates missing project URL or service key.
var ErrNotConfigured = errors.New("supabase storage not configured")

// Config holds Supabase Storage settings.
type Config struct {
	// URL is the project URL, e.g. https://xyz.supabase.co.
	URL string

	// ServiceKey is a service role key allowed to delete objects.
	ServiceKey string

	// Bucket holds the uploaded documents. Defaults to DefaultBucket.
	Bucket string

	// Timeout bounds each storage request.
	Timeout time.Duration
}

// Store lists and removes objects through the Storage REST API.
type Store struct {
	client *resty.Client
	bucket string
}

// New creates a Supabase Storage client.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")+"/storage/v1").
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.ServiceKey).
		SetHeader("apikey", cfg.ServiceKey).
		SetHeader("Content-Type", "application/json")

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

type listRequest struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type listedObject struct {
	Name string `json:"name"`
}

type removeRequest struct {
	Prefixes []string `json:"prefixes"`
}

// List returns the full object paths directly under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSuffix(prefix, "/")

	var paths []string
	for offset := 0; ; offset += listPageSize {
		var page []listedObject
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(listRequest{Prefix: prefix, Limit: listPageSize, Offset: offset}).
			SetResult(&page).
			Post("/object/list/" + s.bucket)
		if err != nil {
			return nil, apierr.FromTransport(providerName, err)
		}
		if resp.IsError() {
			return nil, apierr.FromStatus(providerName, resp.StatusCode(), resp.String())
		}

		for _, obj := range page {
			if obj.Name == "" {
				continue
			}
			paths = append(paths, prefix+"/"+obj.Name)
		}
		if len(page) < listPageSize {
			return paths, nil
		}
	}
}

// Remove deletes the given object paths.
func (s *Store) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(removeRequest{Prefixes: paths}).
		Delete("/object/" + s.bucket)
	if err != nil {
		return apierr.FromTransport(providerName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("remove %d objects: %w", len(paths),
			apierr.FromStatus(providerName, resp.StatusCode(), resp.String()))
	}
	return nil
}
