// Package rest is the hosted data service client: request shaping over the
// /v1 JSON API, nothing else. Transient transport failures map to
// store.ErrUnavailable, missing rows to store.ErrNotFound.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MetaFacil/AppConecta/internal/store"
)

const (
	requestTimeout  = 15 * time.Second
	maxReadRetries  = 3
	initialInterval = 200 * time.Millisecond
)

// Client talks to the hosted service. One instance is shared by every
// conversation; it holds no per-conversation state.
type Client struct {
	baseURL string
	apiKey  string
	bucket  string
	http    *http.Client
}

// New creates a client. bucket is the media bucket for chat uploads.
func New(baseURL, apiKey, bucket string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// getJSON issues a GET with bounded retry: reads are idempotent, so transient
// failures get another chance before surfacing as ErrUnavailable.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	op := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		defer resp.Body.Close()
		if err := statusErr(resp); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	// Retry unwraps backoff.Permanent before returning.
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxReadRetries), ctx))
}

// sendJSON issues a mutating request exactly once: writes are not idempotent
// and the delivery core owns the failure semantics.
func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeBody(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

// statusErr maps a non-2xx response into the store error taxonomy.
func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", store.ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("rest: %s %s: status %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
	}
}
