package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"work-pipeline/internal/domain"
)

// StatusError is a non-2xx reply from the Work API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("work api returned %d: %s", e.Code, e.Body)
}

// Retriable reports whether the call may succeed if repeated.
func (e *StatusError) Retriable() bool {
	return e.Code >= 500
}

// RetryPolicy bounds how a failed call is repeated.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// WorkClient talks to the Work API over HTTP.
type WorkClient struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

func NewWorkClient(baseURL string, retry RetryPolicy, logger *slog.Logger) *WorkClient {
	return &WorkClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry:  retry,
		logger: logger.With("component", "work-client"),
	}
}

// RetrieveWork calls GET /work/{id}. A 404 maps to domain.ErrWorkNotFound.
func (c *WorkClient) RetrieveWork(ctx context.Context, id int64) (*domain.Work, error) {
	var work domain.Work
	if err := c.get(ctx, "/work/"+strconv.FormatInt(id, 10), &work); err != nil {
		var serr *StatusError
		if errors.As(err, &serr) && serr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("work %d: %w", id, domain.ErrWorkNotFound)
		}
		return nil, err
	}
	return &work, nil
}

// SearchWork calls GET /work/search. The API applies its own time window.
func (c *WorkClient) SearchWork(ctx context.Context, prefix string) ([]*domain.Work, error) {
	var works []*domain.Work
	if err := c.get(ctx, "/work/search?work_code="+url.QueryEscape(prefix), &works); err != nil {
		return nil, err
	}
	return works, nil
}

// get runs one GET with retries on timeouts and 5xx replies.
func (c *WorkClient) get(ctx context.Context, path string, out any) error {
	var lastErr error
	for i := 0; i <= c.retry.MaxRetries; i++ {
		err := c.doGet(ctx, path, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retriable(err) {
			return err
		}
		if i == c.retry.MaxRetries {
			break
		}

		c.logger.Warn("work api call failed, retrying", "path", path, "attempt", i+1, "error", err)
		select {
		case <-time.After(c.retry.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("work api call failed after %d retries: %w", c.retry.MaxRetries, lastErr)
}

func retriable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var serr *StatusError
	return errors.As(err, &serr) && serr.Retriable()
}

// doGet performs a single request.
func (c *WorkClient) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode work api response: %w", err)
	}
	return nil
}
