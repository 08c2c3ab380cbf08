package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"repair-assistant/api/internal/apperr"
)

// New returns a client with a hard timeout whose transport is traced.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewLimiter returns nil (no limit) when rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// DoJSON waits on lim (if any), executes req and decodes a 2xx JSON body into
// out. Transport problems and non-2xx statuses are Transport errors, bad
// bodies are Parse errors.
func DoJSON(ctx context.Context, c *http.Client, lim *rate.Limiter, op string, req *http.Request, out any) error {
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return apperr.New(apperr.Transport, op, err)
		}
	}
	resp, err := c.Do(req.WithContext(ctx))
	if err != nil {
		return apperr.New(apperr.Transport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperr.New(apperr.Transport, op, fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.New(apperr.Parse, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
