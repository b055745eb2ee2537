package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPResolver asks the account service which user owns a credential:
// GET {base}/session with the token in the Authorization header.
type HTTPResolver struct {
	baseURL  string
	http     *fasthttp.Client
	timeout  time.Duration
	retryMax int
}

type HTTPOption func(*HTTPResolver)

func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPResolver) { r.timeout = d }
}

func WithHTTPRetry(max int) HTTPOption {
	return func(r *HTTPResolver) { r.retryMax = max }
}

type sessionResponse struct {
	Username string `json:"username"`
}

func NewHTTPResolver(baseURL string, opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 64},
		timeout:  5 * time.Second,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPResolver) Resolve(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrUnknownCredential
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(r.baseURL + "/session")
	req.Header.Set("Authorization", credential)

	attempts := r.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := r.http.DoDeadline(req, resp, r.deadline(ctx)); err != nil {
			lastErr = fmt.Errorf("auth request failed: %w", err)
		} else {
			switch status := resp.StatusCode(); {
			case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusNotFound || status == fasthttp.StatusForbidden:
				return "", ErrUnknownCredential
			case status >= 200 && status < 300:
				var out sessionResponse
				if err := json.Unmarshal(resp.Body(), &out); err != nil {
					return "", fmt.Errorf("decode auth response: %w", err)
				}
				if strings.TrimSpace(out.Username) == "" {
					return "", ErrUnknownCredential
				}
				return out.Username, nil
			case status >= 500:
				lastErr = fmt.Errorf("auth service status=%d", status)
			default:
				return "", fmt.Errorf("auth service status=%d", status)
			}
		}
		if attempt < attempts {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return "", lastErr
			}
		}
	}
	return "", lastErr
}

func (r *HTTPResolver) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(r.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff doubles from 50ms, capped at 6 steps.
func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
}
