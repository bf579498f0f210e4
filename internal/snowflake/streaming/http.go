package streaming

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/edgeops/snowedge/internal/snowflake/auth"
	"github.com/sethvargo/go-retry"
)

const maxResponseBody = 1 << 20

// request is one logical API call; the body is kept as bytes so the HTTP
// request can be rebuilt on every retry attempt.
type request struct {
	op          string
	method      string
	url         string
	query       url.Values
	contentType string
	body        []byte
	timeout     time.Duration
	token       auth.Token
}

func (c *Client) attempt(ctx context.Context, r request) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := r.url
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(reqCtx, r.method, u, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token.Value)
	if r.token.Type != "" {
		req.Header.Set("X-Snowflake-Authorization-Token-Type", string(r.token.Type))
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// send performs one API call with the configured retry policy. Transport
// errors and retryable statuses (5xx, 429) are retried with jittered
// exponential backoff; other statuses are returned to the caller untouched.
func (c *Client) send(ctx context.Context, r request) (int, []byte, error) {
	if c.config.RetryDisabled {
		status, body, err := c.attempt(ctx, r)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: %w", r.op, err)
		}
		return status, body, nil
	}

	var status int
	var body []byte

	backoff := retry.NewExponential(c.config.RetryBase)
	backoff = retry.WithJitter(defaultRetryJitter, backoff)
	backoff = retry.WithMaxRetries(c.config.MaxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		status, body, attemptErr = c.attempt(ctx, r)
		if attemptErr != nil {
			return retry.RetryableError(attemptErr)
		}
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return retry.RetryableError(&HTTPError{
				Op:          r.op,
				StatusCode:  status,
				BodySnippet: snippet(body),
			})
		}
		return nil
	})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return status, body, httpErr
		}
		return 0, nil, fmt.Errorf("%s: %w", r.op, err)
	}
	return status, body, nil
}

// sendScoped performs a channel-plane call with the cached scoped token.
// A 401 re-exchanges the scoped token once and replays the request; PAT
// sessions cannot be refreshed, so the 401 is returned as-is.
func (c *Client) sendScoped(ctx context.Context, r request) (int, []byte, error) {
	r.token = c.scoped
	status, body, err := c.send(ctx, r)
	if err != nil || status != http.StatusUnauthorized {
		return status, body, err
	}
	if c.provider.Method() == auth.MethodPAT {
		return status, body, nil
	}
	if err := c.ExchangeScopedToken(ctx); err != nil {
		return status, body, nil
	}
	r.token = c.scoped
	return c.send(ctx, r)
}

func is2xx(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
