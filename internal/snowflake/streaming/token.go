package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/edgeops/snowedge/internal/snowflake/auth"
)

// ErrHostNotResolved is returned when a channel operation runs before the
// ingest host has been discovered.
var ErrHostNotResolved = errors.New("ingest host not resolved")

const jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// ResolveHost discovers the ingest endpoint for this account. The response
// may be JSON with a "hostname" field or a raw text body; underscores in the
// returned hostname are replaced with hyphens (they are invalid in the DNS
// label of the ingest endpoint).
func (c *Client) ResolveHost(ctx context.Context) (string, error) {
	token, err := c.provider.Issue()
	if err != nil {
		return "", err
	}

	status, body, err := c.send(ctx, request{
		op:      "resolve host",
		method:  http.MethodGet,
		url:     c.controlURL("/v2/streaming/hostname"),
		timeout: c.config.ControlTimeout,
		token:   token,
	})
	if err != nil {
		return "", err
	}
	if !is2xx(status) {
		return "", &HTTPError{Op: "resolve host", StatusCode: status, BodySnippet: snippet(body)}
	}

	var payload struct {
		Hostname string `json:"hostname"`
	}
	host := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		host = strings.TrimSpace(payload.Hostname)
	} else {
		host = strings.TrimSpace(string(body))
	}
	if host == "" {
		return "", &ProtocolError{Op: "resolve host", Missing: "hostname", StatusCode: status, BodySnippet: snippet(body)}
	}

	host = strings.ReplaceAll(host, "_", "-")
	c.ingestHost = host
	if c.state == StateDisconnected {
		c.state = StateHostResolved
	}
	return host, nil
}

// ExchangeScopedToken obtains the session-scoped access token for the
// resolved ingest host. PAT credentials are reused verbatim without a
// network call; key-pair credentials are exchanged through the JWT-bearer
// OAuth grant. The same exchange also serves as the reactive refresh path
// when a channel operation is rejected with 401.
func (c *Client) ExchangeScopedToken(ctx context.Context) error {
	if c.provider.Method() == auth.MethodPAT {
		token, err := c.provider.Issue()
		if err != nil {
			return err
		}
		c.scoped = token
		if c.state == StateHostResolved {
			c.state = StateTokenAcquired
		}
		return nil
	}

	if c.ingestHost == "" {
		return ErrHostNotResolved
	}

	token, err := c.provider.Issue()
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("scope", c.ingestHost)

	status, body, err := c.send(ctx, request{
		op:          "exchange token",
		method:      http.MethodPost,
		url:         c.controlURL("/oauth/token"),
		contentType: "application/x-www-form-urlencoded",
		body:        []byte(form.Encode()),
		timeout:     c.config.ControlTimeout,
		token:       token,
	})
	if err != nil {
		return err
	}
	if !is2xx(status) {
		return &HTTPError{Op: "exchange token", StatusCode: status, BodySnippet: snippet(body)}
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || strings.TrimSpace(payload.Token) == "" {
		return &ProtocolError{Op: "exchange token", Missing: "token", StatusCode: status, BodySnippet: snippet(body)}
	}

	c.scoped = auth.Token{Value: payload.Token, Type: auth.TokenTypeOAuth}
	if c.state == StateHostResolved {
		c.state = StateTokenAcquired
	}
	return nil
}
