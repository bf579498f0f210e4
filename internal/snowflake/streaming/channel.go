package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Row is one opaque record supplied by the producer. The client serializes
// it as a single JSON object and does not interpret its contents.
type Row map[string]any

// AppendResult reports the outcome of a successful AppendRows call.
type AppendResult struct {
	NextContinuationToken string
	RowCount              int
}

// ErrNotConnected is returned when a channel operation runs before the
// scoped token has been acquired.
var ErrNotConnected = errors.New("session not connected")

type channelStatus struct {
	LastCommittedOffsetToken *string `json:"last_committed_offset_token"`
}

// Connect drives the session from Disconnected to ChannelOpen in one call:
// hostname discovery, scoped-token exchange, then channel open without an
// offset hint. Any failing step leaves the session in its prior state.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.ResolveHost(ctx); err != nil {
		return err
	}
	if err := c.ExchangeScopedToken(ctx); err != nil {
		return err
	}
	_, _, err := c.OpenChannel(ctx, nil)
	return err
}

// OpenChannel creates or re-attaches the configured channel. The PUT is
// idempotent and identified by a fresh request id. On success the session
// stores the returned continuation token and the channel's last committed
// offset token; re-opening an already open channel is permitted and resets
// the chain.
func (c *Client) OpenChannel(ctx context.Context, offsetToken *string) (string, *string, error) {
	if c.state != StateTokenAcquired && c.state != StateChannelOpen {
		return "", nil, fmt.Errorf("open channel in state %s: %w", c.state, ErrNotConnected)
	}

	payload := map[string]any{}
	if offsetToken != nil {
		payload["offset_token"] = *offsetToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("open channel: encode request: %w", err)
	}

	status, respBody, err := c.sendScoped(ctx, request{
		op:          "open channel",
		method:      http.MethodPut,
		url:         c.ingestURL(c.channelPath()),
		query:       url.Values{"requestId": {uuid.NewString()}},
		contentType: "application/json",
		body:        body,
		timeout:     c.config.ControlTimeout,
	})
	if err != nil {
		return "", nil, err
	}
	if !is2xx(status) {
		return "", nil, &HTTPError{Op: "open channel", StatusCode: status, BodySnippet: snippet(respBody)}
	}

	var resp struct {
		NextContinuationToken string        `json:"next_continuation_token"`
		ChannelStatus         channelStatus `json:"channel_status"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil || resp.NextContinuationToken == "" {
		return "", nil, &ProtocolError{Op: "open channel", Missing: "next_continuation_token", StatusCode: status, BodySnippet: snippet(respBody)}
	}

	c.continuationToken = resp.NextContinuationToken
	c.lastCommitted = resp.ChannelStatus.LastCommittedOffsetToken
	c.state = StateChannelOpen
	return c.continuationToken, c.lastCommitted, nil
}

// AppendRows streams one batch through the open channel as
// newline-delimited JSON. The current continuation token rides in the query
// string along with the caller's offset token, and is replaced by the
// response token: tokens are single-use, and the next append must present
// the newest one.
func (c *Client) AppendRows(ctx context.Context, rows []Row, offsetToken *string) (AppendResult, error) {
	if c.state != StateChannelOpen {
		return AppendResult{}, fmt.Errorf("append in state %s: %w", c.state, ErrChannelNotOpen)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return AppendResult{}, fmt.Errorf("append: encode row: %w", err)
		}
	}

	query := url.Values{"continuationToken": {c.continuationToken}}
	if offsetToken != nil {
		query.Set("offsetToken", *offsetToken)
	}

	status, respBody, err := c.sendScoped(ctx, request{
		op:          "append rows",
		method:      http.MethodPost,
		url:         c.ingestURL(c.rowsPath()),
		query:       query,
		contentType: "application/x-ndjson",
		body:        buf.Bytes(),
		timeout:     c.config.AppendTimeout,
	})
	if err != nil {
		return AppendResult{}, err
	}
	if !is2xx(status) {
		return AppendResult{}, &HTTPError{Op: "append rows", StatusCode: status, BodySnippet: snippet(respBody)}
	}

	var resp struct {
		NextContinuationToken string `json:"next_continuation_token"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil || resp.NextContinuationToken == "" {
		return AppendResult{}, &ProtocolError{Op: "append rows", Missing: "next_continuation_token", StatusCode: status, BodySnippet: snippet(respBody)}
	}

	c.continuationToken = resp.NextContinuationToken
	return AppendResult{NextContinuationToken: resp.NextContinuationToken, RowCount: len(rows)}, nil
}

// ChannelStatus polls the bulk status endpoint for this channel and returns
// the offset token the service has durably committed, or nil if nothing was
// ever committed. The session's cached last-committed offset is updated on
// success.
func (c *Client) ChannelStatus(ctx context.Context) (*string, error) {
	if c.state < StateTokenAcquired || c.state == StateClosed {
		return nil, fmt.Errorf("channel status in state %s: %w", c.state, ErrNotConnected)
	}

	body, err := json.Marshal(map[string]any{"channel_names": []string{c.config.Channel}})
	if err != nil {
		return nil, fmt.Errorf("channel status: encode request: %w", err)
	}

	status, respBody, err := c.sendScoped(ctx, request{
		op:          "channel status",
		method:      http.MethodPost,
		url:         c.ingestURL(c.bulkStatusPath()),
		contentType: "application/json",
		body:        body,
		timeout:     c.config.ControlTimeout,
	})
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, &HTTPError{Op: "channel status", StatusCode: status, BodySnippet: snippet(respBody)}
	}

	var resp struct {
		ChannelStatuses map[string]channelStatus `json:"channel_statuses"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &ProtocolError{Op: "channel status", Missing: "channel_statuses", StatusCode: status, BodySnippet: snippet(respBody)}
	}

	committed := resp.ChannelStatuses[c.config.Channel].LastCommittedOffsetToken
	if committed != nil {
		c.lastCommitted = committed
	}
	return committed, nil
}

// DropChannel deletes the channel. The DELETE is idempotent and identified
// by a fresh request id; afterwards the session is Closed and must be
// reconnected before further use.
func (c *Client) DropChannel(ctx context.Context) error {
	if c.state < StateTokenAcquired || c.state == StateClosed {
		return fmt.Errorf("drop channel in state %s: %w", c.state, ErrNotConnected)
	}

	status, respBody, err := c.sendScoped(ctx, request{
		op:      "drop channel",
		method:  http.MethodDelete,
		url:     c.ingestURL(c.channelPath()),
		query:   url.Values{"requestId": {uuid.NewString()}},
		timeout: c.config.ControlTimeout,
	})
	if err != nil {
		return err
	}
	if !is2xx(status) {
		return &HTTPError{Op: "drop channel", StatusCode: status, BodySnippet: snippet(respBody)}
	}

	c.state = StateClosed
	c.continuationToken = ""
	return nil
}
