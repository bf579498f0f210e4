package streaming

import (
	"context"
	"strconv"
	"time"
)

// WaitForCommit polls channel status until the committed offset token
// reaches expectedOffset or the timeout elapses. A nil expectedOffset
// trivially succeeds. The result is a plain bool: a timeout (or context
// cancellation, or a failing status poll that never recovers) reports
// false, never an error. "Pending" is a normal outcome the caller may
// re-check on a later cycle.
func (c *Client) WaitForCommit(ctx context.Context, expectedOffset *string, timeout time.Duration) bool {
	if expectedOffset == nil {
		return true
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		// Poll errors are treated as "not committed yet": transient status
		// failures must not abort the wait.
		committed, err := c.ChannelStatus(waitCtx)
		if err == nil && committed != nil && offsetReached(*committed, *expectedOffset) {
			return true
		}

		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// offsetReached reports whether a committed offset token covers the
// expected one. Offset tokens are caller-defined and opaque to the service,
// so ordering is only meaningful when both sides are numeric; otherwise
// only exact equality counts.
func offsetReached(committed, expected string) bool {
	ci, cErr := strconv.ParseInt(committed, 10, 64)
	ei, eErr := strconv.ParseInt(expected, 10, 64)
	if cErr == nil && eErr == nil {
		return ci >= ei
	}
	return committed == expected
}
