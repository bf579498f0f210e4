package streaming

import (
	"errors"
	"fmt"
)

// ErrChannelNotOpen is returned by AppendRows when the channel has not been
// opened (or was dropped).
var ErrChannelNotOpen = errors.New("channel not open")

// HTTPError is a non-2xx response from the service. The body is truncated
// to a short snippet for logging.
type HTTPError struct {
	Op          string
	StatusCode  int
	BodySnippet string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.BodySnippet)
}

// ProtocolError is a well-formed transport response missing an expected
// field (hostname, token, continuation token).
type ProtocolError struct {
	Op          string
	Missing     string
	StatusCode  int
	BodySnippet string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: response missing %s (status=%d body=%s)",
		e.Op, e.Missing, e.StatusCode, e.BodySnippet)
}
