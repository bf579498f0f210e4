// Package streaming implements a client for the Snowpipe Streaming v2 REST
// API: hostname discovery, scoped-token exchange, channel lifecycle
// (open/append/status/drop) and asynchronous commit confirmation.
//
// A Client owns one channel session. It is not safe for concurrent use;
// the owning producer loop must serialize appends. Continuation tokens are
// single-use: every successful open or append replaces the stored token,
// and the next append must use the newest one. Commit is asynchronous:
// appending rows only makes them eligible; durability is observed through
// ChannelStatus or WaitForCommit using caller-supplied offset tokens.
//
// Every network call is bounded by a per-request timeout and wrapped in a
// jittered exponential retry for transport errors and retryable HTTP
// statuses (5xx, 429). A 401 on a channel operation triggers one scoped
// token re-exchange before the request is replayed.
package streaming
