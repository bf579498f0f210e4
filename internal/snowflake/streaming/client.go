package streaming

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edgeops/snowedge/internal/snowflake/auth"
)

// State tracks the channel session lifecycle. Transitions only move forward
// on success; a failed step leaves the session in its prior state.
type State int

const (
	StateDisconnected State = iota
	StateHostResolved
	StateTokenAcquired
	StateChannelOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHostResolved:
		return "host_resolved"
	case StateTokenAcquired:
		return "token_acquired"
	case StateChannelOpen:
		return "channel_open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	defaultControlTimeout = 30 * time.Second
	defaultAppendTimeout  = 60 * time.Second
	defaultPollInterval   = time.Second
	defaultRetryBase      = 500 * time.Millisecond
	defaultRetryJitter    = 250 * time.Millisecond
	defaultMaxRetries     = 3

	maxBodySnippet = 512
)

// Config configures a streaming Client.
type Config struct {
	// Credentials for the control-plane handshake.
	Credentials auth.Config

	// ControlHost overrides the default control endpoint
	// "<account>.snowflakecomputing.com". A scheme prefix is honored
	// (http:// switches the whole session to plain HTTP, for local testing).
	ControlHost string

	// Channel identity, immutable once configured.
	Database string
	Schema   string
	Pipe     string
	Channel  string

	// ControlTimeout bounds discovery, token exchange, open, status and drop
	// requests (default 30s). AppendTimeout bounds row appends (default 60s).
	ControlTimeout time.Duration
	AppendTimeout  time.Duration

	// PollInterval is the commit-wait polling period (default 1s).
	PollInterval time.Duration

	// MaxRetries bounds the per-request retry loop (default 3; 0 disables
	// retries when RetryDisabled is set). RetryBase is the first backoff
	// interval (default 500ms), doubled each attempt with jitter.
	MaxRetries    uint64
	RetryBase     time.Duration
	RetryDisabled bool

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// Client is a single-owner Snowpipe Streaming channel session. It holds the
// resolved ingest host, the session-scoped token and the chained continuation
// token. Not safe for concurrent use.
type Client struct {
	config   Config
	provider *auth.Provider
	http     *http.Client

	scheme      string
	controlHost string

	state             State
	ingestHost        string
	scoped            auth.Token
	continuationToken string
	lastCommitted     *string
}

// NewClient validates the configuration and returns a disconnected client.
// Credential problems surface immediately as auth.ErrConfig.
func NewClient(cfg Config) (*Client, error) {
	provider, err := auth.NewProvider(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	for _, part := range []struct{ name, value string }{
		{"database", cfg.Database},
		{"schema", cfg.Schema},
		{"pipe", cfg.Pipe},
		{"channel", cfg.Channel},
	} {
		if strings.TrimSpace(part.value) == "" {
			return nil, fmt.Errorf("%w: %s is required", auth.ErrConfig, part.name)
		}
	}

	if cfg.ControlTimeout <= 0 {
		cfg.ControlTimeout = defaultControlTimeout
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = defaultAppendTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxRetries == 0 && !cfg.RetryDisabled {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}

	scheme := "https"
	controlHost := strings.TrimSpace(cfg.ControlHost)
	switch {
	case controlHost == "":
		controlHost = strings.ToLower(cfg.Credentials.Account) + ".snowflakecomputing.com"
	case strings.HasPrefix(controlHost, "http://"):
		scheme = "http"
		controlHost = strings.TrimPrefix(controlHost, "http://")
	case strings.HasPrefix(controlHost, "https://"):
		controlHost = strings.TrimPrefix(controlHost, "https://")
	}
	controlHost = strings.TrimSuffix(controlHost, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		config:      cfg,
		provider:    provider,
		http:        httpClient,
		scheme:      scheme,
		controlHost: controlHost,
		state:       StateDisconnected,
	}, nil
}

// State reports the current session state.
func (c *Client) State() State { return c.state }

// IngestHost returns the resolved ingest endpoint, or "" before discovery.
func (c *Client) IngestHost() string { return c.ingestHost }

// ContinuationToken returns the current chained continuation token.
func (c *Client) ContinuationToken() string { return c.continuationToken }

// LastCommittedOffset returns the most recently observed committed offset
// token, or nil if the service never reported one.
func (c *Client) LastCommittedOffset() *string { return c.lastCommitted }

func (c *Client) controlURL(path string) string {
	return c.scheme + "://" + c.controlHost + path
}

func (c *Client) ingestURL(path string) string {
	return c.scheme + "://" + c.ingestHost + path
}

func (c *Client) channelPath() string {
	return fmt.Sprintf("/v2/streaming/databases/%s/schemas/%s/pipes/%s/channels/%s",
		c.config.Database, c.config.Schema, c.config.Pipe, c.config.Channel)
}

func (c *Client) rowsPath() string {
	return fmt.Sprintf("/v2/streaming/data/databases/%s/schemas/%s/pipes/%s/channels/%s/rows",
		c.config.Database, c.config.Schema, c.config.Pipe, c.config.Channel)
}

func (c *Client) bulkStatusPath() string {
	return fmt.Sprintf("/v2/streaming/databases/%s/schemas/%s/pipes/%s:bulk-channel-status",
		c.config.Database, c.config.Schema, c.config.Pipe)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodySnippet {
		s = s[:maxBodySnippet]
	}
	return s
}
