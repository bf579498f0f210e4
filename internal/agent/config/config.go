// Package config loads the agent configuration in three layers: built-in
// defaults, then an optional JSON file (-c / -config), then command-line
// flags. Later layers override earlier ones.
package config

import "time"

// Snowflake holds the account identity, credentials and channel target.
type Snowflake struct {
	Account              string
	User                 string
	AuthMethod           string
	PrivateKeyPath       string
	PrivateKeyPassphrase string
	PublicKeyFingerprint string
	TokenLifetime        time.Duration
	PATToken             string
	ControlHost          string
	Database             string
	Schema               string
	Pipe                 string
	Channel              string
}

// Ollama configures telemetry summarization and frame analysis.
type Ollama struct {
	Enabled          bool
	BaseURL          string
	Model            string
	PromptTemplate   string
	MaxResponseChars int
}

// Camera configures frame capture.
type Camera struct {
	Enabled        bool
	DeviceIndex    int
	OutputDir      string
	FilenamePrefix string
	Command        []string
}

// Slack configures frame notifications.
type Slack struct {
	Enabled       bool
	BotToken      string
	Channel       string
	MessagePrefix string
}

// S3 configures frame archiving to object storage.
type S3 struct {
	Enabled      bool
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// Config holds runtime settings for the telemetry agent.
type Config struct {
	Snowflake Snowflake
	Ollama    Ollama
	Camera    Camera
	Slack     Slack
	S3        S3

	// BatchSize is the number of samples per upload cycle.
	BatchSize int

	// Interval is the pause between upload cycles.
	Interval time.Duration

	// VerifyCommit waits for the service to durably commit each batch's
	// offset token before starting the next cycle.
	VerifyCommit bool

	// CommitTimeout bounds a single commit wait.
	CommitTimeout time.Duration

	// SpoolPath is the sqlite file holding batches that failed to upload.
	SpoolPath string

	// SpoolDrainLimit caps how many spooled batches one cycle retries.
	SpoolDrainLimit int

	// SpoolMaxBatches caps the spool size; inserting beyond it drops the
	// oldest batches. 0 means unbounded.
	SpoolMaxBatches int

	Debug bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Snowflake = Snowflake{
		AuthMethod:    "keypair_jwt",
		TokenLifetime: time.Hour,
		Schema:        "PUBLIC",
	}
	c.Ollama = Ollama{
		BaseURL:          "http://127.0.0.1:11434",
		Model:            "llama3.2",
		PromptTemplate:   "Summarize this edge device telemetry in one sentence: {metrics}",
		MaxResponseChars: 512,
	}
	c.Camera = Camera{
		OutputDir:      "captures",
		FilenamePrefix: "orin",
	}
	c.BatchSize = 10
	c.Interval = 30 * time.Second
	c.CommitTimeout = 30 * time.Second
	c.SpoolPath = "spool.db"
	c.SpoolDrainLimit = 20
	c.SpoolMaxBatches = 500
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
