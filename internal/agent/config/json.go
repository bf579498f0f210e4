package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/edgeops/snowedge/internal/flagx"
	"github.com/edgeops/snowedge/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	Snowflake struct {
		Account              string         `json:"account"`
		User                 string         `json:"user"`
		AuthMethod           string         `json:"auth_method"`
		PrivateKeyPath       string         `json:"private_key_path"`
		PrivateKeyPassphrase string         `json:"private_key_passphrase"`
		PublicKeyFingerprint string         `json:"public_key_fingerprint"`
		TokenLifetime        timex.Duration `json:"token_lifetime"`
		PATToken             string         `json:"pat_token"`
		ControlHost          string         `json:"control_host"`
		Database             string         `json:"database"`
		Schema               string         `json:"schema"`
		Pipe                 string         `json:"pipe"`
		Channel              string         `json:"channel"`
	} `json:"snowflake"`

	Ollama struct {
		Enabled          bool   `json:"enabled"`
		BaseURL          string `json:"base_url"`
		Model            string `json:"model"`
		PromptTemplate   string `json:"prompt_template"`
		MaxResponseChars int    `json:"max_response_chars"`
	} `json:"ollama"`

	Camera struct {
		Enabled        bool     `json:"enabled"`
		DeviceIndex    int      `json:"device_index"`
		OutputDir      string   `json:"output_dir"`
		FilenamePrefix string   `json:"filename_prefix"`
		Command        []string `json:"command"`
	} `json:"camera"`

	Slack struct {
		Enabled       bool   `json:"enabled"`
		BotToken      string `json:"bot_token"`
		Channel       string `json:"channel"`
		MessagePrefix string `json:"message_prefix"`
	} `json:"slack"`

	S3 struct {
		Enabled      bool   `json:"enabled"`
		Region       string `json:"region"`
		Bucket       string `json:"bucket"`
		AccessKey    string `json:"access_key"`
		SecretKey    string `json:"secret_key"`
		BaseEndpoint string `json:"base_endpoint"`
	} `json:"s3"`

	BatchSize       int            `json:"batch_size"`
	Interval        timex.Duration `json:"interval"`
	VerifyCommit    bool           `json:"verify_commit"`
	CommitTimeout   timex.Duration `json:"commit_timeout"`
	SpoolPath       string         `json:"spool_path"`
	SpoolDrainLimit int            `json:"spool_drain_limit"`
	SpoolMaxBatches int            `json:"spool_max_batches"`
	Debug           bool           `json:"debug"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// The DTO is seeded from the current Config before unmarshalling, so fields
// absent from the file keep their earlier-layer values. Read or unmarshal
// errors panic (caller should recover if desired).
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	jc := dtoFromConfig(cfg)

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	copyToConfig(&jc, cfg)
}

func dtoFromConfig(cfg *Config) JsonConfig {
	var jc JsonConfig

	jc.Snowflake.Account = cfg.Snowflake.Account
	jc.Snowflake.User = cfg.Snowflake.User
	jc.Snowflake.AuthMethod = cfg.Snowflake.AuthMethod
	jc.Snowflake.PrivateKeyPath = cfg.Snowflake.PrivateKeyPath
	jc.Snowflake.PrivateKeyPassphrase = cfg.Snowflake.PrivateKeyPassphrase
	jc.Snowflake.PublicKeyFingerprint = cfg.Snowflake.PublicKeyFingerprint
	jc.Snowflake.TokenLifetime = timex.Duration{Duration: cfg.Snowflake.TokenLifetime}
	jc.Snowflake.PATToken = cfg.Snowflake.PATToken
	jc.Snowflake.ControlHost = cfg.Snowflake.ControlHost
	jc.Snowflake.Database = cfg.Snowflake.Database
	jc.Snowflake.Schema = cfg.Snowflake.Schema
	jc.Snowflake.Pipe = cfg.Snowflake.Pipe
	jc.Snowflake.Channel = cfg.Snowflake.Channel

	jc.Ollama.Enabled = cfg.Ollama.Enabled
	jc.Ollama.BaseURL = cfg.Ollama.BaseURL
	jc.Ollama.Model = cfg.Ollama.Model
	jc.Ollama.PromptTemplate = cfg.Ollama.PromptTemplate
	jc.Ollama.MaxResponseChars = cfg.Ollama.MaxResponseChars

	jc.Camera.Enabled = cfg.Camera.Enabled
	jc.Camera.DeviceIndex = cfg.Camera.DeviceIndex
	jc.Camera.OutputDir = cfg.Camera.OutputDir
	jc.Camera.FilenamePrefix = cfg.Camera.FilenamePrefix
	jc.Camera.Command = cfg.Camera.Command

	jc.Slack.Enabled = cfg.Slack.Enabled
	jc.Slack.BotToken = cfg.Slack.BotToken
	jc.Slack.Channel = cfg.Slack.Channel
	jc.Slack.MessagePrefix = cfg.Slack.MessagePrefix

	jc.S3.Enabled = cfg.S3.Enabled
	jc.S3.Region = cfg.S3.Region
	jc.S3.Bucket = cfg.S3.Bucket
	jc.S3.AccessKey = cfg.S3.AccessKey
	jc.S3.SecretKey = cfg.S3.SecretKey
	jc.S3.BaseEndpoint = cfg.S3.BaseEndpoint

	jc.BatchSize = cfg.BatchSize
	jc.Interval = timex.Duration{Duration: cfg.Interval}
	jc.VerifyCommit = cfg.VerifyCommit
	jc.CommitTimeout = timex.Duration{Duration: cfg.CommitTimeout}
	jc.SpoolPath = cfg.SpoolPath
	jc.SpoolDrainLimit = cfg.SpoolDrainLimit
	jc.SpoolMaxBatches = cfg.SpoolMaxBatches
	jc.Debug = cfg.Debug

	return jc
}

func copyToConfig(jc *JsonConfig, cfg *Config) {
	cfg.Snowflake = Snowflake{
		Account:              jc.Snowflake.Account,
		User:                 jc.Snowflake.User,
		AuthMethod:           jc.Snowflake.AuthMethod,
		PrivateKeyPath:       jc.Snowflake.PrivateKeyPath,
		PrivateKeyPassphrase: jc.Snowflake.PrivateKeyPassphrase,
		PublicKeyFingerprint: jc.Snowflake.PublicKeyFingerprint,
		TokenLifetime:        time.Duration(jc.Snowflake.TokenLifetime.Duration),
		PATToken:             jc.Snowflake.PATToken,
		ControlHost:          jc.Snowflake.ControlHost,
		Database:             jc.Snowflake.Database,
		Schema:               jc.Snowflake.Schema,
		Pipe:                 jc.Snowflake.Pipe,
		Channel:              jc.Snowflake.Channel,
	}
	cfg.Ollama = Ollama(jc.Ollama)
	cfg.Camera = Camera(jc.Camera)
	cfg.Slack = Slack(jc.Slack)
	cfg.S3 = S3(jc.S3)
	cfg.BatchSize = jc.BatchSize
	cfg.Interval = time.Duration(jc.Interval.Duration)
	cfg.VerifyCommit = jc.VerifyCommit
	cfg.CommitTimeout = time.Duration(jc.CommitTimeout.Duration)
	cfg.SpoolPath = jc.SpoolPath
	cfg.SpoolDrainLimit = jc.SpoolDrainLimit
	cfg.SpoolMaxBatches = jc.SpoolMaxBatches
	cfg.Debug = jc.Debug
}
