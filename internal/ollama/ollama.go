// Package ollama talks to a local Ollama server to summarize telemetry and
// describe captured frames. All failures degrade to an absent result: the
// uploader never stalls because the summarizer is down.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/edgeops/snowedge/internal/logging"
)

const (
	defaultMaxResponseChars = 512
	textTimeout             = 30 * time.Second
	imageTimeout            = 60 * time.Second

	defaultImagePrompt = "Describe the image in one sentence."
)

// Config configures the summarization client.
type Config struct {
	Enabled bool
	BaseURL string
	Model   string

	// PromptTemplate is the text-summary prompt; the literal "{metrics}" is
	// replaced with the serialized metrics row.
	PromptTemplate string

	// MaxResponseChars truncates model output (default 512).
	MaxResponseChars int
}

// Client calls the Ollama generate API.
type Client struct {
	config Config
	http   *http.Client
	log    logging.Logger
}

func NewClient(config Config, log logging.Logger) *Client {
	if config.MaxResponseChars <= 0 {
		config.MaxResponseChars = defaultMaxResponseChars
	}
	return &Client{config: config, http: &http.Client{}, log: log}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize produces a short text summary of one metrics row, or nil when
// summarization is disabled or fails.
func (c *Client) Summarize(ctx context.Context, metrics any) *string {
	if !c.config.Enabled {
		return nil
	}

	serialized, err := json.Marshal(metrics)
	if err != nil {
		c.log.Debug(ctx, "summarize: encode metrics", "error", err)
		return nil
	}
	prompt := strings.ReplaceAll(c.config.PromptTemplate, "{metrics}", string(serialized))

	return c.generate(ctx, generateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
	}, textTimeout)
}

// AnalyzeImage asks the (vision-capable) model to describe the frame at
// imagePath, or nil when disabled or the frame cannot be read.
func (c *Client) AnalyzeImage(ctx context.Context, imagePath, prompt string) *string {
	if !c.config.Enabled {
		return nil
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		c.log.Debug(ctx, "analyze image: read frame", "path", imagePath, "error", err)
		return nil
	}
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	return c.generate(ctx, generateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
	}, imageTimeout)
}

func (c *Client) generate(ctx context.Context, payload generateRequest, timeout time.Duration) *string {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		strings.TrimSuffix(c.config.BaseURL, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug(ctx, "ollama generate failed", "model", payload.Model, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.log.Debug(ctx, "ollama generate rejected", "model", payload.Model, "status", resp.StatusCode)
		return nil
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.log.Debug(ctx, "ollama generate: bad response", "error", err)
		return nil
	}

	text := strings.TrimSpace(parsed.Response)
	if text == "" {
		return nil
	}
	if len(text) > c.config.MaxResponseChars {
		text = text[:c.config.MaxResponseChars]
	}
	return &text
}
