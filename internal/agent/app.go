// Package agent wires the telemetry sampler, the optional collaborators
// (summarizer, camera, Slack, S3) and the streaming client into the upload
// loop.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/edgeops/snowedge/internal/agent/config"
	"github.com/edgeops/snowedge/internal/archive"
	"github.com/edgeops/snowedge/internal/camera"
	"github.com/edgeops/snowedge/internal/logging"
	"github.com/edgeops/snowedge/internal/notify"
	"github.com/edgeops/snowedge/internal/ollama"
	"github.com/edgeops/snowedge/internal/snowflake/auth"
	"github.com/edgeops/snowedge/internal/snowflake/streaming"
	"github.com/edgeops/snowedge/internal/spool"
	"github.com/edgeops/snowedge/internal/telemetry"
)

const imagePromptTemplate = "You are analyzing a captured image provided in the request. " +
	"Do not ask for a URL or description. " +
	"Return a concise JSON object with keys: " +
	"objects (array of strings), scene (string), anomalies (array of strings), " +
	"risk_note (string)."

// session is the subset of *streaming.Client the loop drives.
type session interface {
	Connect(ctx context.Context) error
	IngestHost() string
	LastCommittedOffset() *string
	AppendRows(ctx context.Context, rows []streaming.Row, offsetToken *string) (streaming.AppendResult, error)
	WaitForCommit(ctx context.Context, expectedOffset *string, timeout time.Duration) bool
}

type sampler interface {
	Sample(ctx context.Context) (telemetry.Sample, error)
}

type summarizer interface {
	Summarize(ctx context.Context, metrics any) *string
	AnalyzeImage(ctx context.Context, imagePath, prompt string) *string
}

type frameGrabber interface {
	CaptureFrame(ctx context.Context) (string, bool)
}

type frameNotifier interface {
	SendImage(ctx context.Context, imagePath string, caption *string)
}

type frameArchiver interface {
	ArchiveFrame(ctx context.Context, imagePath string) (string, bool)
}

type batchSpool interface {
	Put(ctx context.Context, rows []byte, offsetToken *string) (string, error)
	OldestFirst(ctx context.Context, limit int) ([]spool.Batch, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// App runs the telemetry upload loop.
type App struct {
	config *config.Config
	log    logging.Logger

	session  session
	sampler  sampler
	ollama   summarizer
	camera   frameGrabber
	notifier frameNotifier
	archiver frameArchiver
	spool    batchSpool

	lastOffset *string
	now        func() time.Time
}

// NewApp builds the app from configuration. Credential and channel identity
// problems surface here rather than at the first request.
func NewApp(cfg *config.Config, log logging.Logger) (*App, error) {
	client, err := newStreamingClient(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		config:   cfg,
		log:      log,
		session:  client,
		sampler:  &telemetry.Sampler{},
		ollama:   ollama.NewClient(ollamaConfig(cfg), log),
		camera:   camera.NewGrabber(cameraConfig(cfg), log),
		notifier: notify.NewNotifier(slackConfig(cfg), log),
		archiver: archive.NewArchiver(s3Config(cfg), log),
		now:      time.Now,
	}, nil
}

func newStreamingClient(cfg *config.Config) (*streaming.Client, error) {
	method := auth.MethodKeyPair
	if cfg.Snowflake.AuthMethod == string(auth.MethodPAT) {
		method = auth.MethodPAT
	}

	return streaming.NewClient(streaming.Config{
		Credentials: auth.Config{
			Account:              cfg.Snowflake.Account,
			User:                 cfg.Snowflake.User,
			Method:               method,
			PrivateKeyPath:       cfg.Snowflake.PrivateKeyPath,
			PrivateKeyPassphrase: cfg.Snowflake.PrivateKeyPassphrase,
			PublicKeyFingerprint: cfg.Snowflake.PublicKeyFingerprint,
			TokenLifetime:        cfg.Snowflake.TokenLifetime,
			PATToken:             cfg.Snowflake.PATToken,
		},
		ControlHost: cfg.Snowflake.ControlHost,
		Database:    cfg.Snowflake.Database,
		Schema:      cfg.Snowflake.Schema,
		Pipe:        cfg.Snowflake.Pipe,
		Channel:     cfg.Snowflake.Channel,
	})
}

func ollamaConfig(cfg *config.Config) ollama.Config {
	return ollama.Config{
		Enabled:          cfg.Ollama.Enabled,
		BaseURL:          cfg.Ollama.BaseURL,
		Model:            cfg.Ollama.Model,
		PromptTemplate:   cfg.Ollama.PromptTemplate,
		MaxResponseChars: cfg.Ollama.MaxResponseChars,
	}
}

func cameraConfig(cfg *config.Config) camera.Config {
	return camera.Config{
		Enabled:        cfg.Camera.Enabled,
		DeviceIndex:    cfg.Camera.DeviceIndex,
		OutputDir:      cfg.Camera.OutputDir,
		FilenamePrefix: cfg.Camera.FilenamePrefix,
		Command:        cfg.Camera.Command,
	}
}

func slackConfig(cfg *config.Config) notify.Config {
	return notify.Config{
		Enabled:       cfg.Slack.Enabled,
		BotToken:      cfg.Slack.BotToken,
		Channel:       cfg.Slack.Channel,
		MessagePrefix: cfg.Slack.MessagePrefix,
	}
}

func s3Config(cfg *config.Config) archive.Config {
	return archive.Config{
		Enabled:      cfg.S3.Enabled,
		Region:       cfg.S3.Region,
		Bucket:       cfg.S3.Bucket,
		AccessKey:    cfg.S3.AccessKey,
		SecretKey:    cfg.S3.SecretKey,
		BaseEndpoint: cfg.S3.BaseEndpoint,
	}
}

// Run connects the channel session and uploads batches until ctx is
// canceled. The channel is intentionally not dropped on shutdown so the next
// start can re-attach and resume from the committed offset.
func (a *App) Run(ctx context.Context) error {
	sp, err := spool.Open(ctx, a.config.SpoolPath, a.config.SpoolMaxBatches)
	if err != nil {
		return err
	}
	a.spool = sp
	defer func() { _ = sp.Close() }()

	if err := a.connect(ctx); err != nil {
		return err
	}
	a.lastOffset = a.session.LastCommittedOffset()
	a.log.Info(ctx, "connected", "ingest_host", a.session.IngestHost(),
		"channel", a.config.Snowflake.Channel, "last_committed", deref(a.lastOffset))

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	batchNumber := 0
	for {
		batchNumber++
		a.runCycle(ctx, batchNumber)

		select {
		case <-ctx.Done():
			a.log.Info(ctx, "shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// connect establishes the session, prompting for the key passphrase once
// when the private key turns out to be encrypted and no passphrase was
// configured.
func (a *App) connect(ctx context.Context) error {
	err := a.session.Connect(ctx)
	if err == nil || !errors.Is(err, auth.ErrPassphraseRequired) {
		return err
	}

	passphrase, promptErr := promptPassphrase()
	if promptErr != nil {
		return err
	}

	a.config.Snowflake.PrivateKeyPassphrase = passphrase
	client, rebuildErr := newStreamingClient(a.config)
	if rebuildErr != nil {
		return rebuildErr
	}
	a.session = client
	return a.session.Connect(ctx)
}

// runCycle performs one upload: drain spooled batches, build the fresh
// batch, append it, and optionally wait for the commit. A failed append
// spools the batch for a later cycle.
func (a *App) runCycle(ctx context.Context, batchNumber int) {
	a.drainSpool(ctx)

	rows, err := a.buildBatch(ctx)
	if err != nil {
		a.log.Error(ctx, "sampling failed, skipping cycle", "batch", batchNumber, "error", err)
		return
	}

	offset := nextOffset(a.lastOffset, a.now())
	result, err := a.session.AppendRows(ctx, rows, &offset)
	if err != nil {
		a.log.Error(ctx, "append failed, spooling batch", "batch", batchNumber,
			"rows", len(rows), "offset", offset, "error", err)
		a.spoolBatch(ctx, rows, &offset)
		return
	}
	a.lastOffset = &offset

	a.log.Info(ctx, "batch sent", "batch", batchNumber, "rows", result.RowCount, "offset", offset)

	if a.config.VerifyCommit {
		committed := a.session.WaitForCommit(ctx, &offset, a.config.CommitTimeout)
		status := "pending"
		if committed {
			status = "committed"
		}
		a.log.Info(ctx, "commit status", "batch", batchNumber, "offset", offset, "status", status)
	}
}

// buildBatch samples BatchSize rows. The summary, frame capture, frame
// analysis and notifications happen once per batch and are attached to
// every row, mirroring how the rows land in one table.
func (a *App) buildBatch(ctx context.Context) ([]streaming.Row, error) {
	first, err := a.sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}

	summary := a.ollama.Summarize(ctx, first)
	if a.config.Ollama.Enabled && summary == nil {
		a.log.Warn(ctx, "edge_ai_summary is empty; check ollama config/model")
	}

	imagePath, imageCaptured := a.camera.CaptureFrame(ctx)
	if a.config.Camera.Enabled && !imageCaptured {
		a.log.Warn(ctx, "frame capture enabled but no image was captured")
	}

	var imageAnalysis *string
	if imageCaptured {
		imageAnalysis = a.ollama.AnalyzeImage(ctx, imagePath, imagePromptTemplate)
		a.notifier.SendImage(ctx, imagePath, imageAnalysis)
		a.archiver.ArchiveFrame(ctx, imagePath)
	}

	rows := make([]streaming.Row, 0, a.config.BatchSize)
	for i := 0; i < a.config.BatchSize; i++ {
		sample := first
		if i > 0 {
			sample, err = a.sampler.Sample(ctx)
			if err != nil {
				return nil, err
			}
		}
		sample.EdgeAISummary = summary
		if imageCaptured {
			sample.ImagePath = &imagePath
		}
		sample.ImageCaptured = imageCaptured
		sample.ImageAnalysis = imageAnalysis

		row, err := sampleToRow(sample)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// drainSpool retries previously failed batches oldest-first. A batch is
// deleted only after its append succeeds; the first failure stops the drain
// for this cycle.
func (a *App) drainSpool(ctx context.Context) {
	batches, err := a.spool.OldestFirst(ctx, a.config.SpoolDrainLimit)
	if err != nil {
		a.log.Error(ctx, "spool read failed", "error", err)
		return
	}

	for _, b := range batches {
		rows, err := decodeRows(b.Rows)
		if err != nil {
			a.log.Error(ctx, "dropping corrupt spooled batch", "id", b.ID, "error", err)
			_ = a.spool.Delete(ctx, b.ID)
			continue
		}

		if _, err := a.session.AppendRows(ctx, rows, b.OffsetToken); err != nil {
			a.log.Warn(ctx, "spooled batch still failing", "id", b.ID, "error", err)
			return
		}
		if b.OffsetToken != nil {
			a.lastOffset = b.OffsetToken
		}

		if err := a.spool.Delete(ctx, b.ID); err != nil {
			a.log.Error(ctx, "spool delete failed", "id", b.ID, "error", err)
			return
		}
		a.log.Info(ctx, "spooled batch sent", "id", b.ID, "rows", len(rows))
	}
}

func (a *App) spoolBatch(ctx context.Context, rows []streaming.Row, offset *string) {
	encoded, err := encodeRows(rows)
	if err != nil {
		a.log.Error(ctx, "batch lost, could not encode for spool", "error", err)
		return
	}
	id, err := a.spool.Put(ctx, encoded, offset)
	if err != nil {
		a.log.Error(ctx, "batch lost, spool write failed", "error", err)
		return
	}
	a.log.Info(ctx, "batch spooled", "id", id, "rows", len(rows))
}

// nextOffset picks the offset token for the next batch: last+1 while the
// chain stays numeric, epoch milliseconds once it is not, "1" for a fresh
// channel.
func nextOffset(current *string, now time.Time) string {
	if current == nil {
		return "1"
	}
	if n, err := strconv.ParseInt(*current, 10, 64); err == nil {
		return strconv.FormatInt(n+1, 10)
	}
	return strconv.FormatInt(now.UnixMilli(), 10)
}

func sampleToRow(s telemetry.Sample) (streaming.Row, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var row streaming.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func encodeRows(rows []streaming.Row) ([]byte, error) {
	return json.Marshal(rows)
}

func decodeRows(data []byte) ([]streaming.Row, error) {
	var rows []streaming.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
