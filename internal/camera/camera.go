// Package camera grabs single JPEG frames from a local capture device by
// shelling out to an external grabber such as ffmpeg or nvgstcapture.
package camera

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/edgeops/snowedge/internal/filex"
	"github.com/edgeops/snowedge/internal/logging"
)

// Seam for tests.
var runCommand = func(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Config configures frame capture. Command is the grabber argv; the
// placeholders {device} and {output} are replaced with the device index and
// the target file path before execution.
type Config struct {
	Enabled        bool
	DeviceIndex    int
	OutputDir      string
	FilenamePrefix string
	Command        []string
}

// Grabber captures frames per its configuration. Capture problems are
// reported to the caller as (no path, not captured), never as an error:
// the telemetry upload must not depend on a camera being present.
type Grabber struct {
	config Config
	log    logging.Logger
}

func NewGrabber(config Config, log logging.Logger) *Grabber {
	if config.FilenamePrefix == "" {
		config.FilenamePrefix = "orin"
	}
	return &Grabber{config: config, log: log}
}

// CaptureFrame grabs one frame into the output directory and returns its
// path. The second return reports whether a frame was actually captured.
func (g *Grabber) CaptureFrame(ctx context.Context) (string, bool) {
	if !g.config.Enabled {
		return "", false
	}
	if len(g.config.Command) == 0 {
		g.log.Warn(ctx, "frame capture enabled but no grabber command configured")
		return "", false
	}

	dir, err := filex.EnsureDir(g.config.OutputDir)
	if err != nil {
		g.log.Warn(ctx, "frame output dir unavailable", "dir", g.config.OutputDir, "error", err)
		return "", false
	}

	output := filepath.Join(dir, fmt.Sprintf("%s%s.jpg", g.config.FilenamePrefix, uuid.NewString()))

	args := make([]string, 0, len(g.config.Command)-1)
	name := expandPlaceholders(g.config.Command[0], g.config.DeviceIndex, output)
	for _, arg := range g.config.Command[1:] {
		args = append(args, expandPlaceholders(arg, g.config.DeviceIndex, output))
	}

	if err := runCommand(ctx, name, args...); err != nil {
		g.log.Warn(ctx, "frame capture failed", "device", g.config.DeviceIndex, "error", err)
		return "", false
	}

	return output, true
}

func expandPlaceholders(arg string, device int, output string) string {
	arg = strings.ReplaceAll(arg, "{device}", strconv.Itoa(device))
	return strings.ReplaceAll(arg, "{output}", output)
}
