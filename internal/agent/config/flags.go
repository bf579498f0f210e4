package config

import (
	"flag"
	"os"
	"time"

	"github.com/edgeops/snowedge/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-b int       samples per upload batch (default from Config)
//	-i int       upload interval in seconds (default from Config)
//	-verify      wait for each batch's offset token to commit
//	-model str   ollama model override
//	-debug       verbose logging
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-b", "-i", "-verify", "-model", "-debug"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.IntVar(&cfg.BatchSize, "b", cfg.BatchSize, "samples per upload batch")
	interval := fs.Int("i", int(cfg.Interval.Seconds()), "upload interval (in seconds)")
	fs.BoolVar(&cfg.VerifyCommit, "verify", cfg.VerifyCommit, "wait for each batch's offset to commit")
	fs.StringVar(&cfg.Ollama.Model, "model", cfg.Ollama.Model, "ollama model override")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "verbose logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.Interval = time.Duration(*interval) * time.Second
}
