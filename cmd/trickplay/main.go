// Command trickplay generates trickplay tilesheets for video files, either
// once from the command line or as a service with a job API.
//
// Usage:
//
//	trickplay generate [flags] <video>
//	trickplay serve [-config path]
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/trickplay/internal/config"
	"github.com/mantonx/trickplay/internal/logger"
)

const usage = `Usage: trickplay <command> [flags]

Commands:
  generate   generate tilesheets for a single video
  serve      run the job API and library watcher

Run 'trickplay <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration file, falling back to TRICKPLAY_CONFIG
// and then ./trickplay.yaml when no path is given
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("TRICKPLAY_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("./trickplay.yaml"); err == nil {
			path = "./trickplay.yaml"
		}
	}
	if err := config.Load(path); err != nil {
		return nil, err
	}
	return config.Get(), nil
}

// setupLogger builds the root logger, letting level override the configured one
func setupLogger(cfg config.LoggingConfig, level string) (hclog.Logger, func(), error) {
	if level != "" {
		cfg.Level = strings.ToLower(level)
	}
	log, closer, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetDefault(log)
	return log, func() { _ = closer.Close() }, nil
}
