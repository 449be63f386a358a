// Package logger builds the hclog loggers used across trickplay.
//
// Components receive an hclog.Logger through their constructors and derive
// named sub-loggers from it. Default is the fallback for constructors given
// a nil logger.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/trickplay/internal/config"
)

var (
	root   hclog.Logger = hclog.New(&hclog.LoggerOptions{Name: "trickplay", Level: hclog.Info})
	rootMu sync.RWMutex
)

// New creates a root logger from the logging configuration.
// The returned closer must be called to release a log file, if one was opened.
func New(cfg config.LoggingConfig) (hclog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		out = os.Stdout
	case "file":
		if cfg.FilePath != "" {
			f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return nil, nil, err
			}
			out = f
			closer = f
		}
	}

	l := hclog.New(&hclog.LoggerOptions{
		Name:       "trickplay",
		Level:      hclog.LevelFromString(cfg.Level),
		Output:     out,
		JSONFormat: strings.EqualFold(cfg.Format, "json"),
		Color:      colorOption(cfg.EnableColors),
	})
	return l, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func colorOption(enabled bool) hclog.ColorOption {
	if enabled {
		return hclog.AutoColor
	}
	return hclog.ColorOff
}

// SetDefault replaces the root logger used by the package-level helpers.
func SetDefault(l hclog.Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// Default returns the root logger.
func Default() hclog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}
