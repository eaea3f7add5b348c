package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
)

// Options configures the root logger.
type Options struct {
	Name   string
	Level  string
	Format string // text or json
	File   string
}

// New builds the root logger. When File is set, output goes to stderr and the file.
// The returned closer releases the file and is never nil.
func New(opts Options) (hclog.Logger, io.Closer, error) {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	name := opts.Name
	if name == "" {
		name = "transcriber"
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.Format == "json",
		Color:      colorOption(opts),
	})
	return logger, closer, nil
}

// NewNull returns a logger that discards everything.
func NewNull() hclog.Logger {
	return hclog.NewNullLogger()
}

func colorOption(opts Options) hclog.ColorOption {
	if opts.Format == "json" || opts.File != "" {
		return hclog.ColorOff
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return hclog.AutoColor
	}
	return hclog.ColorOff
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
