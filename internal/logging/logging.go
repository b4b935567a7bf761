package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jrsteele09/go-authkit-session/internal/config"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	rotationTime = 24 * time.Hour
	maxAge       = 7 * 24 * time.Hour
)

// Init configures the global zerolog logger from config. Console output goes to
// stderr so command output on stdout stays machine readable.
func Init(cfg config.LogConfig) error {
	w, err := writer(cfg, os.Stderr)
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.GetLogLevel(), err)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

func writer(cfg config.LogConfig, console io.Writer) (io.Writer, error) {
	var out io.Writer = console
	if cfg.GetLogFormat() != "json" {
		out = zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly}
	}
	if cfg.GetLogFile() == "" {
		return out, nil
	}

	rl, err := rotatelogs.New(
		cfg.GetLogFile(),
		rotatelogs.WithRotationTime(rotationTime),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("rotatelogs.New: %w", err)
	}
	// The file always gets JSON lines
	return zerolog.MultiLevelWriter(out, rl), nil
}
