package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitLogging points the global zerolog logger at <dataDir>/debug.log when
// debug is set. Otherwise logging is disabled, since the terminal belongs to
// the TUI.
func InitLogging(dataDir string, debug bool) (io.Closer, error) {
	if !debug {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		log.Logger = zerolog.Nop()
		return nopCloser{}, nil
	}

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, errors.Wrap(err, "failed to prepare data directory")
	}
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - may contain conversation content
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open debug log at %s", logPath)
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(f).With().Timestamp().Caller().Logger()
	log.Info().Str("component", "config").Str("path", logPath).Msg("debug logging started")
	return f, nil
}
