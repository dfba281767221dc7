/*
Package logging sets up the structured logger for a run: console output
plus one plain-text log file per run date, with timestamps in the
configured time zone.
*/
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/phuslu/log"

	"github.com/shanehull/kindwatch/internal/config"
)

// New builds a logger writing to stderr and to a per-date file under
// logDir. The returned path is the log file for this run date.
func New(cfg config.LoggingConfig, logDir string, loc *time.Location, now time.Time) (*log.Logger, string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("kindwatch_%s.log", now.In(loc).Format("20060102")))

	logger := &log.Logger{
		Level:        log.ParseLevel(cfg.Level),
		TimeFormat:   "2006-01-02 15:04:05 MST",
		TimeLocation: loc,
		Writer: &log.MultiEntryWriter{
			&log.ConsoleWriter{
				Writer:         os.Stderr,
				ColorOutput:    false,
				EndWithMessage: true,
			},
			&log.FileWriter{
				Filename:     logPath,
				EnsureFolder: true,
				LocalTime:    true,
			},
		},
	}

	return logger, logPath, nil
}
