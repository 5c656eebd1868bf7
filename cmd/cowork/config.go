package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaakkos/cowork/internal/policy"
)

// loadConfig loads policy configuration from --config, COWORK_CONFIG or defaults.
func loadConfig(logger *log.Logger) (*policy.Config, error) {
	cfg := policy.DefaultConfig()
	path := configPath
	if path == "" {
		path = os.Getenv("COWORK_CONFIG")
	}
	if path != "" {
		loaded, err := policy.LoadConfig(path)
		if err != nil {
			logger.Printf("Warning: failed to load config %s: %v, using defaults", path, err)
		} else {
			cfg = loaded
		}
	}
	if cfg.WorkspaceRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		cfg.WorkspaceRoot = cwd
	}
	return cfg, nil
}

// setupLogger creates a logger that writes to a log file and optionally stderr.
// When stderr is a terminal, logs go to both stderr and the file. When stderr
// is redirected, logs go only to the file so a redirect does not duplicate them.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[cowork] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[cowork] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	// Always keep at least one output.
	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[cowork] ", log.LstdFlags|log.Lshortfile)
}
