package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// InitLogger builds the console logger and, when configured, registers the
// append-only run log as arbor's file writer.
func InitLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	if previous := arbor.GetRegisteredWriter(arbor.WRITER_FILE); previous != nil {
		previous.Close()
		arbor.UnregisterWriter(arbor.WRITER_FILE)
	}

	if config.Logging.File != "" {
		if dir := filepath.Dir(config.Logging.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Printf("Warning: Failed to create log directory %s: %v\n", dir, err)
			}
		}
		runLog, err := NewRunLogWriter(config.Logging.File)
		if err != nil {
			fmt.Printf("Warning: Failed to open run log %s: %v\n", config.Logging.File, err)
		} else {
			arbor.RegisterWriter(arbor.WRITER_FILE, runLog)
		}
	}

	logger = logger.WithConsoleWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	})

	level := config.Logging.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}
