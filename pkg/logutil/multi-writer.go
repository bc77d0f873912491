package logutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// NewWithStderrWriter creates a new logger and multi-writer with os.Stderr.
// The returned file object is the log file, nil unless a ".log" output
// is requested. Logs are appended to the existing file, if any.
func NewWithStderrWriter(logLevel string, logOutputs []string) (lg *zap.Logger, wr io.Writer, logFile *os.File, err error) {
	lcfg := GetDefaultZapLoggerConfig()

	wr = os.Stderr
	logFilePath := ""
	for _, out := range logOutputs {
		switch strings.ToLower(out) {
		case "", "default", "stderr":
			continue
		case "stdout":
			wr = os.Stdout
		default:
			if filepath.Ext(out) == ".log" {
				logFilePath = out
			}
		}
	}

	if logFilePath != "" {
		logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0777)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] failed to open log file %q (%v) -- ignoring log file\n", logFilePath, err)
			logFile = nil
		} else {
			wr = io.MultiWriter(wr, logFile)
			lcfg = AddOutputPaths(lcfg, []string{logFilePath}, []string{logFilePath})
		}
	}

	lcfg.Level = zap.NewAtomicLevelAt(ConvertToZapLevel(logLevel))

	lg, err = lcfg.Build()
	if err != nil {
		return nil, nil, nil, err
	}
	return lg, wr, logFile, nil
}
