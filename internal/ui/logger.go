// Package ui provides terminal styling and logger setup for docrag.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// LogFormats lists the accepted --log-format values.
var LogFormats = []string{"text", "json", "logfmt"}

// InitLogger configures the package-level charm logger for the CLI.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug switches between debug and info level. Debug output carries
// timestamps.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.InfoLevel)
		log.SetReportTimestamp(false)
	}
}

// SetLogFormat selects the log encoding. Structured formats always carry
// timestamps.
func SetLogFormat(format string) error {
	formatter, err := parseFormat(format)
	if err != nil {
		return err
	}
	log.SetFormatter(formatter)
	if formatter != log.TextFormatter {
		log.SetReportTimestamp(true)
	}
	return nil
}

func parseFormat(format string) (log.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("unknown log format %q (want one of %s)", format, strings.Join(LogFormats, ", "))
	}
}
