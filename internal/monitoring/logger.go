package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level diagnostic logger shared by every component.
// Tests may redirect or mute it with SetOutput.
var Logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Logf logs a formatted message at info level
func Logf(format string, v ...interface{}) {
	Logger.Infof(format, v...)
}

// Configure sets the log level (debug, info, warn, error) and the output
// format (text or json)
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	Logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q (use text or json)", format)
	}
	return nil
}

// SetOutput redirects the logger. Passing nil mutes it.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	Logger.SetOutput(w)
}

// WithRequest returns an entry tagged with a request id
func WithRequest(requestID string) *logrus.Entry {
	return Logger.WithField("request_id", requestID)
}
