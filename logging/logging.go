package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	logger  = newLogger()
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

// Options controls how the package logger is configured
type Options struct {
	Debug    bool
	FilePath string
	JSON     bool
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetupLogger configures the package logger. With a file path, output is written
// to the file, and also to stderr in debug mode.
func SetupLogger(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return errors.Wrap(err, "failed to open log file")
		}
		logFile = f
		if opts.Debug {
			logger.SetOutput(io.MultiWriter(os.Stderr, f))
		} else {
			logger.SetOutput(f)
		}
		logger.Debugf("--- imagemanager log started at %s ---", time.Now().Format(time.RFC3339))
	}

	isSetup = true
	return nil
}

// CloseLogger closes the log file and restores stderr output
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Debugf("--- imagemanager log closed at %s ---", time.Now().Format(time.RFC3339))
		logger.SetOutput(os.Stderr)
		logFile.Close()
		logFile = nil
	}
	isSetup = false
}

// Logger returns the package logger
func Logger() *logrus.Logger {
	return logger
}

// WithComponent returns an entry tagged with the component name
func WithComponent(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// LogImageProcessed logs the outcome of hashing one image
func LogImageProcessed(entry *logrus.Entry, path string, err error) {
	if entry == nil {
		entry = logrus.NewEntry(logger)
	}
	if err != nil {
		entry.WithField("path", path).WithError(err).Warn("image skipped")
		return
	}
	entry.WithField("path", path).Debug("image processed")
}
