package logger

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// Init configures the global logger. In production it writes JSON to logDir/app.log
// and falls back to stdout if the file cannot be opened.
func Init(env, level, logDir string) {
	Log.SetReportCaller(true)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
		},
	})
	Log.SetLevel(parseLevel(level))

	if env != "production" || logDir == "" {
		Log.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		Log.SetOutput(os.Stdout)
		Log.WithError(err).Warn("failed to create log directory, using stdout")
		return
	}
	file, err := os.OpenFile(filepath.Join(logDir, "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		Log.SetOutput(os.Stdout)
		Log.WithError(err).Warn("failed to open log file, using stdout")
		return
	}
	Log.SetOutput(io.MultiWriter(os.Stdout, file))
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
