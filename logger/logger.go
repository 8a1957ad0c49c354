package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const DefaultLoggerLevel = logrus.InfoLevel

var root = initializeDefaultLogger()

type Config struct {
	Level string
}

type Logger struct {
	*logrus.Entry
}

// SetupLogger applies the level from config to every module logger
func SetupLogger(config *Config) error {
	if config == nil || config.Level == "" {
		return nil
	}
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return err
	}
	root.SetLevel(level)
	return nil
}

// SetOutput redirects the logs, stderr by default
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}

// GetLogger for the module
func GetLogger(modules ...string) *Logger {
	return &Logger{Entry: root.WithField("module", strings.Join(modules, "."))}
}

func initializeDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(DefaultLoggerLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: true,
	})
	return l
}
