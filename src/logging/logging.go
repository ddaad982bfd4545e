package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileHook writes every entry to a rotated file.
type FileHook struct {
	formatter logger.Formatter
	writer    io.Writer
}

func NewFileHook(writer io.Writer, formatter logger.Formatter) *FileHook {
	return &FileHook{writer: writer, formatter: formatter}
}

func (h *FileHook) Levels() []logger.Level {
	return logger.AllLevels
}

func (h *FileHook) Fire(entry *logger.Entry) error {
	formatted, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(formatted)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures l from cfg. The returned closer releases the log file.
func Setup(l *logger.Logger, cfg Config) (io.Closer, error) {
	level, err := logger.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logger.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(formatterFor(cfg.Format, false))

	if cfg.File == "" {
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	l.AddHook(NewFileHook(rotated, formatterFor(cfg.Format, true)))
	return rotated, nil
}

func formatterFor(format string, file bool) logger.Formatter {
	if strings.EqualFold(format, "json") {
		return &logger.JSONFormatter{}
	}
	return &logger.TextFormatter{
		FullTimestamp: true,
		DisableColors: file,
	}
}
