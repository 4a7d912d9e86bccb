package logging

import (
	"os"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the default time format string for log appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface, so
// any zap core (including `observer` cores in tests) is usable as an appender.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed.
	Sync() error
}

// ConsoleAppender writes console encoded entries to a file handle.
type ConsoleAppender struct {
	out     zapcore.WriteSyncer
	encoder zapcore.Encoder
}

// NewStdoutAppender creates a new appender that logs to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewWriterAppender(zapcore.Lock(os.Stdout))
}

// NewWriterAppender creates a console appender writing to `out`.
func NewWriterAppender(out zapcore.WriteSyncer) ConsoleAppender {
	encoderConfig := NewLoggerConfig().EncoderConfig
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return ConsoleAppender{out: out, encoder: zapcore.NewConsoleEncoder(encoderConfig)}
}

// Write outputs the log entry to the underlying stream.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	_, err = appender.out.Write(buf.Bytes())
	return err
}

// Sync flushes the underlying stream.
func (appender ConsoleAppender) Sync() error {
	return appender.out.Sync()
}

// FileAppender is a console appender writing to a log file that is rotated by size.
type FileAppender struct {
	ConsoleAppender
	file *lumberjack.Logger
}

// NewFileAppender appends to filename, rotating it every 100 MB and keeping 3 compressed backups.
func NewFileAppender(filename string) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 3,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(zapcore.AddSync(file)), file: file}
}

// Close closes the current log file.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}

type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns a logger appender that logs to the underlying `testing.TB` object, so
// log lines are attributed to the test that produced them even when tests run in parallel.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write outputs the log entry to the underlying test object `Log` method.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	const maxLength = 10
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))

	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, entry.Caller.TrimmedPath())
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return nil
	}

	// The json encoder keeps fields in call order, unlike a map.
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return err
	}
	toPrint = append(toPrint, string(buf.Bytes()))
	tapp.tb.Log(strings.Join(toPrint, "\t"))
	return nil
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
