// Package klog centralizes kernel logging behind logrus, replacing
// open-coded uartPuts/print call sites with leveled, structured logging.
// Fatal is reserved for the Corruption error class: stack canary/guard
// mismatches, free-list cycles, and misaligned task pointers discovered
// during scheduling.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the minimum level that will be emitted.
func SetLevel(level string) error {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lv)
	return nil
}

// Fields is a structured field set attached to a log line.
type Fields = logrus.Fields

func Debug(msg string, f Fields) { entry(f).Debug(msg) }
func Info(msg string, f Fields)  { entry(f).Info(msg) }
func Warn(msg string, f Fields)  { entry(f).Warn(msg) }
func Error(msg string, f Fields) { entry(f).Error(msg) }

// Fatal logs at fatal level and halts the process. Reserved for
// Corruption-class invariant violations; every other failure mode is
// returned to the caller as a sentinel, never panicked or fataled.
func Fatal(msg string, f Fields) { entry(f).Fatal(msg) }

func entry(f Fields) *logrus.Entry {
	if f == nil {
		return logrus.NewEntry(log)
	}
	return log.WithFields(f)
}
