package common

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter is an io.Writer that forwards log lines to testing.T.Log,
// so that logging only shows up for failed tests.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	line := strings.TrimRight(string(d), "\n")

	if a.prefix != "" {
		line = a.prefix + ": " + line
	}

	a.t.Log(line)

	return len(line), nil
}

// NewTestLogger returns a logrus Logger that writes through testing.T.Log.
func NewTestLogger(t testing.TB) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = logrus.DebugLevel
	return logger
}

// NewTestEntry wraps NewTestLogger in a logrus Entry, which is what most
// components expect to receive.
func NewTestEntry(t testing.TB) *logrus.Entry {
	return NewTestLogger(t).WithField("prefix", "test")
}
