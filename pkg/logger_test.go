package eventbuilder

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

type recordingLogger struct {
	mu       sync.Mutex
	infos    []string
	warnings []string
	errors   []string
}

func (l *recordingLogger) Info(message string, module string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf("[%s] %s", module, message))
}

func (l *recordingLogger) Warn(message string, module string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf("[%s] %s", module, message))
}

func (l *recordingLogger) Error(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, message)
}

func (l *recordingLogger) warned(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

// useRecordingLogger installs a recording logger for the duration of the
// test.
func useRecordingLogger(t *testing.T) *recordingLogger {
	t.Helper()
	rec := &recordingLogger{}
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })
	return rec
}

func TestSetLogger_WhenNil_ShouldFallBackToNop(t *testing.T) {
	SetLogger(nil)
	// must not panic
	logger.Info("message", "test")
	logger.Warn("message", "test")
	logger.Error("message")
}
