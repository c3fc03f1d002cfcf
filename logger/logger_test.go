package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLoggerLevels(t *testing.T) {
	if l := NewLogger(false); l.Core().Enabled(zap.InfoLevel) {
		t.Errorf("info should be disabled without debug")
	}
	if l := NewLogger(true); !l.Core().Enabled(zap.DebugLevel) {
		t.Errorf("debug should be enabled with debug")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Fatal("OrNop should return the given logger")
	}
}
