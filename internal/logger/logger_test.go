package logger

import (
	"errors"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	for _, debug := range []bool{true, false} {
		log, err := NewLogger(debug)
		if err != nil {
			t.Fatalf("NewLogger(%v) error = %v", debug, err)
		}
		if log == nil {
			t.Fatalf("NewLogger(%v) returned nil logger", debug)
		}

		log.Info("test message")
		// Sync errors are acceptable in test environments
		_ = log.Sync()
	}
}

func TestNewNopLogger(t *testing.T) {
	log := NewNopLogger()
	if log == nil {
		t.Fatal("NewNopLogger() returned nil")
	}

	// Nop logger should not panic on any operation
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	withLogger := log.With(String("key", "value"))
	if withLogger == nil {
		t.Fatal("With() returned nil")
	}
	withLogger.Info("still fine")

	if err := log.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}

func TestLoggerWith(t *testing.T) {
	log := NewNopLogger()

	child := log.With(String("component", "reconciler"))
	if child == nil {
		t.Fatal("With() returned nil")
	}

	// Chained With must also work
	grandchild := child.With(Int("attempt", 2))
	grandchild.Info("nested")
}

func TestFieldConstructors(t *testing.T) {
	log := NewNopLogger()

	// Exercise every constructor; none may panic
	log.Info("fields",
		String("s", "v"),
		Int("i", 1),
		Int64("i64", int64(2)),
		Uint64("u64", uint64(3)),
		Float64("f", 1.5),
		Bool("b", true),
		Duration("d", time.Second),
		Time("t", time.Now()),
		Error(errors.New("boom")),
		Strings("ss", []string{"a", "b"}),
		Any("any", map[string]int{"k": 1}),
	)
}
