package logger_test

import (
	"testing"

	"github.com/evdnx/btsim/logger"
	"github.com/evdnx/btsim/testutils"
)

func TestMockLogger(t *testing.T) {
	l := testutils.NewMockLogger()
	l.Info("hello", logger.String("k", "v"))
	if got := l.LastMessage(); got != "hello" {
		t.Fatalf("expected last message 'hello', got %q", got)
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	l := logger.Nop()
	l.Info("anything", logger.Int("n", 1))
	l.Warn("anything")
	l.Error("anything")
}

func TestOrNopReturnsNopForNilLogger(t *testing.T) {
	if logger.OrNop(nil) == nil {
		t.Fatal("expected OrNop(nil) to return a non-nil logger")
	}
}
