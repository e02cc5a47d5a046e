package telemetry

import (
	"log/slog"
	"os"
	"testing"
)

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"WARN":  slog.LevelWarn,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		os.Setenv("DATAFLOW_LOG_LEVEL", in)
		if got := levelFromEnv(); got.Level() != want {
			t.Errorf("levelFromEnv() with DATAFLOW_LOG_LEVEL=%q = %v, want %v", in, got, want)
		}
	}
	os.Unsetenv("DATAFLOW_LOG_LEVEL")
}

func TestInitLoggingSetsComponent(t *testing.T) {
	log := InitLogging("test-component")
	if log == nil {
		t.Fatal("InitLogging returned nil")
	}
}
