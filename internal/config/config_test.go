package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"garbage", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLogLevel(tt.in); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("LOOM_LLM_PROVIDER")
	os.Unsetenv("LOOM_EMBED_DIMENSION")

	cfg := Load()
	if cfg.LLMProvider != ProviderOllama {
		t.Errorf("LLMProvider = %q, want %q", cfg.LLMProvider, ProviderOllama)
	}
	if cfg.EmbedDimension != 384 {
		t.Errorf("EmbedDimension = %d, want 384", cfg.EmbedDimension)
	}
	if cfg.Scoring != DefaultScoring() {
		t.Errorf("Scoring = %+v, want defaults", cfg.Scoring)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LOOM_TEST_INT", "42")
	if got := getEnvInt("LOOM_TEST_INT", 7); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}

	t.Setenv("LOOM_TEST_INT", "not-a-number")
	if got := getEnvInt("LOOM_TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt with invalid value = %d, want default 7", got)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	content := []byte("llm_model: mistral\nscoring:\n  importance_weight: 0.5\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	base := Load()
	cfg, err := LoadFile(base, path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.LLMModel != "mistral" {
		t.Errorf("LLMModel = %q, want mistral", cfg.LLMModel)
	}
	if cfg.Scoring.ImportanceWeight != 0.5 {
		t.Errorf("ImportanceWeight = %v, want 0.5", cfg.Scoring.ImportanceWeight)
	}
	// Untouched fields keep env defaults.
	if cfg.EmbedModel != base.EmbedModel {
		t.Errorf("EmbedModel changed unexpectedly: %q", cfg.EmbedModel)
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFile(base, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
