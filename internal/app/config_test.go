package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.K != 25 || cfg.Retrieval.Cap != 10 {
		t.Fatalf("retrieval defaults = %d/%d", cfg.Retrieval.K, cfg.Retrieval.Cap)
	}
	if cfg.Alias.ExpansionCap != 5 || cfg.Alias.MinConfidence != 0.30 {
		t.Fatalf("alias defaults = %d/%v", cfg.Alias.ExpansionCap, cfg.Alias.MinConfidence)
	}
	if cfg.Timeouts.Total != 120*time.Second || cfg.Dedup.Window != 2*time.Second {
		t.Fatalf("timeout defaults = %v/%v", cfg.Timeouts.Total, cfg.Dedup.Window)
	}
	if cfg.LLM.IntentModel != "intent-small" || cfg.LLM.MainModel != "main-large" {
		t.Fatalf("llm defaults = %s/%s", cfg.LLM.IntentModel, cfg.LLM.MainModel)
	}
	if cfg.Conversation.TruncateChars != 3000 || cfg.Conversation.KeepExchanges != 4 {
		t.Fatalf("conversation defaults = %d/%d", cfg.Conversation.TruncateChars, cfg.Conversation.KeepExchanges)
	}
}

func TestLoadConfigYAMLOverlayAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsense.yaml")
	overlay := []byte(`
retrieval:
  k: 40
  cap: 7
llm:
  main_model: from-file
timeouts:
  total_s: 60
`)
	if err := os.WriteFile(path, overlay, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCSENSE_CONFIG", path)
	// Env beats the file.
	t.Setenv("LLM_MAIN_MODEL", "from-env")

	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.K != 40 || cfg.Retrieval.Cap != 7 {
		t.Fatalf("file overlay not applied: %d/%d", cfg.Retrieval.K, cfg.Retrieval.Cap)
	}
	if cfg.Timeouts.Total != 60*time.Second {
		t.Fatalf("total timeout = %v", cfg.Timeouts.Total)
	}
	if cfg.LLM.MainModel != "from-env" {
		t.Fatalf("env must win over file, got %s", cfg.LLM.MainModel)
	}
	// Untouched values keep defaults.
	if cfg.LLM.IntentModel != "intent-small" {
		t.Fatalf("intent model = %s", cfg.LLM.IntentModel)
	}
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("retrieval: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCSENSE_CONFIG", path)
	if _, err := LoadConfig(logger.NewNop()); err == nil {
		t.Fatal("malformed config file must fail loading")
	}
}
