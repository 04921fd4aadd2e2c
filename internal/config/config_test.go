package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 9090, "api_key": "secret"},
		"tracker": {"token": "glpat-x", "project_id": "42"},
		"oracle": {"api_key": "sk-x", "model": "gpt-4o-mini"},
		"store": {"path": "/tmp/sp.db"},
		"sweeper": {"schedule": "@every 15m"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Oracle.Type != "openai" {
		t.Errorf("oracle type default = %q", cfg.Oracle.Type)
	}
	if cfg.Tracker.ProjectID != "42" {
		t.Errorf("tracker = %+v", cfg.Tracker)
	}
	if cfg.Sweeper.Schedule != "@every 15m" {
		t.Errorf("sweeper = %+v", cfg.Sweeper)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.json"); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	path := writeConfig(t, `{
		"tracker": {"token": "glpat-x"},
		"oracle": {"type": "mystery"},
		"connectors": {"telegram": {}}
	}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"oracle.api_key is required",
		`oracle.type "mystery" is not supported`,
		"must be set together",
		"connectors.telegram.token is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRUMPILOT_OPENAI_API_KEY", "sk-env")
	t.Setenv("SCRUMPILOT_GITLAB_TOKEN", "glpat-env")
	t.Setenv("SCRUMPILOT_GITLAB_PROJECT", "7")
	t.Setenv("SCRUMPILOT_PORT", "7070")
	t.Setenv("SCRUMPILOT_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("SCRUMPILOT_TELEGRAM_ALLOW_FROM", "100, 200")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if cfg.Oracle.Type != "openai" || cfg.Oracle.APIKey != "sk-env" {
		t.Errorf("oracle = %+v", cfg.Oracle)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Tracker.Token != "glpat-env" || cfg.Tracker.ProjectID != "7" {
		t.Errorf("tracker = %+v", cfg.Tracker)
	}
	if cfg.Connectors.Telegram == nil || len(cfg.Connectors.Telegram.AllowFrom) != 2 {
		t.Errorf("telegram = %+v", cfg.Connectors.Telegram)
	}
}

func TestLoadFromEnv_AnthropicWins(t *testing.T) {
	t.Setenv("SCRUMPILOT_ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("SCRUMPILOT_OPENAI_API_KEY", "sk-oai")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if cfg.Oracle.Type != "anthropic" || cfg.Oracle.APIKey != "sk-ant" {
		t.Errorf("oracle = %+v", cfg.Oracle)
	}
}

func TestParseInt64List(t *testing.T) {
	got, err := parseInt64List("1, 2,3,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("got %v", got)
	}

	if _, err := parseInt64List("1,abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
}
