package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != dir {
		t.Fatalf("data dir %q, want %q", cfg.DataDir, dir)
	}
	if cfg.Port != 8787 {
		t.Fatalf("default port %d", cfg.Port)
	}
	if cfg.DBPath() != filepath.Join(dir, "questlog.db") {
		t.Fatalf("db path %q", cfg.DBPath())
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("port: 9000\ndb_file: other.db\ngemini_endpoint: http://file.example\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QUESTLOG_PORT", "9100")
	t.Setenv("GEMINI_API_KEY", "gk")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("env should beat file: port %d", cfg.Port)
	}
	if cfg.DBFile != "other.db" {
		t.Fatalf("db file %q", cfg.DBFile)
	}
	if cfg.GeminiEndpoint != "http://file.example" {
		t.Fatalf("endpoint %q", cfg.GeminiEndpoint)
	}
	if cfg.GeminiKey != "gk" {
		t.Fatalf("key %q", cfg.GeminiKey)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: [oops"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed config")
	}
}
