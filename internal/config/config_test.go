package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchemaVersion != 1 {
		t.Fatalf("expected default schema version 1, got %d", cfg.SchemaVersion)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected default config persisted to disk: %v", statErr)
	}
}

func TestLoadFallsBackToBackupOnCorruptPrimary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	backupPath := path + ".bak"

	good := Default()
	good.DataRoot = "from-backup"
	if err := writeJSON(backupPath, good); err != nil {
		t.Fatalf("seed backup: %v", err)
	}

	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("write corrupt primary: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataRoot != "from-backup" {
		t.Fatalf("expected config restored from backup, got %+v", cfg)
	}

	restored, err := readJSON(path)
	if err != nil {
		t.Fatalf("expected primary restored and readable: %v", err)
	}
	if restored.DataRoot != "from-backup" {
		t.Fatalf("expected restored primary to match backup contents, got %+v", restored)
	}
}

func TestSaveRotatesPrimaryToBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	first := Default()
	first.DataRoot = "v1"
	if err := Save(path, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	second := Default()
	second.DataRoot = "v2"
	if err := Save(path, second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	backup, err := readJSON(path + ".bak")
	if err != nil {
		t.Fatalf("readJSON backup: %v", err)
	}
	if backup.DataRoot != "v1" {
		t.Fatalf("expected backup to hold the previous version, got %+v", backup)
	}

	current, err := readJSON(path)
	if err != nil {
		t.Fatalf("readJSON current: %v", err)
	}
	if current.DataRoot != "v2" {
		t.Fatalf("expected primary to hold the new version, got %+v", current)
	}
}

func TestEnvOverlayOverridesDataRoot(t *testing.T) {
	t.Setenv("ENGINE_DATA_ROOT", "/env/override")
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataRoot != "/env/override" {
		t.Fatalf("expected env override applied, got %s", cfg.DataRoot)
	}
}
