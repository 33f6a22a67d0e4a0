package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ArchiveRoot != "archive" {
		t.Errorf("ArchiveRoot = %q, want %q", cfg.ArchiveRoot, "archive")
	}
	if cfg.BatchSize != 200 {
		t.Errorf("BatchSize = %d, want 200", cfg.BatchSize)
	}
	if cfg.WriteRetries != 3 {
		t.Errorf("WriteRetries = %d, want 3", cfg.WriteRetries)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thywill.yaml")
	data := []byte("archive_root: /srv/archive\ndatabase_path: /srv/thywill.db\nbatch_size: 50\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ArchiveRoot != "/srv/archive" {
		t.Errorf("ArchiveRoot = %q, want /srv/archive", cfg.ArchiveRoot)
	}
	if cfg.DatabasePath != "/srv/thywill.db" {
		t.Errorf("DatabasePath = %q, want /srv/thywill.db", cfg.DatabasePath)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	// Unspecified fields keep defaults.
	if cfg.WriteBackoff != 50*time.Millisecond {
		t.Errorf("WriteBackoff = %v, want 50ms", cfg.WriteBackoff)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thywill.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 50\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("THYWILL_BATCH_SIZE", "25")
	t.Setenv("THYWILL_ARCHIVE_ROOT", "/env/archive")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25 (env override)", cfg.BatchSize)
	}
	if cfg.ArchiveRoot != "/env/archive" {
		t.Errorf("ArchiveRoot = %q, want /env/archive", cfg.ArchiveRoot)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ArchiveRoot != "archive" {
		t.Errorf("ArchiveRoot = %q, want default", cfg.ArchiveRoot)
	}
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thywill.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded with batch_size 0, want error")
	}
}
