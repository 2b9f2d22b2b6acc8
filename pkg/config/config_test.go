package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("expected Default() to be valid, got: %v", err)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dht.yaml")
	if err := os.WriteFile(path, []byte("kbucket_size: 40\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.KBucketSize != 40 {
		t.Fatalf("expected overridden kbucket_size 40, got %d", cfg.KBucketSize)
	}
	if cfg.Replication.Factor != 5 {
		t.Fatalf("expected unset fields to retain their default, got factor=%d", cfg.Replication.Factor)
	}
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dht.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: not-a-level\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an invalid logging level to fail validation")
	}
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dht.yaml")

	cfg := Default()
	cfg.KBucketSize = 7
	if err := Write(cfg, path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.KBucketSize != 7 {
		t.Fatalf("expected round-tripped kbucket_size 7, got %d", got.KBucketSize)
	}
}
