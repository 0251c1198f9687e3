package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.jsonc"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("Load(missing) = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadOverridesWithJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bureau.jsonc")
	contents := `{
		// bind address for the demo cluster
		"bind_addr": "0.0.0.0:9999",
		"cache_capacity": 42,
	}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:9999" {
		t.Fatalf("BindAddr = %q, want 0.0.0.0:9999", cfg.BindAddr)
	}
	if cfg.CacheCapacity != 42 {
		t.Fatalf("CacheCapacity = %d, want 42", cfg.CacheCapacity)
	}
	// Unset fields keep their defaults.
	if cfg.MemtableTargetSize != Default().MemtableTargetSize {
		t.Fatalf("MemtableTargetSize = %d, want default", cfg.MemtableTargetSize)
	}
}

func TestLoadRejectsInvalidBloomRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonc")
	if err := os.WriteFile(path, []byte(`{"bloom_false_positive_rate": 1.5}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load with out-of-range bloom rate: want error")
	}
}
