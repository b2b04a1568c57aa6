package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want 30", cfg.HTTP.TimeoutSeconds)
	}
	if len(cfg.KISTokenSentinels) != 3 {
		t.Errorf("KISTokenSentinels = %v, want 3 defaults", cfg.KISTokenSentinels)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	cfg := DefaultConfig()
	cfg.KISSandbox = true
	cfg.HTTP.TimeoutSeconds = 10

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if !got.KISSandbox {
		t.Error("KISSandbox not persisted")
	}
	if got.HTTP.TimeoutSeconds != 10 {
		t.Errorf("TimeoutSeconds = %d, want 10", got.HTTP.TimeoutSeconds)
	}
}

func TestLoadFrom_BackfillsZeroTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"http":{"timeout_seconds":0}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want backfilled 30", cfg.HTTP.TimeoutSeconds)
	}
}

func TestCredentialsGating(t *testing.T) {
	t.Setenv("DART_API_KEY", "k")
	t.Setenv("KIS_APP_KEY", "a")
	t.Setenv("KIS_APP_SECRET", "")
	t.Setenv("ECOS_API_KEY", "")
	t.Setenv("KOSIS_API_KEY", "x")

	creds := LoadCredentials()
	if !creds.HasDART() {
		t.Error("HasDART = false, want true")
	}
	if creds.HasKIS() {
		t.Error("HasKIS = true with missing secret, want false")
	}
	if creds.HasECOS() {
		t.Error("HasECOS = true, want false")
	}
	if !creds.HasKOSIS() {
		t.Error("HasKOSIS = false, want true")
	}
}
