package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0640); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesMemoryConstraint(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `{
		"histogram_server": "localhost:8080",
		"telemetry_schema": "`+filepath.Join(dir, "schema.json")+`",
		"storage_path": "`+filepath.Join(dir, "work")+`",
		"upload_path": "`+filepath.Join(dir, "upload")+`",
		"max_uncompressed": 1048576,
		"memory_constraint": "512MiB",
		"compression_preset": 6
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SoftMemoryLimit != 512*1024*1024 {
		t.Fatalf("expected 512MiB in bytes, got %d", cfg.SoftMemoryLimit)
	}
	if _, err := os.Stat(cfg.StoragePath); err != nil {
		t.Fatalf("expected storage_path to be created: %v", err)
	}
	if _, err := os.Stat(cfg.UploadPath); err != nil {
		t.Fatalf("expected upload_path to be created: %v", err)
	}
}

func TestLoadRejectsOutOfRangePreset(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `{
		"histogram_server": "localhost:8080",
		"telemetry_schema": "schema.json",
		"storage_path": "`+filepath.Join(dir, "work")+`",
		"upload_path": "`+filepath.Join(dir, "upload")+`",
		"max_uncompressed": 1048576,
		"memory_constraint": "512MiB",
		"compression_preset": 10
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range compression_preset")
	}
}

func TestLoadRequiresHistogramServer(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `{
		"telemetry_schema": "schema.json",
		"storage_path": "`+filepath.Join(dir, "work")+`",
		"upload_path": "`+filepath.Join(dir, "upload")+`",
		"max_uncompressed": 1048576,
		"memory_constraint": "512MiB",
		"compression_preset": 6
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when histogram_server is missing")
	}
}
