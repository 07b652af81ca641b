package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Sharding.Dir != cfg.DataDir {
		t.Errorf("shard dir should default to data dir, got %q", cfg.Sharding.Dir)
	}
	if cfg.PrimaryPath() != filepath.Join(cfg.DataDir, "entitydb.db") {
		t.Errorf("unexpected primary path %q", cfg.PrimaryPath())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, false},
		{"pattern without id", func(c *Config) { c.Sharding.Pattern = "shard.db" }, false},
		{"pattern with two ids", func(c *Config) { c.Sharding.Pattern = "u_%d_%d.db" }, false},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }, false},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, false},
		{"s3 with bucket", func(c *Config) { c.Storage.Type = "s3"; c.Storage.S3.Bucket = "b" }, true},
		{"half migration", func(c *Config) { c.Migration.CurrentVersion = "V002" }, false},
		{"full migration", func(c *Config) {
			c.Migration.CurrentVersion = "V002"
			c.Migration.TargetVersion = "V003"
		}, true},
		{"negative conns", func(c *Config) { c.MaxOpenConns = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entitydb.yaml")
	content := `
data_dir: /var/lib/entitydb
sharding:
  pattern: user_%d.db
registry:
  strict_binding: true
migration:
  descriptor: update.xml
  current_version: V002
  target_version: V003
  backup:
    enabled: true
storage:
  type: s3
  s3:
    bucket: snapshots
    use_path_style: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.DataDir != "/var/lib/entitydb" || cfg.Sharding.Pattern != "user_%d.db" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.Registry.StrictBinding || !cfg.Migration.Backup.Enabled {
		t.Error("booleans not loaded")
	}
	if cfg.Storage.S3.Bucket != "snapshots" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("s3 not loaded: %+v", cfg.Storage.S3)
	}
	// Unset keys keep their defaults.
	if cfg.Storage.S3.Region != "us-east-1" || !cfg.Sharding.InvalidateOnLogin {
		t.Error("defaults lost while loading")
	}
}

func TestLoadFromFileJSONAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "entitydb.json")
	if err := os.WriteFile(jsonPath, []byte(`{"primary_db": "main.db", "marshal": {"include_empty_values": true}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.PrimaryDB != "main.db" || !cfg.Marshal.IncludeEmptyValues {
		t.Errorf("unexpected config: %+v", cfg)
	}

	tomlPath := filepath.Join(dir, "entitydb.toml")
	if err := os.WriteFile(tomlPath, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(tomlPath); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENTITYDB_DATA_DIR", "/tmp/edb")
	t.Setenv("ENTITYDB_MAX_OPEN_CONNS", "4")
	t.Setenv("ENTITYDB_SHARD_INVALIDATE_ON_LOGIN", "false")
	t.Setenv("ENTITYDB_TRACK_VERSIONS", "1")
	t.Setenv("ENTITYDB_MIGRATION_TARGET_VERSION", "V003")
	t.Setenv("ENTITYDB_S3_BUCKET", "b")
	t.Setenv("ENTITYDB_STRICT_BINDING", "not-a-bool")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.DataDir != "/tmp/edb" || cfg.MaxOpenConns != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Sharding.InvalidateOnLogin || !cfg.Schema.TrackVersions {
		t.Error("boolean env vars not applied")
	}
	if cfg.Registry.StrictBinding {
		t.Error("unparseable boolean should be ignored")
	}
	if cfg.Migration.TargetVersion != "V003" || cfg.Storage.S3.Bucket != "b" {
		t.Errorf("unexpected migration/storage: %+v %+v", cfg.Migration, cfg.Storage)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("ENTITYDB_PRIMARY_DB=fromfile.db\nENTITYDB_DATA_DIR=/from/file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENTITYDB_DATA_DIR", "/from/env")
	t.Setenv("ENTITYDB_PRIMARY_DB", "")
	os.Unsetenv("ENTITYDB_PRIMARY_DB")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if cfg.PrimaryDB != "fromfile.db" {
		t.Errorf("expected .env value, got %q", cfg.PrimaryDB)
	}
	if cfg.DataDir != "/from/env" {
		t.Errorf("existing env var should win, got %q", cfg.DataDir)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Sharding.Dir = filepath.Join(base, "shards")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Sharding.Dir, cfg.Storage.Path} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
}
