// Package config provides configuration for the entitydb tools.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/entitydb/internal/storage"
)

// Config holds the configuration of an entitydb application.
type Config struct {
	// DataDir is the base directory for all database files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// PrimaryDB is the file name of the primary database, relative to DataDir
	PrimaryDB string `json:"primary_db" yaml:"primary_db"`

	// MaxOpenConns caps connections per database handle
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	Sharding  ShardingConfig  `json:"sharding" yaml:"sharding"`
	Registry  RegistryConfig  `json:"registry" yaml:"registry"`
	Marshal   MarshalConfig   `json:"marshal" yaml:"marshal"`
	Schema    SchemaConfig    `json:"schema" yaml:"schema"`
	Migration MigrationConfig `json:"migration" yaml:"migration"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
}

// ShardingConfig controls where per-user shard databases live.
type ShardingConfig struct {
	// Dir holds the shard files. Defaults to DataDir.
	Dir string `json:"dir" yaml:"dir"`

	// Pattern is a fmt pattern taking the user id, e.g. u_%d_private.db
	Pattern string `json:"pattern" yaml:"pattern"`

	// InvalidateOnLogin drops cached shard handles when the active user changes
	InvalidateOnLogin bool `json:"invalidate_on_login" yaml:"invalidate_on_login"`
}

// RegistryConfig controls DAO registry binding rules.
type RegistryConfig struct {
	// StrictBinding rejects lookups whose mapping names a different table
	// than the cached DAO.
	StrictBinding bool `json:"strict_binding" yaml:"strict_binding"`
}

// MarshalConfig controls entity to column conversion.
type MarshalConfig struct {
	// IncludeEmptyValues writes empty strings and blobs instead of omitting them
	IncludeEmptyValues bool `json:"include_empty_values" yaml:"include_empty_values"`
}

// SchemaConfig controls table binding.
type SchemaConfig struct {
	// AutoAddColumns adds descriptor columns missing from an existing table
	AutoAddColumns bool `json:"auto_add_columns" yaml:"auto_add_columns"`

	// TrackVersions records every distinct table layout in the schema registry
	TrackVersions bool `json:"track_versions" yaml:"track_versions"`
}

// MigrationConfig holds the upgrade settings.
type MigrationConfig struct {
	// Descriptor is the YAML or XML file listing upgrade steps
	Descriptor string `json:"descriptor" yaml:"descriptor"`

	// CurrentVersion is the version shards are upgraded from
	CurrentVersion string `json:"current_version" yaml:"current_version"`

	// TargetVersion is the version shards are upgraded to
	TargetVersion string `json:"target_version" yaml:"target_version"`

	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// BackupConfig controls shard snapshots taken before an upgrade.
type BackupConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// StorageConfig holds snapshot storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 storage.S3Config `json:"s3" yaml:"s3"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      "./data/entitydb",
		PrimaryDB:    "entitydb.db",
		MaxOpenConns: 1,
		Sharding: ShardingConfig{
			Pattern:           "u_%d_private.db",
			InvalidateOnLogin: true,
		},
		Storage: StorageConfig{
			Type: "local",
			S3:   storage.DefaultS3Config(),
		},
	}
}

// Resolve fills paths left empty from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/entitydb"
	}
	if c.PrimaryDB == "" {
		c.PrimaryDB = "entitydb.db"
	}
	if c.Sharding.Dir == "" {
		c.Sharding.Dir = c.DataDir
	}
	if c.Sharding.Pattern == "" {
		c.Sharding.Pattern = "u_%d_private.db"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "snapshots")
	}
}

// PrimaryPath returns the path of the primary database.
func (c *Config) PrimaryPath() string {
	if filepath.IsAbs(c.PrimaryDB) {
		return c.PrimaryDB
	}
	return filepath.Join(c.DataDir, c.PrimaryDB)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns must not be negative, got %d", c.MaxOpenConns)
	}
	if strings.Count(c.Sharding.Pattern, "%d") != 1 {
		return fmt.Errorf("sharding.pattern must contain exactly one %%d, got %q", c.Sharding.Pattern)
	}
	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	if (c.Migration.CurrentVersion == "") != (c.Migration.TargetVersion == "") {
		return fmt.Errorf("migration.current_version and migration.target_version must be set together")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. With no
// arguments it reads ./.env. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ENTITYDB_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ENTITYDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ENTITYDB_PRIMARY_DB"); v != "" {
		cfg.PrimaryDB = v
	}
	if v := os.Getenv("ENTITYDB_MAX_OPEN_CONNS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.MaxOpenConns)
	}

	// Sharding
	if v := os.Getenv("ENTITYDB_SHARD_DIR"); v != "" {
		cfg.Sharding.Dir = v
	}
	if v := os.Getenv("ENTITYDB_SHARD_PATTERN"); v != "" {
		cfg.Sharding.Pattern = v
	}
	envBool("ENTITYDB_SHARD_INVALIDATE_ON_LOGIN", &cfg.Sharding.InvalidateOnLogin)

	envBool("ENTITYDB_STRICT_BINDING", &cfg.Registry.StrictBinding)
	envBool("ENTITYDB_INCLUDE_EMPTY_VALUES", &cfg.Marshal.IncludeEmptyValues)
	envBool("ENTITYDB_AUTO_ADD_COLUMNS", &cfg.Schema.AutoAddColumns)
	envBool("ENTITYDB_TRACK_VERSIONS", &cfg.Schema.TrackVersions)

	// Migration
	if v := os.Getenv("ENTITYDB_MIGRATION_DESCRIPTOR"); v != "" {
		cfg.Migration.Descriptor = v
	}
	if v := os.Getenv("ENTITYDB_MIGRATION_CURRENT_VERSION"); v != "" {
		cfg.Migration.CurrentVersion = v
	}
	if v := os.Getenv("ENTITYDB_MIGRATION_TARGET_VERSION"); v != "" {
		cfg.Migration.TargetVersion = v
	}
	envBool("ENTITYDB_MIGRATION_BACKUP", &cfg.Migration.Backup.Enabled)

	// Storage
	if v := os.Getenv("ENTITYDB_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("ENTITYDB_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ENTITYDB_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("ENTITYDB_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
	if v := os.Getenv("ENTITYDB_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("ENTITYDB_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	envBool("ENTITYDB_S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Sharding.Dir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
