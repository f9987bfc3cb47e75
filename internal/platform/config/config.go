// Package config loads daemon settings from FARMVAULT_ environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "FARMVAULT_"

// Snapshot sink names accepted in SNAPSHOT_SINKS.
const (
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkBlob     = "blob"
)

// Config holds every daemon setting.
type Config struct {
	DataDir    string `env:"DATA_DIR" envDefault:"data"`
	ArenaImage string `env:"ARENA_IMAGE"`

	BucketSize    int   `env:"ARENA_BUCKET_SIZE" envDefault:"65536"`
	ArenaMaxBytes int64 `env:"ARENA_MAX_BYTES" envDefault:"0"`

	FundingWindow time.Duration `env:"FUNDING_WINDOW" envDefault:"720h"`
	LoanTerm      time.Duration `env:"LOAN_TERM" envDefault:"4320h"`

	SnapshotSinks []string `env:"SNAPSHOT_SINKS" envSeparator:","`
	SnapshotKeep  int      `env:"SNAPSHOT_KEEP" envDefault:"10"`
	SQLitePath    string   `env:"SQLITE_PATH"`
	PostgresDSN   string   `env:"POSTGRES_DSN"`

	Blob BlobConfig `envPrefix:"BLOB_"`

	CheckpointSchedule string `env:"CHECKPOINT_CRON" envDefault:"@every 5m"`
	BackupSchedule     string `env:"BACKUP_CRON" envDefault:"@daily"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9464"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// BlobConfig selects the blob driver used for snapshot archives and backups.
type BlobConfig struct {
	Driver string `env:"DRIVER" envDefault:"fs"`
	FSRoot string `env:"FS_ROOT"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3PathStyle       bool   `env:"S3_PATH_STYLE" envDefault:"false"`
}

// Load parses the environment and fills derived paths.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ArenaImage == "" {
		cfg.ArenaImage = filepath.Join(cfg.DataDir, "arena.img")
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "snapshots.db")
	}
	if cfg.Blob.FSRoot == "" {
		cfg.Blob.FSRoot = filepath.Join(cfg.DataDir, "blobs")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	if c.BucketSize <= 0 {
		return fmt.Errorf("arena bucket size must be positive, got %d", c.BucketSize)
	}
	if c.ArenaMaxBytes < 0 {
		return fmt.Errorf("arena max bytes must not be negative")
	}
	if c.ArenaMaxBytes > 0 && c.ArenaMaxBytes < int64(c.BucketSize) {
		return fmt.Errorf("arena max bytes %d is below one bucket of %d", c.ArenaMaxBytes, c.BucketSize)
	}
	if c.FundingWindow <= 0 || c.LoanTerm <= 0 {
		return fmt.Errorf("funding window and loan term must be positive")
	}
	for _, s := range c.SnapshotSinks {
		if !slices.Contains([]string{SinkSQLite, SinkPostgres, SinkBlob}, s) {
			return fmt.Errorf("unknown snapshot sink %q", s)
		}
	}
	if slices.Contains(c.SnapshotSinks, SinkPostgres) && c.PostgresDSN == "" {
		return fmt.Errorf("postgres sink requires %sPOSTGRES_DSN", Prefix)
	}
	return nil
}

// HasSink reports whether name is among the configured snapshot sinks.
func (c Config) HasSink(name string) bool { return slices.Contains(c.SnapshotSinks, name) }
