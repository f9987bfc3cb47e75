package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Config{
		DataDir:       "data",
		ArenaImage:    filepath.Join("data", "arena.img"),
		BucketSize:    65536,
		FundingWindow: 30 * 24 * time.Hour,
		LoanTerm:      180 * 24 * time.Hour,
		SnapshotKeep:  10,
		SQLitePath:    filepath.Join("data", "snapshots.db"),
		Blob: BlobConfig{
			Driver:   "fs",
			FSRoot:   filepath.Join("data", "blobs"),
			S3Region: "us-east-1",
		},
		CheckpointSchedule: "@every 5m",
		BackupSchedule:     "@daily",
		MetricsAddr:        ":9464",
		LogLevel:           "info",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FARMVAULT_DATA_DIR", "/var/lib/farmvault")
	t.Setenv("FARMVAULT_ARENA_MAX_BYTES", "1048576")
	t.Setenv("FARMVAULT_FUNDING_WINDOW", "240h")
	t.Setenv("FARMVAULT_SNAPSHOT_SINKS", "sqlite,blob")
	t.Setenv("FARMVAULT_BLOB_DRIVER", "s3")
	t.Setenv("FARMVAULT_BLOB_S3_BUCKET", "vault")
	t.Setenv("FARMVAULT_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("FARMVAULT_LOG_JSON", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ArenaImage != "/var/lib/farmvault/arena.img" || cfg.ArenaMaxBytes != 1<<20 {
		t.Fatalf("arena settings = %q %d", cfg.ArenaImage, cfg.ArenaMaxBytes)
	}
	if cfg.FundingWindow != 10*24*time.Hour {
		t.Fatalf("funding window = %v", cfg.FundingWindow)
	}
	if !cfg.HasSink(SinkSQLite) || !cfg.HasSink(SinkBlob) || cfg.HasSink(SinkPostgres) {
		t.Fatalf("sinks = %v", cfg.SnapshotSinks)
	}
	if cfg.Blob.Driver != "s3" || cfg.Blob.S3Bucket != "vault" || !cfg.Blob.S3PathStyle {
		t.Fatalf("blob = %+v", cfg.Blob)
	}
	if !cfg.LogJSON {
		t.Fatalf("expected json logging")
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"bad int":          {"FARMVAULT_ARENA_BUCKET_SIZE", "lots", "parse env:"},
		"zero bucket":      {"FARMVAULT_ARENA_BUCKET_SIZE", "0", "bucket size"},
		"unknown sink":     {"FARMVAULT_SNAPSHOT_SINKS", "tape", "unknown snapshot sink"},
		"postgres no dsn":  {"FARMVAULT_SNAPSHOT_SINKS", "postgres", "POSTGRES_DSN"},
		"zero term":        {"FARMVAULT_LOAN_TERM", "0s", "loan term"},
		"cap below bucket": {"FARMVAULT_ARENA_MAX_BYTES", "512", "below one bucket"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
