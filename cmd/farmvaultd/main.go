// Command farmvaultd hosts the farm registry store. It restores state on boot,
// checkpoints it on a cron schedule, backs participant lists up as JSON,
// serves Prometheus metrics, and writes a final snapshot on shutdown.
package main

import (
	"context"
	"errors"
	"farmvault/internal/arena"
	"farmvault/internal/blob"
	blobcore "farmvault/internal/blob/core"
	"farmvault/internal/core"
	"farmvault/internal/infra/blob/s3"
	"farmvault/internal/infra/persistence/postgres"
	"farmvault/internal/infra/persistence/sqlite"
	"farmvault/internal/platform/config"
	"farmvault/internal/platform/logging"
	"farmvault/internal/snapshot"
	"farmvault/pkg/domain"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	jobTimeout      = time.Minute
	shutdownTimeout = 15 * time.Second
	backupStamp     = "20060102T150405.000Z"
)

var exitFunc = os.Exit

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		exitFunc(1)
		return
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		exitFunc(1)
		return
	}
	logger := logging.New(logging.Config{Name: "farmvaultd", Level: cfg.LogLevel, JSON: cfg.LogJSON})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, afero.NewOsFs(), logger); err != nil {
		logger.Error("farmvaultd stopped", "error", err)
		exitFunc(1)
	}
}

// backupMirror keeps the latest participant backup per kind.
type backupMirror interface {
	Name() string
	SaveBackups(ctx context.Context, docs map[domain.EntityType][]byte, at time.Time) error
}

type daemon struct {
	cfg      config.Config
	fsys     afero.Fs
	log      hclog.Logger
	store    *core.Store
	blobs    blobcore.Store
	sinks    snapshot.MultiSink
	mirrors  []backupMirror
	metrics  *core.PrometheusRecorder
	registry *prometheus.Registry
	closers  []io.Closer
}

func arenaOptions(cfg config.Config) arena.Options {
	return arena.Options{BucketSize: cfg.BucketSize, MaxBytes: cfg.ArenaMaxBytes}
}

// newDaemon wires every dependency and brings the store up to date.
func newDaemon(ctx context.Context, cfg config.Config, fsys afero.Fs, logger hclog.Logger) (_ *daemon, retErr error) {
	d := &daemon{cfg: cfg, fsys: fsys, log: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if retErr != nil {
			d.close()
		}
	}()
	d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := core.NewPrometheusRecorder(d.registry)
	if err != nil {
		return nil, err
	}
	d.metrics = rec

	d.blobs, err = blob.Open(ctx, blob.Config{
		Driver: blobcore.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: s3.Config{
			Region:          cfg.Blob.S3Region,
			Bucket:          cfg.Blob.S3Bucket,
			Endpoint:        cfg.Blob.S3Endpoint,
			AccessKeyID:     cfg.Blob.S3AccessKeyID,
			SecretAccessKey: cfg.Blob.S3SecretAccessKey,
			PathStyle:       cfg.Blob.S3PathStyle,
		},
	}, fsys)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	if err := d.openSinks(ctx); err != nil {
		return nil, err
	}

	m, loaded, err := arena.LoadFile(fsys, cfg.ArenaImage, arenaOptions(cfg))
	if err != nil {
		return nil, err
	}
	d.store, err = core.Open(m,
		core.WithLogger(logger.Named("store")),
		core.WithMetricsRecorder(rec),
		core.WithTracer(core.NewOTelTracer(noop.NewTracerProvider().Tracer("farmvault"))),
		core.WithLoanDurations(cfg.FundingWindow, cfg.LoanTerm),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := d.restore(ctx, loaded); err != nil {
		return nil, err
	}
	if d.store, err = d.store.Compact(ctx, arenaOptions(cfg)); err != nil {
		return nil, fmt.Errorf("compact arena: %w", err)
	}
	rec.RecordPartitions(d.store.Arena().Usage())
	return d, nil
}

func (d *daemon) openSinks(ctx context.Context) error {
	if d.cfg.HasSink(config.SinkSQLite) {
		st, err := sqlite.NewStore(ctx, d.cfg.SQLitePath, d.cfg.SnapshotKeep)
		if err != nil {
			return err
		}
		d.sinks = append(d.sinks, st)
		d.mirrors = append(d.mirrors, st)
		d.closers = append(d.closers, st)
	}
	if d.cfg.HasSink(config.SinkPostgres) {
		st, err := postgres.NewStore(ctx, d.cfg.PostgresDSN, d.cfg.SnapshotKeep)
		if err != nil {
			return err
		}
		d.sinks = append(d.sinks, st)
		d.mirrors = append(d.mirrors, st)
		d.closers = append(d.closers, st)
	}
	if d.cfg.HasSink(config.SinkBlob) {
		d.sinks = append(d.sinks, snapshot.NewBlobSink(d.blobs, "snapshots/", d.cfg.SnapshotKeep))
	}
	return nil
}

// restore prefers the snapshot inside the arena image. Without an image, or
// when its snapshot cannot be decoded, the newest sink snapshot is used. An
// unusable image with nothing to fall back on stops the boot: the auxiliary
// ledgers live only in snapshots and would otherwise come up empty.
func (d *daemon) restore(ctx context.Context, loaded bool) error {
	var imageErr error
	if loaded {
		if imageErr = d.store.PostUpgrade(ctx); imageErr == nil {
			return nil
		}
		d.log.Warn("arena snapshot unusable, falling back to sinks", "error", imageErr)
	}
	env, err := d.sinks.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot) && imageErr != nil:
		return fmt.Errorf("arena snapshot unusable and no sink snapshot to fall back on: %w", imageErr)
	case errors.Is(err, snapshot.ErrNoSnapshot):
		d.log.Info("no snapshot found, starting empty")
		return nil
	case err != nil:
		if imageErr != nil {
			return multierror.Append(imageErr, fmt.Errorf("load snapshot: %w", err))
		}
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := d.store.Restore(ctx, env.Payload); err != nil {
		return err
	}
	d.log.Info("restored from sink", "generation", env.Generation, "taken_at", env.TakenAt)
	return nil
}

// checkpoint saves the arena image and ships a snapshot to every sink.
func (d *daemon) checkpoint(ctx context.Context) error {
	if err := d.store.SaveImage(ctx, d.fsys, d.cfg.ArenaImage); err != nil {
		return fmt.Errorf("save arena image: %w", err)
	}
	d.metrics.RecordPartitions(d.store.Arena().Usage())
	if len(d.sinks) == 0 {
		return nil
	}
	env, err := d.store.Checkpoint(ctx)
	if err != nil {
		return err
	}
	if err := d.sinks.Save(ctx, env); err != nil {
		return fmt.Errorf("save snapshot %s: %w", env.Generation, err)
	}
	d.log.Info("checkpoint saved", "generation", env.Generation, "bytes", len(env.Payload), "sinks", len(d.sinks))
	return nil
}

// backup writes each participant list to backups/<kind>/<timestamp>.json and
// to every backup mirror.
func (d *daemon) backup(ctx context.Context) error {
	docs, err := d.store.ExportParticipants(ctx)
	if err != nil {
		return err
	}
	at := d.store.Now()
	var result *multierror.Error
	kinds := make([]domain.EntityType, 0, len(docs))
	for kind := range docs {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		key := fmt.Sprintf("backups/%s/%s.json", kind, at.Format(backupStamp))
		if _, err := blobcore.PutBytes(ctx, d.blobs, key, docs[kind], blobcore.PutOptions{ContentType: "application/json"}); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, m := range d.mirrors {
		if err := m.SaveBackups(ctx, docs, at); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", m.Name(), err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	d.log.Info("participants backed up", "kinds", len(kinds))
	return nil
}

func (d *daemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	return mux
}

// job adapts fn to a cron callback with its own deadline.
func (d *daemon) job(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.log.Error("scheduled job failed", "job", name, "error", err)
		}
	}
}

func (d *daemon) close() {
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			d.log.Warn("close failed", "error", err)
		}
	}
}

// cronLogger routes cron's own messages to hclog.
type cronLogger struct{ l hclog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) { c.l.Debug(msg, keysAndValues...) }

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

func run(ctx context.Context, cfg config.Config, fsys afero.Fs, logger hclog.Logger) error {
	d, err := newDaemon(ctx, cfg, fsys, logger)
	if err != nil {
		return err
	}
	defer d.close()

	clog := cronLogger{logger.Named("cron")}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))
	if _, err := c.AddFunc(cfg.CheckpointSchedule, d.job("checkpoint", d.checkpoint)); err != nil {
		return fmt.Errorf("checkpoint schedule %q: %w", cfg.CheckpointSchedule, err)
	}
	if _, err := c.AddFunc(cfg.BackupSchedule, d.job("backup", d.backup)); err != nil {
		return fmt.Errorf("backup schedule %q: %w", cfg.BackupSchedule, err)
	}
	c.Start()

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: d.handler(), ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	logger.Info("farmvaultd started", "metrics", cfg.MetricsAddr, "sinks", len(d.sinks), "blob", d.blobs.Driver())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		runErr = fmt.Errorf("metrics server: %w", runErr)
	}
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	if err := d.checkpoint(shutdownCtx); err != nil {
		return multierror.Append(runErr, fmt.Errorf("final checkpoint: %w", err))
	}
	logger.Info("farmvaultd stopped cleanly")
	return runErr
}
