package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/roach88/scansync/internal/config"
	"github.com/roach88/scansync/internal/store"
	"github.com/roach88/scansync/internal/submit"
	"github.com/roach88/scansync/internal/syncer"
	"github.com/roach88/scansync/internal/telemetry"
)

// runtime is the wired sync core shared by the commands.
type runtime struct {
	cfg     config.Config
	store   *store.Store
	client  *submit.Client
	coord   *syncer.Coordinator
	metrics *telemetry.SyncMetrics

	// meterProvider is set when metrics export is configured.
	meterProvider *sdkmetric.MeterProvider
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.APIBase != "" {
		cfg.APIBase = opts.APIBase
	}
	return cfg, nil
}

// setupLogging installs the default slog logger. --verbose forces debug.
func setupLogging(opts *RootOptions, cfg config.Config, w io.Writer) {
	level := cfg.LogLevel
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// openRuntime loads config, opens the store and wires the coordinator.
// The caller must Close it.
func openRuntime(opts *RootOptions, cmd *cobra.Command, extra ...syncer.Option) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	setupLogging(opts, cfg, cmd.ErrOrStderr())

	mp, err := telemetry.NewMeterProvider(commandContext(cmd),
		telemetry.WithMeterEndpoint(cfg.MetricsEndpoint),
		telemetry.WithMeterInsecure(cfg.MetricsInsecure),
		telemetry.WithMeterInterval(cfg.MetricsInterval),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up metrics", err)
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		shutdownMetrics(mp)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	metrics, err := telemetry.NewSyncMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Warn("sync metrics disabled", "error", err)
		metrics = nil
	}

	client := submit.NewClient(cfg.APIBase, st, submit.WithTimeout(cfg.SubmitTimeout))
	coordOpts := []syncer.Option{
		syncer.WithMetrics(metrics),
		syncer.WithLocker(flock.New(cfg.LockPath())),
	}
	coord := syncer.New(st, client, append(coordOpts, extra...)...)

	return &runtime{
		cfg:     cfg,
		store:   st,
		client:  client,
		coord:   coord,
		metrics: metrics,

		meterProvider: mp,
	}, nil
}

// Close waits for background drains, closes the store and flushes metrics.
func (r *runtime) Close() {
	r.coord.Close()
	if err := r.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
	shutdownMetrics(r.meterProvider)
}

// shutdownMetrics flushes and stops mp. A nil mp is ignored.
func shutdownMetrics(mp *sdkmetric.MeterProvider) {
	if mp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mp.Shutdown(ctx); err != nil {
		slog.Error("error shutting down metrics", "error", err)
	}
}

// commandContext returns the command's context, or Background in tests
// that call RunE directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// describeReport renders a drain report on one line.
func describeReport(r syncer.Report) string {
	s := fmt.Sprintf("synced %d", r.Synced)
	if r.Duplicates > 0 {
		s += fmt.Sprintf(" (%d duplicate)", r.Duplicates)
	}
	if r.Quarantined > 0 {
		s += fmt.Sprintf(", quarantined %d", r.Quarantined)
	}
	s += fmt.Sprintf(", %d pending", r.Remaining)
	if r.Stopped == syncer.StopTransportFailure {
		s += " (server unreachable, will retry)"
	}
	return s
}
