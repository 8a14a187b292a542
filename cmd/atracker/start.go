package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"atracker/internal/activity"
	"atracker/internal/aggregate"
	"atracker/internal/api"
	"atracker/internal/config"
	"atracker/internal/daemon"
	"atracker/internal/health"
	"atracker/internal/logging"
	"atracker/internal/metrics"
	"atracker/internal/pattern"
	"atracker/internal/probe"
	"atracker/internal/segment"
	"atracker/internal/store"
)

const (
	detachWait    = 5 * time.Second
	pruneInterval = 24 * time.Hour
)

func newStartCmd(opts *options) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tracking daemon",
		Long: `Start the tracking daemon. By default the daemon detaches from the
terminal and writes its output next to the database; --foreground keeps it
attached and stops it on Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if foreground {
				return runDaemon(cmd.Context(), daemonOptions{ConfigPath: opts.configPath})
			}
			return detach(cmd, opts)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground")
	return cmd
}

// detach re-executes the binary in the foreground mode as a session leader
// and waits for it to take the pid lock.
func detach(cmd *cobra.Command, opts *options) error {
	dataDir := config.DataDir()
	mgr := daemon.NewManager(dataDir)
	if mgr.IsRunning() {
		pid, _ := mgr.ReadPID()
		return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"start", "--foreground"}
	if opts.configPath != "" {
		args = append(args, "--config", opts.configPath)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	outPath := filepath.Join(dataDir, "atracker.out")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open daemon output: %w", err)
	}
	defer out.Close()

	child := exec.Command(exe, args...)
	child.Stdout = out
	child.Stderr = out
	child.SysProcAttr = daemonSysProcAttr()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	pid := child.Process.Pid
	if err := child.Process.Release(); err != nil {
		return fmt.Errorf("release daemon: %w", err)
	}

	deadline := time.Now().Add(detachWait)
	for time.Now().Before(deadline) {
		if mgr.IsRunning() {
			fmt.Fprintf(cmd.OutOrStdout(), "atracker started (pid %d)\n", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not start within %s, see %s", detachWait, outPath)
}

// daemonOptions lets tests replace the platform pieces of the daemon.
type daemonOptions struct {
	ConfigPath string

	// Probe replaces the platform probe.
	Probe segment.Probe

	// Listener replaces listening on the configured address.
	Listener net.Listener

	// LogWriter replaces stdout/stderr log output.
	LogWriter io.Writer

	// Ready is called once every task has been started.
	Ready func()
}

// runDaemon runs the tracker until ctx is cancelled or SIGINT/SIGTERM
// arrives. The segmentation loop always finishes its final flush before
// the API shuts down.
func runDaemon(ctx context.Context, opts daemonOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path := opts.ConfigPath
	if path == "" {
		path = config.ConfigPath()
	}

	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lc, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if opts.LogWriter != nil {
		lc.Writer = opts.LogWriter
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)
	if created {
		logger.Info("wrote default config", "path", path)
	}

	dataDir := config.DataDir()
	deviceID, err := store.LoadOrCreateDeviceID(dataDir)
	if err != nil {
		return err
	}

	mgr := daemon.NewManager(dataDir)
	if err := mgr.Acquire(&daemon.State{
		Version:  Version,
		Addr:     cfg.Addr(),
		DBPath:   cfg.Storage.Path,
		DeviceID: deviceID,
	}); err != nil {
		return err
	}
	defer mgr.Release()

	st, err := store.OpenWithOptions(cfg.Storage.Path, store.Options{
		BusyTimeout: cfg.Storage.BusyTimeout(),
		Logger:      logger.WithComponent("store").Logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	seedCtx, cancelSeed := context.WithTimeout(ctx, cfg.Tracking.StoreTimeout())
	err = seedSettings(seedCtx, st, cfg.Tracking.Settings())
	cancelSeed()
	if err != nil {
		return err
	}

	p := opts.Probe
	if p == nil {
		platform, closeProbe := probe.Default(logger.WithComponent("probe").Logger)
		defer closeProbe()
		p = platform
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	cache := pattern.NewCache()
	current := &activity.Current{}
	pauser := activity.NewPauser(st, nil)

	machine := segment.New(segment.Config{
		DeviceID:        deviceID,
		Settings:        cfg.Tracking.Settings(),
		ReloadInterval:  cfg.Tracking.ReloadInterval(),
		ProbeTimeout:    cfg.Tracking.ProbeTimeout(),
		StoreTimeout:    cfg.Tracking.StoreTimeout(),
		ShutdownTimeout: cfg.Tracking.ShutdownTimeout(),
		JumpFactor:      cfg.Tracking.ClockJumpFactor,
	}, p, st, current,
		segment.WithMetrics(m),
		segment.WithLogger(logger.WithComponent("segment").Logger),
		segment.WithPause(pauser),
		segment.WithPatternCache(cache),
	)

	engine := aggregate.New(st, current,
		aggregate.WithMetrics(m),
		aggregate.WithLogger(logger.WithComponent("aggregate").Logger),
		aggregate.WithPatternCache(cache),
	)

	checker := health.NewChecker()
	checker.RegisterFunc("database", true, health.DatabaseCheck(st.Ping))
	checker.RegisterFunc("tracker", false, health.TrackerCheck(machine, nil))

	srv := api.New(api.Config{
		Addr:           cfg.Addr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		MetricsEnabled: cfg.Metrics.Enabled,
		PushRate:       2,
	}, api.Deps{
		Store:    st,
		Engine:   engine,
		Current:  current,
		Health:   checker,
		Metrics:  m,
		Patterns: cache,
		Logger:   logger,
		DeviceID: deviceID,
	})

	loader := config.NewLoader(path)
	defer loader.Close()
	loader.OnChange(applyConfig(logger, st, cfg))
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "path", path, "error", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reload := make(chan os.Signal, 1)
	if sigs := reloadSignals(); len(sigs) > 0 {
		signal.Notify(reload, sigs...)
		defer signal.Stop(reload)
	}

	crash := logging.NewCrashHandler(filepath.Join(dataDir, "crashes"), Version, logger.Logger)
	g, gctx := errgroup.WithContext(ctx)

	// The API outlives the segmentation loop so the final flush is visible
	// to the last requests.
	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()
	machineDone := make(chan struct{})

	g.Go(crash.Guard("segment", func() error {
		defer close(machineDone)
		return machine.Run(gctx)
	}))

	g.Go(crash.Guard("api", func() error {
		go func() {
			<-machineDone
			cancelServer()
		}()
		shutdown := cfg.Tracking.ShutdownTimeout()
		if opts.Listener != nil {
			return srv.Serve(serverCtx, opts.Listener, shutdown)
		}
		return srv.ListenAndServe(serverCtx, shutdown)
	}))

	g.Go(crash.Guard("reload", func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reload:
				// Reload logs its own failures and keeps the old config.
				_ = loader.Reload()
			}
		}
	}))

	if retention := cfg.Storage.Retention(); retention > 0 {
		g.Go(crash.Guard("prune", func() error {
			return runPruner(gctx, st, retention, pruneInterval, logger.WithComponent("prune"))
		}))
	}

	checker.SetReady(true)
	logger.Info("atracker started",
		"version", Version,
		"pid", os.Getpid(),
		"addr", cfg.Addr(),
		"db", cfg.Storage.Path,
		"device_id", deviceID,
	)
	if opts.Ready != nil {
		opts.Ready()
	}

	err = g.Wait()
	checker.SetReady(false)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("atracker stopped with error", "error", err)
		return err
	}
	logger.Info("atracker stopped")
	return nil
}

// seedSettings writes the tracking values from the config file for every
// settings key the store does not have yet.
func seedSettings(ctx context.Context, st *store.Store, s activity.Settings) error {
	existing, err := st.Settings(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	missing := make(map[string]string)
	for k, v := range s.Map() {
		if _, ok := existing[k]; !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := st.SetSettings(ctx, missing); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

// applyConfig returns the hot-reload callback. The log level always follows
// the file; tracking values are written to the settings store only when the
// file's values changed, so edits made through the API survive unrelated
// config changes.
func applyConfig(logger *logging.Logger, st *store.Store, initial *config.Config) func(*config.Config) {
	var mu sync.Mutex
	prev := initial.Tracking.Settings()
	timeout := initial.Tracking.StoreTimeout()

	return func(next *config.Config) {
		if level, err := logging.ParseLevel(next.Logging.Level); err == nil {
			logger.SetLevel(level)
		}

		mu.Lock()
		defer mu.Unlock()
		settings := next.Tracking.Settings()
		if settings == prev {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := st.SetSettings(ctx, settings.Map()); err != nil {
			logger.Warn("apply tracking settings failed", "error", err)
			return
		}
		prev = settings
		logger.Info("tracking settings updated from config",
			"poll_interval", settings.PollInterval.String(),
			"idle_threshold", settings.IdleThreshold.String(),
		)
	}
}

// Pruner is the storage the retention loop deletes from.
type Pruner interface {
	PruneEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// runPruner deletes events older than retention now and then every interval.
func runPruner(ctx context.Context, p Pruner, retention, interval time.Duration, logger *logging.Logger) error {
	prune := func() {
		cutoff := time.Now().Add(-retention)
		n, err := p.PruneEvents(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("prune events failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("pruned events", "count", n, "cutoff", cutoff.Format(time.RFC3339))
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}
