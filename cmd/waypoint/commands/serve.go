package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/jobs"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
	"github.com/teranos/waypoint/pulse/schedule"
	"github.com/teranos/waypoint/server"
)

// jobShutdownTimeout bounds how long running jobs get to reach a checkpoint
const jobShutdownTimeout = 30 * time.Second

// ServeCmd runs the HTTP API together with the job scheduler
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Run the HTTP API and the background job scheduler",
	Long: `Run the waypoint HTTP API and the background job scheduler.

The scheduler polls every pulse.poll_interval_ms, runs at most pulse.workers
jobs at once and, with pulse.daily_recurrence, enqueues statistics and
geocoding for every user when the calendar day changes. Editing
pulse.workers in waypoint.toml resizes the worker budget without a restart.

Press Ctrl+C once for a graceful shutdown, twice to exit immediately.`,
	RunE: runServe,
}

var (
	serveDBPath  string
	servePort    int
	serveWorkers int
)

func init() {
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides server.port)")
	ServeCmd.Flags().IntVar(&serveWorkers, "workers", -1, "Worker budget (overrides pulse.workers)")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
		if err := logger.Initialize(logger.JSONOutput, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}
	log := logger.Logger

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	rt, err := newRuntime(cfg, serveDBPath, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	workers := cfg.Pulse.Workers
	if serveWorkers >= 0 {
		workers = serveWorkers
	}
	manager := async.NewManager(async.ManagerConfig{
		Workers:      workers,
		PollInterval: cfg.PollInterval(),
		Location:     rt.location,
	}, rt.catalog, log)
	manager.SetHistory(async.NewHistoryStore(rt.db, cfg.Pulse.HistoryLimit))

	if cfg.Pulse.DailyRecurrence {
		schedule.NewDaily(rt.store, manager, jobs.StandingTypes(rt.geocoder != nil), log).Attach(manager)
	}

	if err := manager.Start(context.Background()); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	watcher := watchWorkerBudget(manager, serveWorkers >= 0)
	if watcher != nil {
		defer watcher.Stop()
	}

	srv, err := server.New(server.Config{
		Manager:        manager,
		Store:          rt.store,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})
	if err != nil {
		manager.Stop(true)
		return err
	}

	port := cfg.GetServerPort()
	if servePort > 0 {
		port = servePort
	}
	printStartupBanner(verbosity, rt.dbPath, port, workers, rt.geocoder != nil)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(fmt.Sprintf(":%d", port))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		manager.Stop(true)
		if err != nil {
			return errors.Wrap(err, "server stopped")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	}

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- shutdown(srv, manager)
	}()

	select {
	case err := <-shutdownDone:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("Server stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}

// shutdown drains HTTP first so no new jobs arrive, then stops the scheduler
func shutdown(srv *server.Server, manager *async.Manager) error {
	httpCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	httpErr := srv.Shutdown(httpCtx)

	jobCtx, cancelJobs := context.WithTimeout(context.Background(), jobShutdownTimeout)
	defer cancelJobs()
	if err := manager.Shutdown(jobCtx); err != nil {
		return err
	}
	return httpErr
}

// watchWorkerBudget follows pulse.workers in the project config file.
// Returns nil when there is no project file or the flag pinned the budget.
func watchWorkerBudget(manager *async.Manager, pinned bool) *am.ConfigWatcher {
	path := am.FindProjectConfig()
	if path == "" || pinned {
		return nil
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Logger.Warnw("Config hot reload disabled", logger.FieldError, err)
		return nil
	}
	watcher.OnReload(func(cfg *am.Config) error {
		manager.SetMaxWorkers(cfg.Pulse.Workers)
		return nil
	})
	watcher.Start()
	logger.Logger.Infow("Watching config for worker budget changes", "path", path)
	return watcher
}
