package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shardgate-project/shardgate/internal/api"
	"github.com/shardgate-project/shardgate/internal/cli"
	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/db"
	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/health"
	"github.com/shardgate-project/shardgate/internal/huffman"
	"github.com/shardgate-project/shardgate/internal/login"
	"github.com/shardgate-project/shardgate/internal/network"
	"github.com/shardgate-project/shardgate/internal/scheduler"
	"github.com/shardgate-project/shardgate/internal/telemetry"
	"github.com/shardgate-project/shardgate/internal/util"
)

const (
	bindRetries     = 5
	bindRetryDelay  = 3 * time.Second
	shutdownTimeout = 30 * time.Second
)

func serveCmd(configDir *string) *cobra.Command {
	var console bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the login server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configDir, console)
		},
	}

	cmd.Flags().BoolVar(&console, "console", true, "read operator commands from stdin")

	return cmd
}

func serve(configDir string, console bool) error {
	printBanner()
	fmt.Println()

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app := cfg.GetApplicationData()
	logCfg := util.DefaultLogConfig()
	logCfg.Level = app.Logging.Level
	logCfg.MaxBackups = app.Logging.MaxBackups
	if app.Logging.Directory != "" {
		logCfg.Directory = app.Logging.Directory
	}
	logFile, err := util.InitLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Shardgate")

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return errors.New("configuration validation failed, fix the errors above or run 'shardgate setup'")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventShutdown, "main", func(context.Context, events.Event) error {
		cancel()
		return nil
	})

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Optional components. The interface-typed values stay nil when the
	// backing component is disabled.
	var (
		store     *db.Store
		recorder  *db.Recorder
		audit     scheduler.AuditStore
		sessions  login.SessionLookup
		cache     *huffman.Cache
		loginOpts = []login.Option{login.WithMetrics(metrics)}
	)

	if app.Storage.Enabled {
		store, err = db.NewStore(app.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open login store: %w", err)
		}
		defer store.Close()

		recorder = db.NewRecorder(store, eventBus)
		recorder.Start()
		audit, sessions = store, store
		loginOpts = append(loginOpts, login.WithSessions(sessions))
		log.Info().Str("path", app.Storage.DatabasePath).Msg("login store opened")
	}

	if app.Compression.CacheEnabled {
		cache = huffman.NewCache(app.Compression.CacheSize)
		loginOpts = append(loginOpts, login.WithCache(cache))
	}

	shard := cfg.GetShardData()
	loginSvc := login.NewService(login.ResponsesFromConfig(shard), eventBus, loginOpts...)

	registry := network.NewConnectionRegistry()
	listener := network.NewTCPListener(network.ListenerOptions{
		Addr:            shard.ListenAddr(),
		ReadBufferSize:  shard.ReadBufferSize,
		MaxPendingBytes: shard.MaxPendingBytes,
		MaxConnections:  shard.MaxConnections,
	}, registry, eventBus, metrics, func(c *network.Connection) network.Dispatcher {
		return loginSvc.NewDispatcher(c.ID(), c.Remote(), c.Logger())
	})

	if err := listenWithRetry(ctx, listener); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil {
			errCh <- fmt.Errorf("login listener: %w", err)
		}
	}()

	if app.API.Enabled {
		apiServer := api.NewServer(api.Deps{
			Config:   cfg,
			EventBus: eventBus,
			Registry: registry,
			Store:    store,
			Cache:    cache,
			Gatherer: prometheus.DefaultGatherer,
			Version:  version,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", app.API.ListenAddr()).Msg("starting REST API server")
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
		}()
	}

	healthMgr := health.NewManager(cfg, eventBus, registry)
	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	sched := scheduler.NewScheduler(cfg, audit, registry, cache)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if app.MQTT.Enabled {
		mqttHandler, err := telemetry.NewMQTTHandler(app.MQTT, eventBus, version)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mqttHandler.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed")
				}
			}()
		}
	}

	if console {
		cliHandler := cli.NewCLI(cfg, eventBus, registry, store, cache, os.Stdin, os.Stdout)
		// Not tracked by wg: the stdin reader cannot be interrupted.
		go cliHandler.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	closed := registry.CloseAll(network.ReasonShutdown)
	log.Info().Int("connections", closed).Msg("closed client connections")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		listener.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	if recorder != nil {
		recorder.Stop()
	}
	eventBus.Stop()

	log.Info().Msg("Shardgate stopped")
	return runErr
}

// listenWithRetry binds the login listener, retrying on bind errors so a
// restarted server can wait for the previous process to release the port.
func listenWithRetry(ctx context.Context, l *network.TCPListener) error {
	var lastErr error
	for i := 0; i <= bindRetries; i++ {
		if lastErr = l.Listen(ctx); lastErr == nil {
			return nil
		}
		if i == bindRetries {
			break
		}
		log.Warn().Err(lastErr).Int("retry", i+1).Int("max", bindRetries).Msg("bind failed, retrying...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bindRetryDelay):
		}
	}
	return lastErr
}
