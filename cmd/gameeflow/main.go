// GameeFlow - Game Backend Protocol Client & Automation
//
// GameeFlow speaks the Socket.IO protocol of the game backend: it opens the
// websocket session, authenticates, submits scores with the backend's hash
// scheme, tracks balances and leaderboards, and automates the submission
// loop. A local REST API and an interactive CLI expose control, and
// real-time telemetry is published via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gameeflow-project/gameeflow/internal/api"
	"github.com/gameeflow-project/gameeflow/internal/cli"
	"github.com/gameeflow-project/gameeflow/internal/client"
	"github.com/gameeflow-project/gameeflow/internal/config"
	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/scheduler"
	"github.com/gameeflow-project/gameeflow/internal/telemetry"
	"github.com/gameeflow-project/gameeflow/internal/transport"
	"github.com/gameeflow-project/gameeflow/internal/util"
)

const (
	AppName    = "GameeFlow"
	AppVersion = "1.0.0"
	Banner     = `
   _____                         ______ _
  / ____|                       |  ____| |
 | |  __  __ _ _ __ ___   ___  _| |__  | | _____      __
 | | |_ |/ _' | '_ ' _ \ / _ \/ _  __| | |/ _ \ \ /\ / /
 | |__| | (_| | | | | | |  __/  __/ |  | | (_) \ V  V /
  \_____|\__,_|_| |_| |_|\___|\___|_|  |_|\___/ \_/\_/
                                                v%s
 Game Backend Protocol Client & Automation
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting GameeFlow")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	appData := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxSizeMB:  appData.Logging.MaxSizeMB,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	backend := cfg.GetBackendData()
	appData = cfg.GetApplicationData()

	session := transport.NewSession(transport.Options{
		URL:               backend.URL,
		Namespace:         backend.Namespace,
		RequestTimeout:    time.Duration(backend.RequestTimeoutSec) * time.Second,
		HeartbeatInterval: time.Duration(backend.HeartbeatIntervalSec) * time.Second,
		ConnectTimeout:    time.Duration(backend.ConnectTimeoutSec) * time.Second,
	}, eventBus)

	gameClient := client.New(session, eventBus, client.Options{
		GameID:         backend.GameID,
		LeaderboardIDs: backend.LeaderboardIDs,
		StepDelay:      time.Duration(appData.Endless.StepDelayMs) * time.Millisecond,
	})

	submitter := client.NewSubmitter(gameClient, client.ScorePolicy{
		Multiplier: appData.Endless.ScoreMultiplier,
		Jitter:     appData.Endless.ScoreJitter,
		SyncMode:   client.SyncStateMode(appData.Endless.SyncMode),
	})

	// Initialize scheduler (endless loop + leaderboard refresh)
	sched := scheduler.NewScheduler(cfg, eventBus, gameClient, submitter)

	// Initialize REST API
	var apiServer *api.Server
	if appData.API.Enabled {
		apiServer = api.NewServer(cfg, eventBus, session, gameClient, submitter, sched)
	}

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, eventBus, session, gameClient, submitter, sched)

	// Shutdown requests from the CLI and other components arrive on the bus
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main", func(ctx context.Context, ev events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: Connect to the backend and authenticate.
	// Non-fatal: the session can also be opened later via the CLI or API.
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("url", backend.URL).Msg("connecting to game backend")
		if err := session.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("backend connection failed (use 'connect' in the CLI to retry)")
			return
		}

		if _, err := gameClient.Authenticate(ctx, client.Credentials{
			Login:            backend.Login,
			Password:         backend.Password,
			FastexUserID:     backend.FastexUserID,
			FTNAddress:       backend.FTNAddress,
			WithdrawalAmount: backend.WithdrawalAmount,
		}); err != nil {
			log.Warn().Err(err).Msg("authentication failed (use 'login' in the CLI to retry)")
		}
	}()

	// Task 2: REST API server (with retry for port binding). The API is the
	// control surface; if it cannot come up the process shuts down.
	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", appData.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("API server failed after retries: %w", err)
			}
		}()
	}

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: Scheduler (endless loop + leaderboard refresh)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	// Task 5: Interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Stop automation, then close the session so in-flight requests fail fast
	sched.StopEndless()
	session.Disconnect()

	// Cancel the root context to signal all goroutines
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last
	eventBus.Stop()

	// Shutdown MQTT
	if mqttHandler != nil {
		mqttHandler.PublishShutdown()
	}

	log.Info().Msg("GameeFlow stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. Uses a fixed 3-second interval between retries to give the OS
// time to release sockets after a previous process was killed.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
