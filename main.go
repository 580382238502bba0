// ABOUTME: Entry point for the voice coach client
// ABOUTME: Parses CLI flags, loads configuration and runs the application
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/voicecoach/internal/app"
	"github.com/harperreed/voicecoach/internal/config"
	"github.com/harperreed/voicecoach/internal/logging"
	"github.com/harperreed/voicecoach/internal/version"
	"go.uber.org/zap"
)

const discoveryTimeout = 10 * time.Second

var (
	serverAddr  = flag.String("server", "", "Relay WebSocket URL, e.g. ws://localhost:8787/ws (skip mDNS)")
	configFile  = flag.String("config", "", "YAML configuration file")
	envFile     = flag.String("env-file", ".env", "Environment file to load")
	language    = flag.String("language", "", "Initial practice language")
	logFile     = flag.String("log-file", "voicecoach.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	mic         = flag.String("mic", "", "Capture source: device or tone")
	sink        = flag.String("sink", "", "Playback sink: oto, malgo or none")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	useTUI := !*noTUI

	// TUI mode: log only to file
	logger, err := logging.New(logging.Options{File: *logFile, Console: !useTUI, Debug: *debug})
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	settings, err := loadSettings()
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		_ = logger.Sync()
		log.Fatalf("configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout := settings.Relay.ConnectTimeout
	if timeout <= 0 {
		timeout = discoveryTimeout
	}
	discoverCtx, cancel := context.WithTimeout(ctx, timeout)
	err = app.ResolveRelay(discoverCtx, settings, logger)
	cancel()
	if err != nil {
		_ = logger.Sync()
		log.Fatalf("No relay found, pass -server: %v", err)
	}

	coach, err := app.New(app.Options{
		Settings:  settings,
		UseTUI:    useTUI,
		AutoStart: !useTUI,
		Logger:    logger,
	})
	if err != nil {
		_ = logger.Sync()
		log.Fatalf("Failed to start: %v", err)
	}

	if err := coach.Run(ctx); err != nil {
		logger.Error("Voice coach error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// loadSettings layers .env, the config file, the environment and flags
func loadSettings() (*config.Config, error) {
	if err := config.LoadEnvFile(*envFile); err != nil {
		return nil, err
	}

	settings, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(settings, os.LookupEnv)

	if *serverAddr != "" {
		settings.Relay.URL = *serverAddr
	}
	if *language != "" {
		settings.DefaultLanguage = *language
	}
	if *metricsAddr != "" {
		settings.MetricsAddr = *metricsAddr
	}
	if *mic != "" {
		settings.Capture.Source = *mic
	}
	if *sink != "" {
		settings.Playback.Sink = *sink
	}

	if err := config.Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}
