// ABOUTME: Entry point for the loopback development relay
// ABOUTME: Parses CLI flags and serves the relay until interrupted
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/voicecoach/internal/logging"
	"github.com/harperreed/voicecoach/internal/relay"
	"go.uber.org/zap"
)

var (
	addr     = flag.String("addr", ":8787", "Listen address")
	path     = flag.String("path", "/ws", "WebSocket path")
	name     = flag.String("name", "", "Relay friendly name (default: hostname-voicecoach-relay)")
	language = flag.String("language", "", "Language to select after the greeting")
	mode     = flag.String("mode", "", "Practice mode to select after the greeting")
	logFile  = flag.String("log-file", "loopback-relay.log", "Log file path")
	debug    = flag.Bool("debug", false, "Enable debug logging")
	noMDNS   = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	logger, err := logging.New(logging.Options{File: *logFile, Console: true, Debug: *debug})
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	relayName := *name
	if relayName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		relayName = fmt.Sprintf("%s-voicecoach-relay", hostname)
	}

	logger.Info("Starting loopback relay",
		zap.String("name", relayName),
		zap.String("addr", *addr),
		zap.String("log_file", *logFile))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := relay.New(relay.Config{
		Addr:       *addr,
		Path:       *path,
		Name:       relayName,
		EnableMDNS: !*noMDNS,
		Language:   *language,
		Mode:       *mode,
		Logger:     logger,
	})

	if err := srv.Run(ctx); err != nil {
		logger.Error("Relay error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
