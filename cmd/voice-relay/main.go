// ABOUTME: Entry point for the voice relay server
// ABOUTME: Parses CLI flags and runs the relay until interrupted
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/internal/config"
	"github.com/Sendspin/sendspin-voice/internal/discovery"
	"github.com/Sendspin/sendspin-voice/internal/logging"
	"github.com/Sendspin/sendspin-voice/internal/relay"
)

var (
	port    = flag.Int("port", 8928, "WebSocket relay port")
	name    = flag.String("name", "", "Relay friendly name (default: hostname-voice-relay)")
	path    = flag.String("path", discovery.DefaultPath, "WebSocket path")
	logFile = flag.String("log-file", "voice-relay.log", "Log file path")
	debug   = flag.Bool("debug", false, "Enable debug logging")
	jsonLog = flag.Bool("json", false, "Log as JSON")
	noMDNS  = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI   = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	logCfg := config.LoggingConfig{Level: "info", Format: "text", File: *logFile}
	if *debug {
		logCfg.Level = "debug"
	}
	if *jsonLog {
		logCfg.Format = "json"
	}
	closer, err := logging.Setup(logrus.StandardLogger(), logCfg, !*noTUI)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	defer closer.Close()

	relayName := *name
	if relayName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		relayName = fmt.Sprintf("%s-voice-relay", hostname)
	}

	log := logrus.WithField("component", "main")
	log.WithFields(logrus.Fields{
		"name": relayName,
		"port": *port,
	}).Info("Starting voice relay")
	log.Info("Press Ctrl-C to stop")

	srv := relay.New(relay.Config{
		Port:       *port,
		Name:       relayName,
		Path:       *path,
		EnableMDNS: !*noMDNS,
		UseTUI:     !*noTUI,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.WithField("signal", sig).Info("Shutting down gracefully...")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("Relay error")
	}

	log.Info("Relay stopped")
}
