// ABOUTME: Entry point for the Sendspin voice client
// ABOUTME: Parses CLI flags, loads configuration and runs the voice chat client
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/internal/app"
	"github.com/Sendspin/sendspin-voice/internal/config"
	"github.com/Sendspin/sendspin-voice/internal/logging"
	"github.com/Sendspin/sendspin-voice/internal/version"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	relayAddr  = flag.String("relay", "", "Relay address host:port (skip mDNS)")
	name       = flag.String("name", "", "Speaker name (default: hostname-voice)")
	backend    = flag.String("backend", "", "Audio backend: malgo, oto or synthetic")
	codec      = flag.String("codec", "", "Voice codec: opus or pcm")
	logFile    = flag.String("log-file", "", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	talk       = flag.Bool("talk", false, "Start transmitting immediately (open mic)")
	metrics    = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	micFile    = flag.String("mic-file", "", "Play an MP3 file as the microphone")
)

func main() {
	flag.Parse()
	useTUI := !*noTUI

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load configuration")
		}
		cfg = loaded
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	closer, err := logging.Setup(logrus.StandardLogger(), cfg.Logging, useTUI)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	defer closer.Close()

	log := logrus.WithField("component", "main")
	log.WithFields(logrus.Fields{
		"version": version.Version,
		"backend": cfg.Audio.Backend,
		"codec":   cfg.Audio.Codec,
	}).Info("Starting Sendspin Voice")

	voice := app.New(app.Config{Voice: cfg, UseTUI: useTUI})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = voice.Start(ctx)
	cancel()
	if err != nil {
		voice.Stop()
		log.WithError(err).Fatal("Failed to start")
	}

	if *talk {
		voice.SetTalking(true)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-voice.Quit():
		log.Info("Received quit signal from TUI")
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("Shutdown signal received")
	case <-voice.Done():
		log.Warn("Relay connection lost")
	}

	voice.Stop()
	log.Info("Voice client stopped")
}

// applyFlags lets explicit flags override file values
func applyFlags(cfg *config.Config) {
	if *relayAddr != "" {
		cfg.Client.Relay = *relayAddr
	}
	if *name != "" {
		cfg.Client.Name = *name
	}
	if *backend != "" {
		cfg.Audio.Backend = *backend
	}
	if *codec != "" {
		cfg.Audio.Codec = *codec
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *micFile != "" {
		cfg.Audio.MicFile = *micFile
	}
	if *metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = *metrics
	}
}
