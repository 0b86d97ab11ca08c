// ABOUTME: Local loopback tool for the voice engine
// ABOUTME: Plays your own encoded voice back to you from a speaker orbiting the listener
package main

import (
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/internal/config"
	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/device"
	"github.com/Sendspin/sendspin-voice/pkg/voicechat"
)

// loopbackSpeaker is the id our own voice is played back under
const loopbackSpeaker = 1

var (
	backendName = flag.String("backend", config.BackendMalgo, "Audio backend: malgo, oto or synthetic")
	codec       = flag.String("codec", audio.CodecOpus, "Voice codec: opus or pcm")
	radius      = flag.Float64("radius", 500, "Orbit radius in world units")
	orbit       = flag.Duration("orbit", 4*time.Second, "Time for one orbit around the listener")
	duration    = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	micFile     = flag.String("mic-file", "", "Play an MP3 file as the microphone")
)

func main() {
	flag.Parse()
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("component", "loopback")

	audioCfg := config.Default().Audio
	audioCfg.Backend = *backendName
	audioCfg.Codec = *codec
	audioCfg.MicFile = *micFile
	if err := audioCfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid audio settings")
	}
	backend := audioCfg.NewBackend()
	defer backend.Close()

	opts := voicechat.DefaultOptions()
	opts.Backend = backend
	opts.Codec = *codec
	opts.Metrics = voicechat.NewMetrics(prometheus.NewRegistry())
	manager := voicechat.NewManager(opts)

	start := time.Now()
	listener := audio.Vec3{}

	// feed every encoded frame straight back into playback
	send := func(isTalking bool, packet []byte) {
		if packet == nil {
			if !isTalking {
				manager.OnPlayerStoppedTalking(loopbackSpeaker)
			}
			return
		}
		angle := 2 * math.Pi * time.Since(start).Seconds() / orbit.Seconds()
		pos := audio.Vec3{
			float32(*radius * math.Sin(angle)),
			float32(*radius * math.Cos(angle)),
			0,
		}
		manager.OnReceiveVoiceData(loopbackSpeaker, packet, pos, listener, 0)
	}

	if err := manager.Initialize(send); err != nil {
		log.WithError(err).Fatal("Failed to initialize voice chat")
	}
	defer manager.Shutdown()

	manager.StartTalking()
	log.WithFields(logrus.Fields{
		"backend": *backendName,
		"codec":   *codec,
		"radius":  *radius,
	}).Info("Loopback running, press Ctrl-C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fields := logrus.Fields{}
			for _, sp := range manager.Stats().Speakers {
				fields["buffered_ms"] = sp.BufferedSamples * 1000 / audio.SampleRate
				fields["buffering"] = sp.Buffering
				fields["concealed"] = sp.ConcealCount
			}
			if synth, ok := playbackOf(backend).(*device.Synthetic); ok {
				fields["peak"] = synth.Peak()
				synth.ResetPeak()
			}
			log.WithFields(fields).Info("Loopback status")

		case <-deadline:
			log.Info("Duration elapsed")
			manager.StopTalking()
			return

		case sig := <-sigChan:
			log.WithField("signal", sig).Info("Stopping")
			manager.StopTalking()
			return
		}
	}
}

// playbackOf unwraps a split backend to its playback side
func playbackOf(backend device.Backend) device.Backend {
	if split, ok := backend.(*device.Split); ok {
		return split.Playback
	}
	return backend
}
