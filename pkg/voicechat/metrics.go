// ABOUTME: Prometheus metrics for the voice pipeline
// ABOUTME: Counts codec work, speaker lifecycle and mixing passes
package voicechat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Eviction reasons
const (
	RemovedStopped  = "stopped"
	RemovedTimeout  = "timeout"
	RemovedShutdown = "shutdown"
)

// Metrics contains the Prometheus metrics for one voice chat instance.
// A nil *Metrics records nothing.
type Metrics struct {
	FramesEncoded  prometheus.Counter
	EncodeFailures prometheus.Counter
	FramesSent     prometheus.Counter

	PacketsDecoded  prometheus.Counter
	DecodeFailures  prometheus.Counter
	ConcealedFrames prometheus.Counter

	SpeakersCreated prometheus.Counter
	SpeakersRemoved *prometheus.CounterVec
	ActiveSpeakers  prometheus.Gauge
	MixPasses       prometheus.Counter
}

// NewMetrics creates the metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_frames_encoded_total",
			Help: "Total number of captured frames encoded",
		}),
		EncodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_encode_failures_total",
			Help: "Total number of frames the encoder rejected",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_frames_sent_total",
			Help: "Total number of encoded frames handed to the transport",
		}),
		PacketsDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_packets_decoded_total",
			Help: "Total number of received packets decoded",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_decode_failures_total",
			Help: "Total number of received packets that failed to decode",
		}),
		ConcealedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_concealed_frames_total",
			Help: "Total number of frames synthesized by loss concealment",
		}),
		SpeakersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_speakers_created_total",
			Help: "Total number of remote speakers that became active",
		}),
		SpeakersRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechat_speakers_removed_total",
			Help: "Total number of remote speakers removed by reason",
		}, []string{"reason"}),
		ActiveSpeakers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicechat_active_speakers",
			Help: "Current number of active remote speakers",
		}),
		MixPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_mix_passes_total",
			Help: "Total number of playback mixing passes",
		}),
	}
}

func (m *Metrics) recordEncoded() {
	if m != nil {
		m.FramesEncoded.Inc()
	}
}

func (m *Metrics) recordEncodeFailure() {
	if m != nil {
		m.EncodeFailures.Inc()
	}
}

func (m *Metrics) recordSent() {
	if m != nil {
		m.FramesSent.Inc()
	}
}

func (m *Metrics) recordDecoded() {
	if m != nil {
		m.PacketsDecoded.Inc()
	}
}

func (m *Metrics) recordDecodeFailure() {
	if m != nil {
		m.DecodeFailures.Inc()
	}
}

func (m *Metrics) recordConcealed() {
	if m != nil {
		m.ConcealedFrames.Inc()
	}
}

func (m *Metrics) recordSpeakerCreated(active int) {
	if m != nil {
		m.SpeakersCreated.Inc()
		m.ActiveSpeakers.Set(float64(active))
	}
}

func (m *Metrics) recordSpeakerRemoved(reason string, active int) {
	if m != nil {
		m.SpeakersRemoved.WithLabelValues(reason).Inc()
		m.ActiveSpeakers.Set(float64(active))
	}
}

func (m *Metrics) recordMixPass() {
	if m != nil {
		m.MixPasses.Inc()
	}
}
