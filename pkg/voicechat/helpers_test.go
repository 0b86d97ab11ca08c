// ABOUTME: Shared fixtures for voice chat tests
// ABOUTME: Fake codecs, a failing backend and a harness over the external device
package voicechat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/decode"
	"github.com/Sendspin/sendspin-voice/pkg/audio/device"
	"github.com/Sendspin/sendspin-voice/pkg/audio/encode"
	"github.com/Sendspin/sendspin-voice/pkg/clock"
)

var errFake = errors.New("fake failure")

// fakeEncoder emits a one-byte packet per frame unless told otherwise
type fakeEncoder struct {
	mu      sync.Mutex
	calls   int
	fail    bool
	empty   bool
	closed  bool
	onClose func()
}

func (e *fakeEncoder) Encode(pcm []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, errFake
	}
	if e.empty {
		return nil, nil
	}
	return []byte{byte(e.calls)}, nil
}

func (e *fakeEncoder) Close() error {
	e.mu.Lock()
	onClose := e.onClose
	e.closed = true
	e.mu.Unlock()
	if onClose != nil {
		onClose()
	}
	return nil
}

func (e *fakeEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEncoder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// fakeDecoder turns packet byte b into one frame of samples valued b*100.
// A packet starting with 0xff fails to decode.
type fakeDecoder struct {
	mu           sync.Mutex
	concealCalls int
	closed       bool
	onClose      func()
}

const concealValue = 1000

func (d *fakeDecoder) Decode(data []byte) ([]int16, error) {
	if len(data) > 0 && data[0] == 0xff {
		return nil, errFake
	}
	pcm := make([]int16, audio.FrameSize)
	for i := range pcm {
		pcm[i] = int16(data[0]) * 100
	}
	return pcm, nil
}

func (d *fakeDecoder) Conceal(frameSize int) ([]int16, error) {
	d.mu.Lock()
	d.concealCalls++
	d.mu.Unlock()
	pcm := make([]int16, frameSize)
	for i := range pcm {
		pcm[i] = concealValue
	}
	return pcm, nil
}

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	onClose := d.onClose
	d.closed = true
	d.mu.Unlock()
	if onClose != nil {
		onClose()
	}
	return nil
}

func (d *fakeDecoder) ConcealCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.concealCalls
}

func (d *fakeDecoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// failingBackend wraps External with injectable open errors
type failingBackend struct {
	*device.External
	captureErr  error
	playbackErr error
}

func (b *failingBackend) OpenCapture(cfg device.Config, fn device.CaptureFunc) (device.Stream, error) {
	if b.captureErr != nil {
		return nil, b.captureErr
	}
	return b.External.OpenCapture(cfg, fn)
}

func (b *failingBackend) OpenPlayback(cfg device.Config, fn device.PlaybackFunc) (device.Stream, error) {
	if b.playbackErr != nil {
		return nil, b.playbackErr
	}
	return b.External.OpenPlayback(cfg, fn)
}

type harness struct {
	backend *failingBackend
	clock   *clock.Manual
	logs    *logtest.Hook
	metrics *Metrics
	opts    Options

	mu         sync.Mutex
	encoders   []*fakeEncoder
	decoders   []*fakeDecoder
	decoderErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		backend: &failingBackend{External: device.NewExternal()},
		clock:   clock.NewManual(time.Unix(1700000000, 0)),
		logs:    hook,
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	h.opts = Options{
		Backend: h.backend,
		NewEncoder: func() (encode.Encoder, error) {
			enc := &fakeEncoder{}
			h.mu.Lock()
			h.encoders = append(h.encoders, enc)
			h.mu.Unlock()
			return enc, nil
		},
		NewDecoder: func() (decode.Decoder, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.decoderErr != nil {
				return nil, h.decoderErr
			}
			dec := &fakeDecoder{}
			h.decoders = append(h.decoders, dec)
			return dec, nil
		},
		Clock:   h.clock,
		Logger:  logger,
		Metrics: h.metrics,
	}
	return h
}

func (h *harness) encoder(i int) *fakeEncoder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encoders[i]
}

func (h *harness) decoder(i int) *fakeDecoder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.decoders[i]
}

func (h *harness) decoderCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.decoders)
}

// push delivers samples to the capture stream in the given chunk sizes
func (h *harness) push(chunks ...int) {
	for _, n := range chunks {
		h.backend.PushCapture(make([]float32, n))
	}
}

// pull runs one mixing pass over frames stereo frames
func (h *harness) pull(frames int) []float32 {
	out := make([]float32, frames*2)
	h.backend.PullPlayback(out)
	return out
}

func silent(out []float32) bool {
	for _, v := range out {
		if v != 0 {
			return false
		}
	}
	return true
}

func hasLog(hook *logtest.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}
