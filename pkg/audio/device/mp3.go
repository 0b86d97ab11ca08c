// ABOUTME: Capture backend that plays an MP3 file into the microphone path
// ABOUTME: Loops the file, downmixes to mono and resamples to the stream rate
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
)

// MP3 backend. Capture streams read the file in real time, looping at the
// end. Playback is unsupported; pair it with another backend via Split.
type MP3 struct {
	Path   string
	Period time.Duration
}

// NewMP3 creates a backend that captures from the MP3 file at path
func NewMP3(path string) *MP3 {
	return &MP3{Path: path, Period: DefaultSyntheticPeriod}
}

// OpenCapture opens the file and streams it at the configured rate
func (m *MP3) OpenCapture(cfg Config, fn CaptureFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src, err := openLoopingMP3(m.Path)
	if err != nil {
		return nil, err
	}

	period := m.Period
	if period <= 0 {
		period = DefaultSyntheticPeriod
	}
	frames := int(int64(cfg.SampleRate) * int64(period) / int64(time.Second))
	buf := make([]float32, frames*cfg.Channels)
	rs := newStereoResampler(src, src.sampleRate, cfg.SampleRate)

	ticker := newTickerStream(period, func() {
		defer guardCallback("capture")
		if err := rs.fill(buf, cfg.Channels); err != nil {
			log.WithError(err).Warn("MP3 capture read failed")
			clear(buf)
		}
		fn(buf)
	})
	return &mp3Stream{tickerStream: ticker, src: src}, nil
}

// OpenPlayback is not supported
func (m *MP3) OpenPlayback(Config, PlaybackFunc) (Stream, error) {
	return nil, fmt.Errorf("mp3 playback: %w", ErrUnsupported)
}

// Close is a no-op; streams own their files
func (m *MP3) Close() error { return nil }

type mp3Stream struct {
	*tickerStream
	src *loopingMP3
}

func (s *mp3Stream) Close() error {
	return errors.Join(s.tickerStream.Close(), s.src.Close())
}

// loopingMP3 yields 16-bit stereo PCM and rewinds at end of file
type loopingMP3 struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
}

func openLoopingMP3(path string) (*loopingMP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	log.WithFields(logrus.Fields{
		"path":        path,
		"sample_rate": decoder.SampleRate(),
	}).Info("Loaded MP3 for capture")

	return &loopingMP3{file: f, decoder: decoder, sampleRate: decoder.SampleRate()}, nil
}

func (l *loopingMP3) Read(p []byte) (int, error) {
	n, err := l.decoder.Read(p)
	if err != io.EOF {
		return n, err
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return n, fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(l.file)
	if err != nil {
		return n, fmt.Errorf("failed to create new decoder: %w", err)
	}
	l.decoder = decoder
	return n, nil
}

func (l *loopingMP3) Close() error {
	return l.file.Close()
}

// stereoResampler turns interleaved 16-bit stereo into mono float samples
// at another rate by linear interpolation
type stereoResampler struct {
	src  io.Reader
	step float64
	pos  float64

	prev, next float32
	primed     bool

	raw   []byte
	start int
	end   int
}

func newStereoResampler(src io.Reader, inputRate, outputRate int) *stereoResampler {
	return &stereoResampler{
		src:  src,
		step: float64(inputRate) / float64(outputRate),
		raw:  make([]byte, 4096),
	}
}

// frame returns the next input frame downmixed to mono
func (r *stereoResampler) frame() (float32, error) {
	for r.end-r.start < 4 {
		copy(r.raw, r.raw[r.start:r.end])
		r.end -= r.start
		r.start = 0

		n, err := r.src.Read(r.raw[r.end:])
		r.end += n
		if n == 0 && err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.ErrNoProgress
		}
	}

	left := int16(binary.LittleEndian.Uint16(r.raw[r.start:]))
	right := int16(binary.LittleEndian.Uint16(r.raw[r.start+2:]))
	r.start += 4
	return (float32(left) + float32(right)) / 65536, nil
}

// fill writes len(out)/channels output frames, duplicating mono across channels
func (r *stereoResampler) fill(out []float32, channels int) error {
	if !r.primed {
		var err error
		if r.prev, err = r.frame(); err != nil {
			return err
		}
		if r.next, err = r.frame(); err != nil {
			return err
		}
		r.primed = true
	}

	for i := 0; i < len(out)/channels; i++ {
		for r.pos >= 1 {
			v, err := r.frame()
			if err != nil {
				return err
			}
			r.prev, r.next = r.next, v
			r.pos--
		}

		v := r.prev + (r.next-r.prev)*float32(r.pos)
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
		r.pos += r.step
	}
	return nil
}
