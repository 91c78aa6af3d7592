package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource produces interleaved stereo float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// Stream adapts a SampleSource to the byte stream the audio device reads,
// and counts the frames handed over. That count is the playback clock the
// scheduler anchors to: it advances only as the device consumes audio, so
// the picture cannot drift away from the sound.
type Stream struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	rate   float64
	frames atomic.Int64
}

func NewStream(sampleRate int, source SampleSource) *Stream {
	return &Stream{source: source, rate: float64(sampleRate)}
}

// Read renders the source into p as little-endian stereo float32 frames.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(s.buf) < need {
		s.buf = make([]float32, need)
	}
	s.buf = s.buf[:need]
	s.source.Process(s.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(s.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	s.frames.Add(int64(frames))
	return frames * 8, nil
}

func (s *Stream) Close() error { return nil }

// Now returns the stream position in seconds.
func (s *Stream) Now() float64 {
	return float64(s.frames.Load()) / s.rate
}

type Player struct {
	player *ebitaudio.Player
	stream *Stream
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	stream := NewStream(sampleRate, source)
	pl, err := ctx.NewPlayerF32(stream)
	if err != nil {
		return nil, err
	}
	return &Player{
		player: pl,
		stream: stream,
	}, nil
}

func (p *Player) Play() { p.player.Play() }

// Now returns how many seconds of audio the device has consumed.
func (p *Player) Now() float64 { return p.stream.Now() }

// Position returns the device playback position (what the listener
// actually hears); it trails Now by the device buffer.
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) Stop() error {
	p.player.Pause()
	p.player.Close()
	return p.stream.Close()
}
