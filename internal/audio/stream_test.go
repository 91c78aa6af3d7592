package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// rampSource writes an incrementing sample value so byte order and frame
// accounting are visible in the output.
type rampSource struct{ next float32 }

func (r *rampSource) Process(dst []float32) {
	for i := range dst {
		dst[i] = r.next
		r.next++
	}
}

func TestStreamEncodesFloat32LittleEndian(t *testing.T) {
	s := NewStream(48000, &rampSource{})
	p := make([]byte, 4*8) // four stereo frames
	n, err := s.Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(p) {
		t.Fatalf("read bytes: got %d, want %d", n, len(p))
	}
	for i := 0; i < 8; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if got != float32(i) {
			t.Fatalf("sample %d: got %v, want %v", i, got, float32(i))
		}
	}
}

func TestStreamCountsConsumedFrames(t *testing.T) {
	s := NewStream(48000, &rampSource{})
	if s.Now() != 0 {
		t.Fatalf("fresh stream position: got %v, want 0", s.Now())
	}
	p := make([]byte, 480*8)
	if _, err := s.Read(p); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, want := s.Now(), 480.0/48000; math.Abs(got-want) > 1e-12 {
		t.Fatalf("position after one read: got %v, want %v", got, want)
	}
	if _, err := s.Read(p); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, want := s.Now(), 960.0/48000; math.Abs(got-want) > 1e-12 {
		t.Fatalf("position after two reads: got %v, want %v", got, want)
	}
}

func TestStreamIgnoresPartialFrames(t *testing.T) {
	s := NewStream(48000, &rampSource{})
	n, err := s.Read(make([]byte, 7))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 0 {
		t.Fatalf("read bytes: got %d, want 0", n)
	}
	if s.Now() != 0 {
		t.Fatalf("position must not move on a short read, got %v", s.Now())
	}

	// A ragged buffer rounds down to whole frames.
	n, err = s.Read(make([]byte, 20))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 16 {
		t.Fatalf("read bytes: got %d, want 16", n)
	}
	if got, want := s.Now(), 2.0/48000; math.Abs(got-want) > 1e-12 {
		t.Fatalf("position: got %v, want %v", got, want)
	}
}
