package sampler

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// sample is one decoded key recording, mixed down to mono.
type sample struct {
	pitch    int
	rootFreq float64
	rate     int
	data     []float64
}

// Kit holds a directory of per-key piano recordings named by MIDI note
// number (60.wav is middle C). Decoding runs in the background; until
// Ready reports true the kit resolves no samples and callers should fall
// back to synthesis.
type Kit struct {
	mu      sync.Mutex
	samples map[int]*sample
	pitches []int
	ready   bool
	err     error
}

// LoadKit starts decoding dir in the background and returns immediately.
func LoadKit(dir string) *Kit {
	k := &Kit{}
	go k.load(dir)
	return k
}

func (k *Kit) load(dir string) {
	samples, err := decodeDir(dir)
	k.mu.Lock()
	defer k.mu.Unlock()
	if err != nil {
		k.err = err
		return
	}
	if len(samples) == 0 {
		k.err = fmt.Errorf("no key samples in %s", dir)
		return
	}
	k.samples = samples
	for p := range samples {
		k.pitches = append(k.pitches, p)
	}
	sort.Ints(k.pitches)
	k.ready = true
}

func decodeDir(dir string) (map[int]*sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	samples := make(map[int]*sample)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		pitch, err := strconv.Atoi(stem)
		if err != nil || pitch < 0 || pitch > 127 {
			continue
		}
		s, err := decodeSample(filepath.Join(dir, entry.Name()), pitch)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Name(), err)
		}
		samples[pitch] = s
	}
	return samples, nil
}

func decodeSample(path string, pitch int) (*sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a wav file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	format := dec.Format()
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		return nil, fmt.Errorf("unknown bit depth")
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	nsamples := int(dec.PCMLen()) / bytesPerSample
	if nsamples == 0 || format.NumChannels <= 0 {
		return nil, fmt.Errorf("empty pcm data")
	}
	buf := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	if _, err := dec.PCMBuffer(buf); err != nil {
		return nil, err
	}

	floatBuf := buf.AsFloatBuffer()
	factor := math.Pow(2, float64(bitDepth-1))
	nch := format.NumChannels
	nframes := nsamples / nch
	data := make([]float64, nframes)
	for i := 0; i < nframes; i++ {
		var acc float64
		for c := 0; c < nch; c++ {
			acc += floatBuf.Data[i*nch+c]
		}
		data[i] = acc / (float64(nch) * factor)
	}
	return &sample{
		pitch:    pitch,
		rootFreq: midiToFreq(pitch),
		rate:     format.SampleRate,
		data:     data,
	}, nil
}

// Ready reports whether the kit finished loading with at least one sample.
func (k *Kit) Ready() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ready
}

// Err returns the load failure, if any.
func (k *Kit) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// Pitches returns the loaded key numbers in ascending order.
func (k *Kit) Pitches() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]int, len(k.pitches))
	copy(out, k.pitches)
	return out
}

// nearest returns the loaded sample closest to pitch, or nil while the
// kit is not ready.
func (k *Kit) nearest(pitch int) *sample {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.ready {
		return nil
	}
	i := sort.SearchInts(k.pitches, pitch)
	if i == 0 {
		return k.samples[k.pitches[0]]
	}
	if i == len(k.pitches) {
		return k.samples[k.pitches[len(k.pitches)-1]]
	}
	lo, hi := k.pitches[i-1], k.pitches[i]
	if pitch-lo <= hi-pitch {
		return k.samples[lo]
	}
	return k.samples[hi]
}

func midiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}
