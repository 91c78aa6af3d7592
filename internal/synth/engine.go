package synth

import (
	"math"
	"sync"
)

const twoPi = math.Pi * 2

const maxHarmonics = 8

type Params struct {
	Voices         int
	MasterGain     float64
	AttackSec      float64
	ReleaseSec     float64
	DecaySec       float64 // sustain ring time at 220 Hz
	DecayPitchSkew float64 // how much faster high notes die away
	Harmonics      int
	Rolloff        float64 // harmonic amplitude falloff exponent
	Brightness     float64 // rolloff reduction at full velocity
	VelocityAmp    float64
	StereoSpread   float64 // 0 = mono, 1 = full keyboard width
}

func DefaultParams() Params {
	return Params{
		Voices:         24,
		MasterGain:     0.22,
		AttackSec:      0.002,
		ReleaseSec:     0.06,
		DecaySec:       3.5,
		DecayPitchSkew: 0.6,
		Harmonics:      6,
		Rolloff:        1.4,
		Brightness:     0.5,
		VelocityAmp:    0.85,
		StereoSpread:   0.8,
	}
}

type envState int

const (
	envAttack envState = iota
	envSounding
	envRelease
	envOff
)

type voice struct {
	active    bool
	age       int
	pitch     int
	freq      float64
	phase     float64
	velocity  float64
	env       float64
	envState  envState
	decayMul  float64 // per-sample sustain decay
	releaseIn int     // frames until the scheduled release
	pan       float64 // -1 left .. +1 right
	harmonics int
	amps      [maxHarmonics]float64
}

// Engine is a polyphonic piano-like synthesizer: each voice is a stack of
// decaying harmonics with a percussive attack and a pitch-dependent ring
// time. Notes carry their duration up front and release themselves, so
// there is no note-off call. Trigger and Process may be called from
// different goroutines.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	params     Params
	voices     []voice
	masterGain float64
}

func New(sampleRate int, params Params) *Engine {
	if params.Voices <= 0 {
		params.Voices = 24
	}
	if params.Harmonics < 1 {
		params.Harmonics = 1
	}
	if params.Harmonics > maxHarmonics {
		params.Harmonics = maxHarmonics
	}
	return &Engine{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]voice, params.Voices),
		masterGain: params.MasterGain,
	}
}

// Trigger starts a note that sounds for durSeconds and then releases
// itself. Velocity in 0..1 sets both loudness and brightness.
func (e *Engine) Trigger(pitch int, durSeconds, velocity float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.stealVoice()
	v := &e.voices[slot]
	v.active = true
	v.age = 0
	v.pitch = pitch
	v.freq = midiToFreq(pitch)
	v.phase = 0
	v.velocity = clamp(velocity, 0, 1)
	v.env = 0
	v.envState = envAttack

	if durSeconds <= 0 {
		durSeconds = 0.05
	}
	v.releaseIn = int(durSeconds * e.sampleRate)
	if v.releaseIn < 1 {
		v.releaseIn = 1
	}

	// Bass strings ring for seconds, treble dies quickly.
	tau := e.params.DecaySec * math.Pow(220/v.freq, e.params.DecayPitchSkew)
	if tau < 0.05 {
		tau = 0.05
	}
	v.decayMul = math.Exp(-1 / (tau * e.sampleRate))

	// Harder strikes flatten the harmonic rolloff for a brighter tone.
	rolloff := e.params.Rolloff - e.params.Brightness*v.velocity
	if rolloff < 0.8 {
		rolloff = 0.8
	}
	v.harmonics = e.params.Harmonics
	for v.harmonics > 1 && float64(v.harmonics)*v.freq >= e.sampleRate/2 {
		v.harmonics--
	}
	var total float64
	for h := 1; h <= v.harmonics; h++ {
		a := 1 / math.Pow(float64(h), rolloff)
		v.amps[h-1] = a
		total += a
	}
	for h := 0; h < v.harmonics; h++ {
		v.amps[h] /= total
	}

	// Spread the keyboard across the stereo field, low keys to the left.
	pos := clamp(float64(pitch-21)/87, 0, 1)
	v.pan = (pos*2 - 1) * e.params.StereoSpread
}

// ReleaseAll sends every sounding voice into release, used when playback
// pauses or stops.
func (e *Engine) ReleaseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.envState != envRelease {
			v.envState = envRelease
			v.releaseIn = 0
		}
	}
}

// Process renders interleaved stereo float32 frames into dst.
func (e *Engine) Process(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		l, r := e.renderFrame()
		dst[i] = l
		dst[i+1] = r
	}
}

func (e *Engine) renderFrame() (float32, float32) {
	var l, r float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		v.age++
		if v.releaseIn > 0 && v.envState != envRelease {
			v.releaseIn--
			if v.releaseIn == 0 {
				v.envState = envRelease
			}
		}
		env := e.advanceEnv(v)
		if !v.active {
			continue
		}
		sample := e.renderHarmonics(v)
		level := env * (0.15 + v.velocity*e.params.VelocityAmp)
		sig := sample * level * e.masterGain
		angle := (v.pan + 1) / 2 * (math.Pi / 2)
		l += sig * math.Cos(angle)
		r += sig * math.Sin(angle)
	}
	return softClip(l), softClip(r)
}

func (e *Engine) renderHarmonics(v *voice) float64 {
	v.phase += v.freq / e.sampleRate
	if v.phase >= 1 {
		v.phase -= 1
	}
	var s float64
	for h := 1; h <= v.harmonics; h++ {
		s += v.amps[h-1] * math.Sin(twoPi*v.phase*float64(h))
	}
	return s
}

func (e *Engine) advanceEnv(v *voice) float64 {
	switch v.envState {
	case envAttack:
		step := 1.0 / (e.params.AttackSec * e.sampleRate)
		if step <= 0 {
			step = 1
		}
		v.env += step
		if v.env >= 1 {
			v.env = 1
			v.envState = envSounding
		}
	case envSounding:
		v.env *= v.decayMul
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envRelease:
		step := 1.0 / (e.params.ReleaseSec * e.sampleRate)
		if step <= 0 {
			step = 1
		}
		v.env -= step
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

func (e *Engine) stealVoice() int {
	// Prefer an inactive slot.
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	// Steal the oldest releasing voice, or failing that the oldest active voice.
	oldestRelease := -1
	oldestReleaseAge := -1
	oldestActive := 0
	oldestActiveAge := -1
	for i := range e.voices {
		v := &e.voices[i]
		if v.envState == envRelease && v.age > oldestReleaseAge {
			oldestRelease = i
			oldestReleaseAge = v.age
		}
		if v.age > oldestActiveAge {
			oldestActive = i
			oldestActiveAge = v.age
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldestActive
}

func (e *Engine) SetMasterGain(gain float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gain < 0 {
		gain = 0
	}
	e.masterGain = gain
}

func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

// softClip rounds off peaks above unity instead of clamping hard; the
// cubic maps ±1.5 to ±1 with unity gain at the origin.
func softClip(x float64) float32 {
	switch {
	case x <= -1.5:
		return -1
	case x >= 1.5:
		return 1
	}
	return float32(x - 4*x*x*x/27)
}

func midiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
