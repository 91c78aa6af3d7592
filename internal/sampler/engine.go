package sampler

import (
	"math"
	"sync"
)

type Params struct {
	Voices       int
	MasterGain   float64
	AttackSec    float64
	ReleaseSec   float64
	VelocityAmp  float64
	StereoSpread float64 // 0 = mono, 1 = full keyboard width
}

func DefaultParams() Params {
	return Params{
		Voices:       24,
		MasterGain:   0.9,
		AttackSec:    0.002,
		ReleaseSec:   0.08,
		VelocityAmp:  0.85,
		StereoSpread: 0.8,
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
	data      []float64
	pos       float64
	step      float64
	velocity  float64
	env       float64
	envState  envState
	releaseIn int // frames until the scheduled release
	pan       float64
}

// Engine plays key recordings from a Kit, shifting the nearest key to the
// requested pitch by resampling with linear interpolation. It exposes the
// same trigger surface as the synthesizer so the two swap freely.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	params     Params
	kit        *Kit
	voices     []voice
	masterGain float64
}

func New(sampleRate int, kit *Kit, params Params) *Engine {
	if params.Voices <= 0 {
		params.Voices = 24
	}
	return &Engine{
		sampleRate: float64(sampleRate),
		params:     params,
		kit:        kit,
		voices:     make([]voice, params.Voices),
		masterGain: params.MasterGain,
	}
}

// Ready reports whether the backing kit finished loading.
func (e *Engine) Ready() bool { return e.kit != nil && e.kit.Ready() }

// Trigger starts a note that sounds for durSeconds and then releases
// itself. Triggers are dropped while the kit is still loading.
func (e *Engine) Trigger(pitch int, durSeconds, velocity float64) {
	if e.kit == nil {
		return
	}
	s := e.kit.nearest(pitch)
	if s == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.stealVoice()
	v := &e.voices[slot]
	v.active = true
	v.age = 0
	v.data = s.data
	v.pos = 0
	v.step = midiToFreq(pitch) / s.rootFreq * float64(s.rate) / e.sampleRate
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
		idx := int(v.pos)
		if idx+1 >= len(v.data) {
			v.env = 0
			v.envState = envOff
			v.active = false
			continue
		}
		frac := v.pos - float64(idx)
		smp := v.data[idx]*(1-frac) + v.data[idx+1]*frac
		v.pos += v.step

		level := env * (0.15 + v.velocity*e.params.VelocityAmp)
		sig := smp * level * e.masterGain
		angle := (v.pan + 1) / 2 * (math.Pi / 2)
		l += sig * math.Cos(angle)
		r += sig * math.Sin(angle)
	}
	return softClip(l), softClip(r)
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
		// The recording carries its own decay.
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
