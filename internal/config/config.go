package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the on-disk configuration. Fields missing from the file
// keep their defaults.
type Settings struct {
	Audio struct {
		SampleRate int     `yaml:"sample_rate"`
		MasterGain float64 `yaml:"master_gain"`
		ReverbMix  float64 `yaml:"reverb_mix"` // room reverb wet mix on the master bus, 0 = dry
		SampleDir  string  `yaml:"sample_dir"` // piano sample kit, empty = synthesizer only
	} `yaml:"audio"`
	Display struct {
		Width           int     `yaml:"width"`
		Height          int     `yaml:"height"`
		TriggerRatio    float64 `yaml:"trigger_ratio"`    // trigger line position as a fraction of height
		ApproachSeconds float64 `yaml:"approach_seconds"` // fall time from spawn to the trigger line
		MinLitSeconds   float64 `yaml:"min_lit_seconds"`
		LowKey          int     `yaml:"low_key"`  // lowest keyboard pitch, MIDI number
		HighKey         int     `yaml:"high_key"` // highest keyboard pitch, MIDI number
	} `yaml:"display"`
	Playback struct {
		Rate            float64 `yaml:"rate"`
		RateMin         float64 `yaml:"rate_min"`
		RateMax         float64 `yaml:"rate_max"`
		StopTailSeconds float64 `yaml:"stop_tail_seconds"`
		Loop            bool    `yaml:"loop"`
	} `yaml:"playback"`
	Cadence struct {
		SlowSeconds   float64 `yaml:"slow_seconds"`
		MediumSeconds float64 `yaml:"medium_seconds"`
		FewNotes      int     `yaml:"few_notes"`
		BoostSeconds  float64 `yaml:"boost_seconds"`
	} `yaml:"cadence"`
}

func Default() Settings {
	var s Settings
	s.Audio.SampleRate = 48000
	s.Audio.MasterGain = 0.22
	s.Audio.ReverbMix = 0.15
	s.Display.Width = 1280
	s.Display.Height = 720
	s.Display.TriggerRatio = 560.0 / 720.0
	s.Display.ApproachSeconds = 3
	s.Display.MinLitSeconds = 0.1
	s.Display.LowKey = 21   // A0
	s.Display.HighKey = 108 // C8
	s.Playback.Rate = 1
	s.Playback.RateMin = 0.25
	s.Playback.RateMax = 2
	s.Playback.StopTailSeconds = 1.5
	s.Cadence.SlowSeconds = 0.5
	s.Cadence.MediumSeconds = 0.2
	s.Cadence.FewNotes = 4
	s.Cadence.BoostSeconds = 0.3
	return s
}

// Load reads a YAML settings file over the defaults and validates the
// result.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", s.Audio.SampleRate)
	}
	if s.Audio.MasterGain < 0 {
		return fmt.Errorf("audio.master_gain must not be negative, got %g", s.Audio.MasterGain)
	}
	if s.Audio.ReverbMix < 0 || s.Audio.ReverbMix > 1 {
		return fmt.Errorf("audio.reverb_mix must be within 0..1, got %g", s.Audio.ReverbMix)
	}
	if s.Display.Width <= 0 || s.Display.Height <= 0 {
		return fmt.Errorf("display.width and display.height must be positive, got %dx%d", s.Display.Width, s.Display.Height)
	}
	if s.Display.TriggerRatio <= 0 || s.Display.TriggerRatio >= 1 {
		return fmt.Errorf("display.trigger_ratio must be between 0 and 1 exclusive, got %g", s.Display.TriggerRatio)
	}
	if s.Display.ApproachSeconds <= 0 {
		return fmt.Errorf("display.approach_seconds must be positive, got %g", s.Display.ApproachSeconds)
	}
	if s.Display.MinLitSeconds < 0 {
		return fmt.Errorf("display.min_lit_seconds must not be negative, got %g", s.Display.MinLitSeconds)
	}
	if s.Display.LowKey < 0 || s.Display.HighKey > 127 || s.Display.HighKey <= s.Display.LowKey {
		return fmt.Errorf("display.low_key..display.high_key must be an ascending MIDI range within 0..127, got %d..%d", s.Display.LowKey, s.Display.HighKey)
	}
	if s.Playback.RateMin <= 0 {
		return fmt.Errorf("playback.rate_min must be positive, got %g", s.Playback.RateMin)
	}
	if s.Playback.RateMax < s.Playback.RateMin {
		return fmt.Errorf("playback.rate_max %g is below playback.rate_min %g", s.Playback.RateMax, s.Playback.RateMin)
	}
	if s.Playback.Rate < s.Playback.RateMin || s.Playback.Rate > s.Playback.RateMax {
		return fmt.Errorf("playback.rate %g is outside %g..%g", s.Playback.Rate, s.Playback.RateMin, s.Playback.RateMax)
	}
	if s.Playback.StopTailSeconds < 0 {
		return fmt.Errorf("playback.stop_tail_seconds must not be negative, got %g", s.Playback.StopTailSeconds)
	}
	if s.Cadence.SlowSeconds < 0 || s.Cadence.MediumSeconds < 0 || s.Cadence.BoostSeconds < 0 {
		return fmt.Errorf("cadence intervals must not be negative")
	}
	if s.Cadence.FewNotes < 0 {
		return fmt.Errorf("cadence.few_notes must not be negative, got %d", s.Cadence.FewNotes)
	}
	return nil
}
