package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	fallingnotes "github.com/kobeyabkk/falling-notes-piano"
	"github.com/kobeyabkk/falling-notes-piano/internal/config"
)

func main() {
	var (
		file       = flag.String("file", "", "path to a standard MIDI file (required)")
		cfgPath    = flag.String("config", "", "path to a YAML settings file")
		samples    = flag.String("samples", "", "piano sample kit directory (overrides config)")
		rate       = flag.Float64("rate", 1.0, "playback rate")
		loop       = flag.Bool("loop", false, "loop playback; use with -loops to count then stop")
		loops      = flag.Int("loops", 0, "when -loop, stop after N loops (0 = loop forever)")
		repeatSpec = flag.String("repeat", "", "A-B repeat range as start:end seconds, e.g. 12.5:31")
		wavPath    = flag.String("wav", "", "render to a WAV file instead of playing")
		maxSeconds = flag.Float64("max-seconds", 0, "stop after this much wall time (0 = play to the end)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		quiet      = flag.Bool("quiet", false, "suppress per-event output")
	)
	flag.Parse()

	if *file == "" {
		log.Fatal("usage: play_midi -file song.mid [-rate 0.75] [-loop] [-repeat a:b] [-wav out.wav]")
	}

	settings := config.Default()
	if *cfgPath != "" {
		s, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatal(err)
		}
		settings = s
	}

	if *wavPath != "" {
		if err := fallingnotes.RenderFile(*file, *wavPath, settings.Audio.SampleRate, *rate); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("rendered %s\n", *wavPath)
		return
	}

	opts := []fallingnotes.PlayerOption{fallingnotes.WithSettings(settings)}
	if *samples != "" {
		opts = append(opts, fallingnotes.WithSampleDir(*samples))
	}
	pl, err := fallingnotes.NewPlayer(opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer pl.Close()

	pl.SetMasterVolume(*volume)
	pl.SetLoop(*loop)
	ch := pl.Watch()
	if err := pl.LoadFile(*file); err != nil {
		log.Fatal(err)
	}
	// After load: loading clears any previous repeat range.
	if *repeatSpec != "" {
		a, b, err := parseRepeat(*repeatSpec)
		if err != nil {
			log.Fatal(err)
		}
		if err := pl.SetRepeatRange(a, b); err != nil {
			log.Fatal(err)
		}
	}
	pl.SetRate(*rate)
	if err := pl.Play(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("playing %s (%.1fs)\n", pl.SongTitle(), pl.SongDuration())

	start := time.Now()
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	loopCount := 0
	for {
		select {
		case now := <-ticker.C:
			wall := now.Sub(start).Seconds()
			pl.Advance(wall)
			if *maxSeconds > 0 && wall >= *maxSeconds {
				pl.Stop()
				fmt.Println("time limit reached")
				return
			}
		case ev := <-ch:
			switch ev.Kind {
			case fallingnotes.EventEnded:
				fmt.Println("playback completed")
				return
			case fallingnotes.EventLooped:
				loopCount++
				if !*quiet {
					fmt.Printf("loop %d completed\n", loopCount)
				}
				if *loop && *loops > 0 && loopCount >= *loops {
					pl.Stop()
					fmt.Println("stopped after configured loops")
					return
				}
			case fallingnotes.EventRepeatWrapped:
				if !*quiet {
					fmt.Printf("repeat wrapped at %.2fs\n", ev.Time)
				}
			default:
				if !*quiet {
					fmt.Printf("%s at %.2fs\n", ev.Kind, ev.Time)
				}
			}
		}
	}
}

func parseRepeat(spec string) (a, b float64, err error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid -repeat %q (expected start:end seconds)", spec)
	}
	if a, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid -repeat start %q: %v", parts[0], err)
	}
	if b, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid -repeat end %q: %v", parts[1], err)
	}
	return a, b, nil
}
