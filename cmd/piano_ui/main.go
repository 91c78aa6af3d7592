package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	fallingnotes "github.com/kobeyabkk/falling-notes-piano"
	"github.com/kobeyabkk/falling-notes-piano/internal/config"
)

const (
	windowW    = 1100
	windowH    = 720
	minWindowW = 980
	minWindowH = 640

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	keyStripH = 56
	seekStep  = 5.0
	rateStep  = 0.1
)

var (
	bgColor        = color.RGBA{192, 192, 192, 255}
	panelColor     = color.RGBA{192, 192, 192, 255}
	borderColor    = color.RGBA{128, 128, 128, 255}
	buttonColor    = color.RGBA{192, 192, 192, 255}
	highlightColor = color.RGBA{0, 0, 128, 255}

	// 3D bevel colors for old-school embossed look.
	bevelLight  = color.RGBA{255, 255, 255, 255}
	bevelDarker = color.RGBA{64, 64, 64, 255}

	// Sunken panel interior.
	sunkenBgColor = color.RGBA{24, 24, 32, 255}

	// Slider fill accent.
	sliderFillColor = color.RGBA{0, 0, 128, 255}

	// Falling-note canvas.
	canvasBgColor    = color.RGBA{16, 18, 26, 255}
	octaveLineColor  = color.RGBA{34, 38, 52, 255}
	triggerLineColor = color.RGBA{220, 60, 60, 255}
	noteWhiteColor   = color.RGBA{80, 160, 255, 230}
	noteBlackColor   = color.RGBA{56, 110, 205, 230}
	noteLitColor     = color.RGBA{255, 210, 80, 255}

	// Keyboard strip.
	keybedColor   = color.RGBA{150, 150, 150, 255}
	whiteKeyColor = color.RGBA{235, 235, 235, 255}
	blackKeyColor = color.RGBA{28, 28, 34, 255}
	keyLitColor   = color.RGBA{255, 190, 60, 255}

	repeatMarkColor = color.RGBA{90, 200, 120, 255}

	canvasPlaceholder = "Select a MIDI file to play."
)

type navEntry struct {
	name  string
	path  string
	isDir bool
}

type game struct {
	player *fallingnotes.Player
	events <-chan fallingnotes.PlaybackEvent
	frame  *fallingnotes.Frame

	rateMin float64
	rateMax float64
	lowKey  int
	highKey int
	volume  float64

	dragging int // 0=none, 1=volume, 2=rate, 3=seek

	status    string
	statusErr bool

	cwd        string
	nav        []navEntry
	navScroll  int
	loadedPath string

	frameTick        int
	lastNavPath      string
	lastNavClickTick int

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(settings config.Settings, sampleDir, initialPath string) (*game, error) {
	opts := []fallingnotes.PlayerOption{fallingnotes.WithSettings(settings)}
	if sampleDir != "" {
		opts = append(opts, fallingnotes.WithSampleDir(sampleDir))
	}
	pl, err := fallingnotes.NewPlayer(opts...)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if initialPath != "" {
		cwd = filepath.Dir(initialPath)
	}

	g := &game{
		player:    pl,
		events:    pl.Watch(),
		rateMin:   settings.Playback.RateMin,
		rateMax:   settings.Playback.RateMax,
		lowKey:    settings.Display.LowKey,
		highKey:   settings.Display.HighKey,
		volume:    1.0,
		status:    "Ready",
		cwd:       cwd,
		textCache: make(map[string]*ebiten.Image, 1024),
		viewW:     windowW,
		viewH:     windowH,
	}
	if err := g.refreshNav(); err != nil {
		g.setError(err.Error())
	}
	if initialPath != "" {
		if err := g.loadFile(initialPath); err != nil {
			g.setError(err.Error())
		} else {
			g.setStatus("Loaded " + filepath.Base(initialPath))
		}
	}
	return g, nil
}

func (g *game) Update() error {
	g.frameTick++
	g.pollEvents()
	g.handleKeys()
	g.handleMouse()

	// The note field is the canvas interior minus the keyboard strip;
	// notes land where the keys begin and sink behind them.
	canvasH := float64(g.layoutRects().canvas.Dy() - 4)
	g.player.SetViewport(canvasH, canvasH-keyStripH)
	if f := g.player.Advance(float64(g.frameTick) / 60.0); f != nil {
		g.frame = f
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)

	l := g.layoutRects()

	g.drawSunkenPanel(screen, l.nav)
	g.drawText(screen, "Songs", l.nav.Min.X+8, l.nav.Min.Y+8)
	g.drawNavigator(screen, l.nav)

	g.drawCanvas(screen, l.canvas)
	g.drawSeekBar(screen, l.seek)

	g.drawButton(screen, l.play, g.playButtonLabel(), buttonColor)
	g.drawButton(screen, l.stop, "Stop", buttonColor)
	g.drawButton(screen, l.loop, g.loopLabel(), buttonColor)
	g.drawRateSlider(screen, l.rate)
	g.drawVolumeSlider(screen, l.volume)

	g.drawSunkenPanel(screen, l.status)
	g.drawStatus(screen, l.status)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	if outsideW < minWindowW {
		outsideW = minWindowW
	}
	if outsideH < minWindowH {
		outsideH = minWindowH
	}
	g.viewW = outsideW
	g.viewH = outsideH
	return outsideW, outsideH
}

func (g *game) Close() { _ = g.player.Close() }

func (g *game) pollEvents() {
	for {
		select {
		case ev, ok := <-g.events:
			if !ok {
				return
			}
			switch ev.Kind {
			case fallingnotes.EventEnded:
				g.setStatus("Playback ended")
			case fallingnotes.EventLooped:
				g.setStatus("Looped")
			case fallingnotes.EventRepeatWrapped:
				g.setStatus("Repeat wrapped")
			}
		default:
			return
		}
	}
}

func (g *game) handleKeys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		g.togglePlayPause()
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		g.player.Stop()
		g.setStatus("Stopped")
	case inpututil.IsKeyJustPressed(ebiten.KeyLeft):
		g.player.SeekBy(-seekStep)
		g.setStatus("Seek " + formatTime(g.player.Position()))
	case inpututil.IsKeyJustPressed(ebiten.KeyRight):
		g.player.SeekBy(seekStep)
		g.setStatus("Seek " + formatTime(g.player.Position()))
	case inpututil.IsKeyJustPressed(ebiten.KeyUp):
		applied := g.player.SetRate(g.player.Rate() + rateStep)
		g.setStatus(fmt.Sprintf("Rate x%.2f", applied))
	case inpututil.IsKeyJustPressed(ebiten.KeyDown):
		applied := g.player.SetRate(g.player.Rate() - rateStep)
		g.setStatus(fmt.Sprintf("Rate x%.2f", applied))
	case inpututil.IsKeyJustPressed(ebiten.KeyL):
		on := !g.player.Loop()
		g.player.SetLoop(on)
		g.setStatus("Loop: " + onOff(on))
	case inpututil.IsKeyJustPressed(ebiten.KeyA):
		pos := g.player.SetRepeatStart()
		g.setStatus("Repeat A at " + formatTime(pos))
	case inpututil.IsKeyJustPressed(ebiten.KeyB):
		pos, err := g.player.SetRepeatEnd()
		if err != nil {
			g.setError("Repeat B must come after A")
			return
		}
		g.setStatus("Repeat B at " + formatTime(pos))
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.player.ClearRepeat()
		g.setStatus("Repeat cleared")
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		switch {
		case pointInRect(mx, my, l.play):
			g.togglePlayPause()
			return
		case pointInRect(mx, my, l.stop):
			g.player.Stop()
			g.setStatus("Stopped")
			return
		case pointInRect(mx, my, l.loop):
			on := !g.player.Loop()
			g.player.SetLoop(on)
			g.setStatus("Loop: " + onOff(on))
			return
		case pointInRect(mx, my, l.rate):
			g.dragging = 2
			g.updateRateFromMouse(mx, l.rate)
			return
		case pointInRect(mx, my, l.volume):
			g.dragging = 1
			g.updateVolumeFromMouse(mx, l.volume)
			return
		case pointInRect(mx, my, l.seek):
			g.dragging = 3
			g.updateSeekFromMouse(mx, l.seek)
			return
		case pointInRect(mx, my, l.nav):
			g.clickNavigator(my, l.nav)
			return
		}
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.dragging = 0
	}
	switch g.dragging {
	case 1:
		g.updateVolumeFromMouse(mx, l.volume)
	case 2:
		g.updateRateFromMouse(mx, l.rate)
	case 3:
		g.updateSeekFromMouse(mx, l.seek)
	}

	_, wy := ebiten.Wheel()
	if wy == 0 {
		return
	}
	if pointInRect(mx, my, l.nav) {
		g.navScroll -= int(wy * 2)
		if g.navScroll < 0 {
			g.navScroll = 0
		}
	}
}

type uiLayout struct {
	nav, canvas, seek image.Rectangle
	play, stop, loop  image.Rectangle
	rate, volume      image.Rectangle
	status            image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	w := g.viewW
	h := g.viewH
	if w < minWindowW {
		w = minWindowW
	}
	if h < minWindowH {
		h = minWindowH
	}

	pad := 20
	rowH := 44
	statusH := 40
	seekH := 18

	// Bottom: status row, controls row, seek bar above them.
	statusTop := h - pad - statusH
	controlsTop := statusTop - 8 - rowH
	seekTop := controlsTop - 10 - seekH

	// Left column: song navigator.
	navW := 260
	navRect := image.Rect(pad, pad, pad+navW, seekTop-12)

	// Right column: the falling-note canvas.
	rightX := navRect.Max.X + 12
	canvasRect := image.Rect(rightX, pad, w-pad, seekTop-12)

	seekRect := image.Rect(pad, seekTop, w-pad, seekTop+seekH)

	playRect := image.Rect(pad, controlsTop, pad+120, controlsTop+rowH)
	stopRect := image.Rect(pad+132, controlsTop, pad+222, controlsTop+rowH)
	loopRect := image.Rect(pad+234, controlsTop, pad+364, controlsTop+rowH)
	rateRect := image.Rect(pad+376, controlsTop, pad+636, controlsTop+rowH)
	volRight := pad + 648 + 260
	if volRight > w-pad {
		volRight = w - pad
	}
	volumeRect := image.Rect(pad+648, controlsTop, volRight, controlsTop+rowH)

	statusRect := image.Rect(pad, statusTop, w-pad, statusTop+statusH)

	return uiLayout{
		nav: navRect, canvas: canvasRect, seek: seekRect,
		play: playRect, stop: stopRect, loop: loopRect,
		rate: rateRect, volume: volumeRect, status: statusRect,
	}
}

func blackKey(pitch int) bool {
	switch ((pitch % 12) + 12) % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}

func (g *game) drawCanvas(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), canvasBgColor)
	drawSunkenBorder(screen, rect)

	inner := image.Rect(rect.Min.X+2, rect.Min.Y+2, rect.Max.X-2, rect.Max.Y-2)
	laneW := float64(inner.Dx()) / float64(g.highKey-g.lowKey+1)
	laneX := func(pitch int) float64 {
		if pitch < g.lowKey {
			pitch = g.lowKey
		}
		if pitch > g.highKey {
			pitch = g.highKey
		}
		return float64(inner.Min.X) + float64(pitch-g.lowKey)*laneW
	}
	triggerY := inner.Max.Y - keyStripH

	// Octave guides: a faint line at every C.
	for pitch := g.lowKey; pitch <= g.highKey; pitch++ {
		if pitch%12 == 0 {
			ebitenutil.DrawRect(screen, laneX(pitch), float64(inner.Min.Y), 1, float64(triggerY-inner.Min.Y), octaveLineColor)
		}
	}

	var lit [128]bool
	if g.frame != nil {
		for _, box := range g.frame.Visible {
			top := float64(inner.Min.Y) + box.TopY
			bottom := float64(inner.Min.Y) + box.BottomY
			if top < float64(inner.Min.Y) {
				top = float64(inner.Min.Y)
			}
			if bottom > float64(inner.Max.Y) {
				bottom = float64(inner.Max.Y)
			}
			if bottom-top < 3 {
				bottom = top + 3
			}
			if bottom > float64(inner.Max.Y) {
				bottom = float64(inner.Max.Y)
			}
			col := noteWhiteColor
			if blackKey(box.Note.Pitch) {
				col = noteBlackColor
			}
			if box.Lit {
				col = noteLitColor
				if box.Note.Pitch >= 0 && box.Note.Pitch < 128 {
					lit[box.Note.Pitch] = true
				}
			}
			ebitenutil.DrawRect(screen, laneX(box.Note.Pitch)+1, top, laneW-2, bottom-top, col)
		}
	}

	ebitenutil.DrawRect(screen, float64(inner.Min.X), float64(triggerY-1), float64(inner.Dx()), 2, triggerLineColor)
	g.drawKeyboard(screen, image.Rect(inner.Min.X, triggerY+1, inner.Max.X, inner.Max.Y), laneW, &lit)
	g.drawHUD(screen, inner)
}

func (g *game) drawKeyboard(screen *ebiten.Image, rect image.Rectangle, laneW float64, lit *[128]bool) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), keybedColor)

	h := float64(rect.Dy())
	for pitch := g.lowKey; pitch <= g.highKey; pitch++ {
		if blackKey(pitch) {
			continue
		}
		x := float64(rect.Min.X) + float64(pitch-g.lowKey)*laneW
		col := whiteKeyColor
		if lit[pitch] {
			col = keyLitColor
		}
		ebitenutil.DrawRect(screen, x+1, float64(rect.Min.Y), laneW-1, h, col)
	}
	// Black keys sit on top, shorter, like a real keybed.
	for pitch := g.lowKey; pitch <= g.highKey; pitch++ {
		if !blackKey(pitch) {
			continue
		}
		x := float64(rect.Min.X) + float64(pitch-g.lowKey)*laneW
		col := blackKeyColor
		if lit[pitch] {
			col = keyLitColor
		}
		ebitenutil.DrawRect(screen, x+1, float64(rect.Min.Y), laneW-1, h*0.62, col)
	}
}

func (g *game) drawHUD(screen *ebiten.Image, inner image.Rectangle) {
	x := inner.Min.X + 8
	y := inner.Min.Y + 8

	if g.frame == nil || !g.player.Loaded() {
		g.drawText(screen, canvasPlaceholder, x, y)
		return
	}
	f := g.frame
	title := g.player.SongTitle()
	maxChars := max(8, (inner.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(fmt.Sprintf("%s  %s / %s", title, formatTime(f.Time), formatTime(f.Duration)), maxChars), x, y)
	g.drawText(screen, fmt.Sprintf("rate x%.2f  voices %d  latency %dms", f.Rate, g.player.ActiveVoices(), int(g.player.Latency()*1000)), x, y+lineH)

	var flags []string
	if g.player.Loop() {
		flags = append(flags, "loop")
	}
	if a, b, active := g.player.RepeatRange(); active {
		flags = append(flags, fmt.Sprintf("repeat %s-%s", formatTime(a), formatTime(b)))
	}
	if g.player.SamplesReady() {
		flags = append(flags, "samples")
	} else if g.player.SampleKitErr() != nil {
		flags = append(flags, "kit error")
	}
	if len(flags) > 0 {
		g.drawText(screen, strings.Join(flags, "  "), x, y+2*lineH)
	}
}

func (g *game) drawSeekBar(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)

	dur := g.player.SongDuration()
	if dur <= 0 {
		return
	}
	inner := image.Rect(rect.Min.X+2, rect.Min.Y+2, rect.Max.X-2, rect.Max.Y-2)
	frac := clamp(g.player.Position()/dur, 0, 1)
	fillW := int(float64(inner.Dx()) * frac)
	if fillW > 0 {
		ebitenutil.DrawRect(screen, float64(inner.Min.X), float64(inner.Min.Y), float64(fillW), float64(inner.Dy()), sliderFillColor)
	}
	if a, b, active := g.player.RepeatRange(); active {
		for _, t := range []float64{a, b} {
			mx := inner.Min.X + int(float64(inner.Dx())*clamp(t/dur, 0, 1))
			ebitenutil.DrawRect(screen, float64(mx-1), float64(inner.Min.Y), 2, float64(inner.Dy()), repeatMarkColor)
		}
	}
}

func (g *game) updateSeekFromMouse(mx int, rect image.Rectangle) {
	dur := g.player.SongDuration()
	if dur <= 0 || rect.Dx() <= 4 {
		return
	}
	frac := clamp(float64(mx-rect.Min.X-2)/float64(rect.Dx()-4), 0, 1)
	g.player.Seek(frac * dur)
	g.setStatus("Seek " + formatTime(g.player.Position()))
}

func (g *game) drawNavigator(screen *ebiten.Image, rect image.Rectangle) {
	label := g.cwd
	if g.loadedPath != "" {
		label = g.cwd + "  [" + filepath.Base(g.loadedPath) + "]"
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenMiddle(label, maxChars), rect.Min.X+8, rect.Min.Y+8+lineH)

	top := rect.Min.Y + 12 + (lineH * 2)
	maxLines := (rect.Dy() - (lineH * 2) - 18) / lineH
	if maxLines < 1 {
		maxLines = 1
	}
	if g.navScroll > len(g.nav)-1 {
		g.navScroll = max(0, len(g.nav)-1)
	}

	for i := 0; i < maxLines; i++ {
		idx := g.navScroll + i
		if idx < 0 || idx >= len(g.nav) {
			break
		}
		entry := g.nav[idx]
		y := top + i*lineH
		if g.loadedPath != "" && !entry.isDir && samePath(entry.path, g.loadedPath) {
			ebitenutil.DrawRect(screen, float64(rect.Min.X+6), float64(y-2), float64(rect.Dx()-12), float64(lineH+2), highlightColor)
		}
		txt := entry.name
		if entry.isDir && entry.name != ".." {
			txt += "/"
		}
		g.drawText(screen, shortenEnd(txt, maxChars-1), rect.Min.X+10, y)
	}
}

func (g *game) clickNavigator(my int, rect image.Rectangle) {
	top := rect.Min.Y + 12 + (lineH * 2)
	row := (my - top) / lineH
	if row < 0 {
		return
	}
	idx := g.navScroll + row
	if idx < 0 || idx >= len(g.nav) {
		return
	}
	entry := g.nav[idx]
	if entry.isDir {
		g.cwd = entry.path
		g.navScroll = 0
		if err := g.refreshNav(); err != nil {
			g.setError(err.Error())
			return
		}
		g.setStatus("Directory: " + g.cwd)
		return
	}

	doubleClickSame := samePath(entry.path, g.lastNavPath) && (g.frameTick-g.lastNavClickTick) <= 18
	g.lastNavPath = entry.path
	g.lastNavClickTick = g.frameTick

	if err := g.loadFile(entry.path); err != nil {
		g.setError(err.Error())
		return
	}
	if doubleClickSame {
		g.startPlayback()
		return
	}
	g.setStatus("Loaded " + filepath.Base(entry.path))
}

func (g *game) refreshNav() error {
	items, err := os.ReadDir(g.cwd)
	if err != nil {
		return err
	}
	dirs := make([]navEntry, 0)
	files := make([]navEntry, 0)

	parent := filepath.Dir(g.cwd)
	if parent != g.cwd {
		dirs = append(dirs, navEntry{name: "..", path: parent, isDir: true})
	}

	for _, it := range items {
		name := it.Name()
		full := filepath.Join(g.cwd, name)
		if it.IsDir() {
			dirs = append(dirs, navEntry{name: name, path: full, isDir: true})
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext == ".mid" || ext == ".midi" {
			files = append(files, navEntry{name: name, path: full, isDir: false})
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].name == ".." {
			return true
		}
		if dirs[j].name == ".." {
			return false
		}
		return strings.ToLower(dirs[i].name) < strings.ToLower(dirs[j].name)
	})
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].name) < strings.ToLower(files[j].name)
	})
	g.nav = append(dirs, files...)
	return nil
}

func (g *game) loadFile(path string) error {
	if err := g.player.LoadFile(path); err != nil {
		return err
	}
	g.loadedPath = path
	g.cwd = filepath.Dir(path)
	return g.refreshNav()
}

func (g *game) togglePlayPause() {
	if !g.player.Loaded() {
		g.setError("No song loaded")
		return
	}
	if g.player.Playing() {
		g.player.Pause()
		g.setStatus("Paused")
		return
	}
	g.startPlayback()
}

func (g *game) startPlayback() {
	if err := g.player.Play(); err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus("Playing")
}

func (g *game) playButtonLabel() string {
	if g.player.Playing() {
		return "Pause"
	}
	return "Play"
}

func (g *game) loopLabel() string {
	return "Loop: " + onOff(g.player.Loop())
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func (g *game) drawStatus(screen *ebiten.Image, rect image.Rectangle) {
	msg := "Status: " + g.status
	if g.statusErr {
		msg = "Status: ERROR - " + g.status
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(msg, maxChars), rect.Min.X+8, rect.Min.Y+6)
}

func (g *game) drawVolumeSlider(screen *ebiten.Image, rect image.Rectangle) {
	g.drawPanel(screen, rect)
	label := fmt.Sprintf("Vol %d%%", int(g.volume*100+0.5))
	g.drawText(screen, label, rect.Min.X+8, rect.Min.Y+8)

	trackX := rect.Min.X + 130
	trackW := rect.Dx() - 146
	trackY := rect.Min.Y + rect.Dy()/2 - 4
	if trackW < 20 {
		return
	}
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 8, bevelDarker)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW-1), 1, borderColor)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), 1, 7, borderColor)
	fillW := int(float64(trackW) * clamp(g.volume, 0, 1))
	if fillW > 2 {
		ebitenutil.DrawRect(screen, float64(trackX+1), float64(trackY+1), float64(fillW-1), 6, sliderFillColor)
	}
	knobX := trackX + fillW - 5
	if knobX < trackX-5 {
		knobX = trackX - 5
	}
	if knobX > trackX+trackW-5 {
		knobX = trackX + trackW - 5
	}
	knobRect := image.Rect(knobX, trackY-4, knobX+10, trackY+12)
	ebitenutil.DrawRect(screen, float64(knobRect.Min.X), float64(knobRect.Min.Y), float64(knobRect.Dx()), float64(knobRect.Dy()), panelColor)
	drawBorder(screen, knobRect)
}

func (g *game) updateVolumeFromMouse(mx int, rect image.Rectangle) {
	trackX := rect.Min.X + 130
	trackW := rect.Dx() - 146
	if trackW <= 0 {
		return
	}
	v := clamp(float64(mx-trackX)/float64(trackW), 0, 1)
	g.volume = v
	g.player.SetMasterVolume(v)
	g.setStatus(fmt.Sprintf("Volume: %d%%", int(v*100+0.5)))
}

func (g *game) drawRateSlider(screen *ebiten.Image, rect image.Rectangle) {
	g.drawPanel(screen, rect)
	label := fmt.Sprintf("Rate x%.2f", g.player.Rate())
	g.drawText(screen, label, rect.Min.X+8, rect.Min.Y+8)

	trackX := rect.Min.X + 130
	trackW := rect.Dx() - 146
	trackY := rect.Min.Y + rect.Dy()/2 - 4
	if trackW < 20 {
		return
	}
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 8, bevelDarker)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW-1), 1, borderColor)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), 1, 7, borderColor)

	// Mark normal speed on the track.
	span := g.rateMax - g.rateMin
	if span <= 0 {
		return
	}
	centerX := trackX + int(float64(trackW)*(1-g.rateMin)/span)
	ebitenutil.DrawRect(screen, float64(centerX)-1, float64(trackY-2), 2, 12, borderColor)

	frac := clamp((g.player.Rate()-g.rateMin)/span, 0, 1)
	knobX := trackX + int(frac*float64(trackW)) - 5
	if knobX < trackX-5 {
		knobX = trackX - 5
	}
	if knobX > trackX+trackW-5 {
		knobX = trackX + trackW - 5
	}
	knobRect := image.Rect(knobX, trackY-4, knobX+10, trackY+12)
	ebitenutil.DrawRect(screen, float64(knobRect.Min.X), float64(knobRect.Min.Y), float64(knobRect.Dx()), float64(knobRect.Dy()), panelColor)
	drawBorder(screen, knobRect)
}

func (g *game) updateRateFromMouse(mx int, rect image.Rectangle) {
	trackX := rect.Min.X + 130
	trackW := rect.Dx() - 146
	if trackW <= 0 {
		return
	}
	span := g.rateMax - g.rateMin
	if span <= 0 {
		return
	}
	frac := clamp(float64(mx-trackX)/float64(trackW), 0, 1)
	rate := g.rateMin + frac*span
	rate = math.Round(rate/0.05) * 0.05
	applied := g.player.SetRate(rate)
	g.setStatus(fmt.Sprintf("Rate x%.2f", applied))
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string, fill color.Color) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), fill)
	drawBorder(screen, rect)
	labelW := len([]rune(label)) * charW
	x := rect.Min.X + (rect.Dx()-labelW)/2
	y := rect.Min.Y + (rect.Dy()-lineH)/2
	g.drawText(screen, label, x, y)
}

// drawBorder draws a raised 3D bevel (highlight top/left, shadow bottom/right).
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

// drawSunkenBorder draws a sunken 3D bevel (shadow top/left, highlight bottom/right).
func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
	ebitenutil.DrawRect(screen, x+1, y+1, w-3, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+2, 1, h-4, bevelDarker)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		w := max(1, len([]rune(msg))*7)
		img = ebiten.NewImage(w, 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 3000 {
			g.textCache = make(map[string]*ebiten.Image, 1024)
		}
		g.textCache[msg] = img
	}
	// Embossed shadow behind the text.
	opS := &ebiten.DrawImageOptions{}
	opS.GeoM.Scale(textScale, textScale)
	opS.GeoM.Translate(float64(x+2), float64(y+2))
	opS.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, opS)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

func shortenMiddle(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 7 {
		return shortenEnd(s, maxChars)
	}
	left := (maxChars - 3) / 2
	right := maxChars - 3 - left
	return string(r[:left]) + "..." + string(r[len(r)-right:])
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

func main() {
	var (
		cfgPath = flag.String("config", "", "path to a YAML settings file")
		samples = flag.String("samples", "", "piano sample kit directory (overrides config)")
	)
	flag.Parse()

	settings := config.Default()
	if *cfgPath != "" {
		s, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatal(err)
		}
		settings = s
	}

	initialPath := ""
	if flag.NArg() > 0 {
		p, err := filepath.Abs(flag.Arg(0))
		if err != nil {
			log.Fatalf("resolve %q: %v", flag.Arg(0), err)
		}
		initialPath = p
	}

	g, err := newGame(settings, *samples, initialPath)
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("Falling Notes Piano")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
