// Package ui hosts the emulator core behind an ebiten window: it blits the
// PPU's framebuffer every frame, polls the keyboard into the joypad, and
// streams mixed audio through oto.
package ui

import (
	"fmt"
	"os"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/nkondo/pocketgb/internal/emu"
)

const (
	screenW = 160
	screenH = 144
)

var keymap = []struct {
	key    ebiten.Key
	button string
}{
	{ebiten.KeyZ, "A"},
	{ebiten.KeyX, "B"},
	{ebiten.KeyEnter, "Start"},
	{ebiten.KeyShift, "Select"},
	{ebiten.KeyUp, "Up"},
	{ebiten.KeyDown, "Down"},
	{ebiten.KeyLeft, "Left"},
	{ebiten.KeyRight, "Right"},
}

// App is an ebiten.Game driving one Machine.
type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image

	audioCtx    *oto.Context
	audioPlayer *oto.Player

	toastMsg string
	toastTTL int
}

// NewApp wires m to an ebiten window and an oto audio player. cfg.SampleRate
// must match the rate m's APU was constructed with.
func NewApp(cfg Config, m *emu.Machine) (*App, error) {
	cfg.Defaults()
	a := &App{cfg: cfg, m: m, tex: ebiten.NewImage(screenW, screenH)}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("ui: create audio context: %w", err)
	}
	<-ready
	a.audioCtx = ctx
	a.audioPlayer = ctx.NewPlayer(&apuStream{m: m})
	a.audioPlayer.Play()
	return a, nil
}

// Run opens the window and blocks until it is closed.
func (a *App) Run() error {
	ebiten.SetWindowSize(screenW*a.cfg.Scale, screenH*a.cfg.Scale)
	ebiten.SetWindowTitle(a.cfg.Title)
	return ebiten.RunGame(a)
}

func (a *App) pollInput() {
	var b emu.Buttons
	for _, k := range keymap {
		pressed := ebiten.IsKeyPressed(k.key)
		switch k.button {
		case "A":
			b.A = pressed
		case "B":
			b.B = pressed
		case "Start":
			b.Start = pressed
		case "Select":
			b.Select = pressed
		case "Up":
			b.Up = pressed
		case "Down":
			b.Down = pressed
		case "Left":
			b.Left = pressed
		case "Right":
			b.Right = pressed
		}
	}
	a.m.SetButtons(b)

	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		a.saveState()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		a.loadState()
	}
}

func (a *App) saveState() {
	blob, err := a.m.SaveState()
	if err != nil {
		a.toast("save failed: " + err.Error())
		return
	}
	if err := os.WriteFile(a.cfg.StatePath, blob, 0o644); err != nil {
		a.toast("save failed: " + err.Error())
		return
	}
	a.toast("state saved")
}

func (a *App) loadState() {
	blob, err := os.ReadFile(a.cfg.StatePath)
	if err != nil {
		a.toast("no save state")
		return
	}
	if err := a.m.LoadState(blob); err != nil {
		a.toast("load failed: " + err.Error())
		return
	}
	a.toast("state loaded")
}

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastTTL = 90
}

// Update implements ebiten.Game.
func (a *App) Update() error {
	a.pollInput()
	a.m.StepFrame()
	if a.toastTTL > 0 {
		a.toastTTL--
	}
	return nil
}

// Draw implements ebiten.Game.
func (a *App) Draw(screen *ebiten.Image) {
	a.tex.WritePixels(a.m.Framebuffer())
	op := &ebiten.DrawImageOptions{}
	scale := float64(a.cfg.Scale)
	op.GeoM.Scale(scale, scale)
	screen.DrawImage(a.tex, op)
	if a.toastTTL > 0 {
		ebitenutil.DebugPrint(screen, a.toastMsg)
	}
}

// Layout implements ebiten.Game.
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW * a.cfg.Scale, screenH * a.cfg.Scale
}
