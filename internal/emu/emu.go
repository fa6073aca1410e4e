// Package emu wires the CPU, MMU, and the subsystems it owns into a runnable
// machine: ROM loading, the fixed per-step advance order, and the host-facing
// framebuffer/audio/save-state surface.
package emu

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nkondo/pocketgb/internal/cart"
	"github.com/nkondo/pocketgb/internal/cpu"
	"github.com/nkondo/pocketgb/internal/errs"
	"github.com/nkondo/pocketgb/internal/joypad"
	"github.com/nkondo/pocketgb/internal/mmu"
	"github.com/nkondo/pocketgb/internal/savestate"
)

// snapshotVersion is the envelope schema version, independent of the
// savestate package's own wire-format version byte.
const snapshotVersion = 1

// cartridgeHashPrefixLen is how much of the ROM the cartridge hash covers:
// the first 32KiB bank, which is always present and fixed regardless of
// banking mode.
const cartridgeHashPrefixLen = 32 * 1024

// snapshot is the full on-disk JSON shape: cpu plus every field mmu.State
// declares, flattened in by anonymous embedding, plus envelope metadata.
type snapshot struct {
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	CartridgeTitle string    `json:"cartridgeTitle"`
	CartridgeHash  string    `json:"cartridgeHash"`

	CPU cpu.State `json:"cpu"`
	mmu.State
}

func cartridgeHash(rom []byte) string {
	n := len(rom)
	if n > cartridgeHashPrefixLen {
		n = cartridgeHashPrefixLen
	}
	sum := sha256.Sum256(rom[:n])
	return fmt.Sprintf("%x", sum[:4])
}

// Buttons mirrors the eight DMG input lines.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.A {
		m |= joypad.A
	}
	if b.B {
		m |= joypad.B
	}
	if b.Start {
		m |= joypad.Start
	}
	if b.Select {
		m |= joypad.Select
	}
	if b.Up {
		m |= joypad.Up
	}
	if b.Down {
		m |= joypad.Down
	}
	if b.Left {
		m |= joypad.Left
	}
	if b.Right {
		m |= joypad.Right
	}
	return m
}

// Machine owns one game's worth of CPU/MMU state and drives the
// CPU -> MMU.Tick (timer, PPU, serial, APU, DMA) advance order per step.
type Machine struct {
	cfg     Config
	cpu     *cpu.CPU
	bus     *mmu.MMU
	romPath string
	rom     []byte
	title   string
	buttons Buttons
}

// New creates a Machine with no cartridge loaded. Call LoadCartridge or
// LoadROMFromFile before stepping it.
func New(cfg Config) *Machine {
	m := &Machine{cfg: cfg}
	_ = m.LoadCartridge(make([]byte, 0x8000), nil)
	return m
}

// LoadCartridge replaces the running cartridge with rom, optionally
// overlaying boot with a DMG boot ROM image that intercepts 0x0000-0x00FF
// until it writes FF50. Without a boot ROM the CPU starts in the standard
// DMG post-boot register state at PC=0x0100; with one it starts powered-on
// at PC=0x0000 and leaves register initialization to the boot ROM itself.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		return fmt.Errorf("emu: load cartridge: %w", err)
	}
	m.bus = mmu.New(c)
	m.cpu = cpu.New(m.bus)
	m.rom = rom
	m.title = ""
	if h, err := cart.ParseHeader(rom); err == nil {
		m.title = h.Title
	}
	if len(boot) >= 0x100 {
		m.SetBootROM(boot)
	} else {
		m.cpu.ResetNoBoot()
		m.cpu.SetPC(0x0100)
	}
	m.bus.SetJoypadState(m.buttons.mask())
	return nil
}

// LoadROMFromFile reads rom from disk and loads it, remembering the path for
// ROMPath/battery-sidecar callers.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("emu: read rom: %w", err)
	}
	if err := m.LoadCartridge(data, nil); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path passed to LoadROMFromFile, or "" if the cartridge
// was loaded via LoadCartridge or never loaded.
func (m *Machine) ROMPath() string { return m.romPath }

// SetBootROM installs a DMG boot ROM image and starts execution at 0x0000.
func (m *Machine) SetBootROM(data []byte) {
	m.bus.SetBootROM(data)
	m.cpu.SetPC(0x0000)
}

// LoadBattery restores external RAM from a .sav sidecar. Returns an error if
// the cartridge has no battery-backed RAM, or if data doesn't fit the
// cartridge's declared RAM size (errs.ErrInvalidBatteryRamSize).
func (m *Machine) LoadBattery(data []byte) error {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return fmt.Errorf("emu: cartridge has no battery-backed ram")
	}
	return bb.LoadRAM(data)
}

// SaveBattery returns the cartridge's external RAM for persisting to a .sav
// sidecar. ok is false if the cartridge has no battery-backed RAM.
func (m *Machine) SaveBattery() (data []byte, ok bool) {
	bb, isBattery := m.bus.Cart().(cart.BatteryBacked)
	if !isBattery {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// SetSerialWriter routes bytes shifted out over the serial port to w.
func (m *Machine) SetSerialWriter(w io.Writer) { m.bus.SetSerialWriter(w) }

// SetButtons replaces the full input state.
func (m *Machine) SetButtons(b Buttons) {
	m.buttons = b
	m.bus.SetJoypadState(b.mask())
}

// SetButton toggles a single named input line ("A", "B", "Start", "Select",
// "Up", "Down", "Left", "Right"), leaving the rest untouched. Unknown names
// are ignored.
func (m *Machine) SetButton(name string, pressed bool) {
	switch name {
	case "A":
		m.buttons.A = pressed
	case "B":
		m.buttons.B = pressed
	case "Start":
		m.buttons.Start = pressed
	case "Select":
		m.buttons.Select = pressed
	case "Up":
		m.buttons.Up = pressed
	case "Down":
		m.buttons.Down = pressed
	case "Left":
		m.buttons.Left = pressed
	case "Right":
		m.buttons.Right = pressed
	default:
		return
	}
	m.bus.SetJoypadState(m.buttons.mask())
}

func (m *Machine) step() int {
	return m.cpu.Step()
}

// cyclesPerFrame bounds StepFrame when the LCD is disabled: the PPU's mode
// FSM is stalled in that state and never reports a completed frame, so a
// game that parks with LCDC bit7 clear would otherwise hang the host loop.
const cyclesPerFrame = 70224

// StepFrame advances the machine until the PPU completes one frame, leaving
// the new frame available from Framebuffer. If the LCD is off it instead
// advances exactly one frame's worth of T-cycles.
//
// CPU.Step ticks the MMU (and everything it owns) itself with the cycles it
// just spent, so this loop only needs to accumulate that count, not tick
// again.
func (m *Machine) StepFrame() {
	spent := 0
	for spent < cyclesPerFrame {
		spent += m.step()
		if m.bus.PPU().ConsumeFrameReady() {
			return
		}
	}
}

// StepFrameNoRender is StepFrame without the semantic distinction of a
// presentable frame; it exists for headless harnesses (blargg ROMs) that
// never read the framebuffer and only care about serial output.
func (m *Machine) StepFrameNoRender() { m.StepFrame() }

// Framebuffer returns the PPU's owned RGBA pixel buffer (160x144x4 bytes).
// The slice is reused across frames; copy it before the next StepFrame call
// if the caller needs to retain it.
func (m *Machine) Framebuffer() []byte { return m.bus.PPU().Framebuffer() }

// AudioSamples pulls up to max interleaved stereo frames (L,R,L,R,...) of
// already-mixed audio.
func (m *Machine) AudioSamples(max int) []int16 { return m.bus.APU().PullStereo(max) }

// APUPullStereo is an alias of AudioSamples kept for host code that names the
// subsystem explicitly.
func (m *Machine) APUPullStereo(max int) []int16 { return m.AudioSamples(max) }

// APUBufferedStereo reports how many stereo frames are currently queued.
func (m *Machine) APUBufferedStereo() int { return m.bus.APU().StereoAvailable() }

// now is overridable in tests so snapshots don't depend on wall-clock time.
var now = func() time.Time { return time.Now().UTC() }

// SaveState snapshots the entire machine into the on-disk wire format
// described by the savestate package.
func (m *Machine) SaveState() ([]byte, error) {
	snap := snapshot{
		Version:        snapshotVersion,
		CreatedAt:      now(),
		CartridgeTitle: m.title,
		CartridgeHash:  cartridgeHash(m.rom),
		CPU:            m.cpu.Snapshot(),
		State:          m.bus.Snapshot(),
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("emu: marshal snapshot: %w", err)
	}
	return savestate.Encode(payload)
}

// LoadState restores a snapshot previously produced by SaveState. It fails
// with errs.ErrSaveStateIncompatibleWithRom if the snapshot's cartridgeHash
// doesn't match the currently loaded ROM.
func (m *Machine) LoadState(data []byte) error {
	payload, err := savestate.Decode(data)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSaveStateMalformedJSON, err)
	}
	if want := cartridgeHash(m.rom); snap.CartridgeHash != want {
		return fmt.Errorf("%w: snapshot %s, loaded rom %s", errs.ErrSaveStateIncompatibleWithRom, snap.CartridgeHash, want)
	}
	m.cpu.Restore(snap.CPU)
	m.bus.Restore(snap.State)
	return nil
}
