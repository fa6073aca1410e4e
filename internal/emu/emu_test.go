package emu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMachineStepsWithoutCartridge(t *testing.T) {
	m := New(Config{})
	m.StepFrame()
	fb := m.Framebuffer()
	if len(fb) != 160*144*4 {
		t.Fatalf("framebuffer size got %d want %d", len(fb), 160*144*4)
	}
}

func TestLoadCartridgeResetsToPostBootState(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x00 // NOP at entry point
	m := New(Config{})
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m.cpu.PC != 0x0100 {
		t.Fatalf("PC after LoadCartridge got %#04x want 0x0100", m.cpu.PC)
	}
}

func TestSetButtonsReachesJoypad(t *testing.T) {
	m := New(Config{})
	m.SetButton("A", true)
	m.bus.Write(0xFF00, 0x20) // select D-pad only (P15=1 unselects buttons)
	if v := m.bus.Read(0xFF00); v&0x01 == 0 {
		t.Fatalf("A pressed with buttons unselected should leave bit0 set, got %#02x", v)
	}
	m.bus.Write(0xFF00, 0x10) // select buttons only (P15=0)
	if v := m.bus.Read(0xFF00); v&0x01 != 0 {
		t.Fatalf("A pressed with buttons selected should clear bit0, got %#02x", v)
	}
}

// Save-state round trip touches every subsystem's snapshot struct at once,
// so assertions use testify/require for the multi-field comparison instead
// of a long chain of t.Fatalf checks.
func TestSaveStateRoundTrip(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := New(Config{})
	require.NoError(t, m.LoadCartridge(rom, nil))
	m.bus.Write(0xC000, 0x5A)
	m.bus.Write(0xFF47, 0xE4) // BGP, to confirm PPU state survives too
	m.cpu.A = 0x7B
	m.cpu.SetPC(0x1234)
	blob, err := m.SaveState()
	require.NoError(t, err)

	m2 := New(Config{})
	require.NoError(t, m2.LoadCartridge(rom, nil))
	require.NoError(t, m2.LoadState(blob))
	require.Equal(t, byte(0x5A), m2.bus.Read(0xC000))
	require.Equal(t, byte(0xE4), m2.bus.PPU().BGP())
	require.Equal(t, byte(0x7B), m2.cpu.A)
	require.Equal(t, uint16(0x1234), m2.cpu.PC)
}

// TestSaveStateRejectsMismatchedCartridge confirms the cartridgeHash check:
// a snapshot taken against one ROM must not silently apply to another.
func TestSaveStateRejectsMismatchedCartridge(t *testing.T) {
	romA := make([]byte, 0x8000)
	romB := make([]byte, 0x8000)
	romB[0x0134] = 'B' // perturb the title so the two ROMs hash differently

	m := New(Config{})
	require.NoError(t, m.LoadCartridge(romA, nil))
	blob, err := m.SaveState()
	require.NoError(t, err)

	m2 := New(Config{})
	require.NoError(t, m2.LoadCartridge(romB, nil))
	err = m2.LoadState(blob)
	require.Error(t, err)
}

func TestBatteryRoundTripNoBattery(t *testing.T) {
	m := New(Config{})
	if err := m.LoadBattery([]byte{1, 2, 3}); err == nil {
		t.Fatalf("LoadBattery on a ROM-only cartridge should report an error")
	}
	if _, ok := m.SaveBattery(); ok {
		t.Fatalf("SaveBattery on a ROM-only cartridge should report false")
	}
}
