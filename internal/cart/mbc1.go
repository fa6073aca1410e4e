package cart

import (
	"encoding/json"
	"fmt"

	"github.com/nkondo/pocketgb/internal/errs"
)

// MBC1 implements ROM banking up to 2MB and RAM banking up to 32KB.
// Bank 0 of the switchable window is never directly selectable: a write of
// 0 to the low-5-bits register remaps to bank 1.
type MBC1 struct {
	rom []byte
	ram []byte

	romBankLow5       byte // lower 5 bits of the ROM bank number (0 remaps to 1)
	ramBankOrRomHigh2 byte // RAM bank in mode 1, ROM bank bits 5-6 in mode 0
	ramEnabled        bool
	modeSelect        byte // 0: ROM banking mode, 1: RAM banking mode
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom, romBankLow5: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if m.modeSelect == 0 {
			if int(addr) < len(m.rom) {
				return m.rom[addr]
			}
			return 0xFF
		}
		bank := int((m.ramBankOrRomHigh2 & 0x03) << 5)
		off := bank*0x4000 + int(addr)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.effectiveROMBank())
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		m.romBankLow5 = value & 0x1F
		if m.romBankLow5 == 0 {
			m.romBankLow5 = 1
		}
	case addr < 0x6000:
		m.ramBankOrRomHigh2 = value & 0x03
	case addr < 0x8000:
		m.modeSelect = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramOffset(addr)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC1) ramOffset(addr uint16) int {
	bank := 0
	if m.modeSelect == 1 {
		bank = int(m.ramBankOrRomHigh2 & 0x03)
	}
	return bank*0x2000 + int(addr-0xA000)
}

func (m *MBC1) effectiveROMBank() byte {
	high := m.ramBankOrRomHigh2 & 0x03
	return m.romBankLow5 | (high << 5)
}

func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAM(data []byte) error {
	if len(data) > len(m.ram) {
		return fmt.Errorf("%w: got %d bytes, cartridge has %d", errs.ErrInvalidBatteryRamSize, len(data), len(m.ram))
	}
	copy(m.ram, data)
	return nil
}

type mbc1State struct {
	RAM               []byte `json:"ram,omitempty"`
	RomBankLow5       byte   `json:"rom_bank_low5"`
	RamBankOrRomHigh2 byte   `json:"ram_bank_or_rom_high2"`
	RamEnabled        bool   `json:"ram_enabled"`
	ModeSelect        byte   `json:"mode_select"`
}

func (m *MBC1) SaveState() []byte {
	s := mbc1State{m.ram, m.romBankLow5, m.ramBankOrRomHigh2, m.ramEnabled, m.modeSelect}
	b, _ := json.Marshal(s)
	return b
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if err := json.Unmarshal(data, &s); err != nil {
		return
	}
	if len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBankLow5, m.ramBankOrRomHigh2, m.ramEnabled, m.modeSelect =
		s.RomBankLow5, s.RamBankOrRomHigh2, s.RamEnabled, s.ModeSelect
}
