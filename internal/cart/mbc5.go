package cart

import (
	"encoding/json"
	"fmt"

	"github.com/nkondo/pocketgb/internal/errs"
)

// MBC5 supports up to 8MB ROM (9-bit bank number) and 128KB RAM. Unlike
// MBC1 and MBC3, bank 0 of the switchable window is directly selectable —
// writing 0 to the bank-number registers is not remapped to 1.
type MBC5 struct {
	rom []byte
	ram []byte

	romBank    uint16 // 9 bits (0..511)
	ramBank    byte   // 0..15
	ramEnabled bool
}

func NewMBC5(rom []byte, ramSize int) *MBC5 {
	m := &MBC5{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		off := int(m.romBank)*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := int(m.ramBank&0x0F)*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x3000:
		// Low 8 bits of the ROM bank number. Bank 0 is directly selectable.
		m.romBank = (m.romBank & 0x100) | uint16(value)
	case addr < 0x4000:
		if value&0x01 != 0 {
			m.romBank = (m.romBank & 0x0FF) | 0x100
		} else {
			m.romBank &^= 0x100
		}
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := int(m.ramBank&0x0F)*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC5) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC5) LoadRAM(data []byte) error {
	if len(data) > len(m.ram) {
		return fmt.Errorf("%w: got %d bytes, cartridge has %d", errs.ErrInvalidBatteryRamSize, len(data), len(m.ram))
	}
	copy(m.ram, data)
	return nil
}

type mbc5State struct {
	RAM        []byte `json:"ram,omitempty"`
	RomBank    uint16 `json:"rom_bank"`
	RamBank    byte   `json:"ram_bank"`
	RamEnabled bool   `json:"ram_enabled"`
}

func (m *MBC5) SaveState() []byte {
	s := mbc5State{m.ram, m.romBank, m.ramBank, m.ramEnabled}
	b, _ := json.Marshal(s)
	return b
}

func (m *MBC5) LoadState(data []byte) {
	var s mbc5State
	if err := json.Unmarshal(data, &s); err != nil {
		return
	}
	if len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
}
