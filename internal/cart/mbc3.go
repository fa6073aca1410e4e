package cart

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nkondo/pocketgb/internal/errs"
)

// nowUnix is overridable in tests so RTC advancement doesn't depend on
// wall-clock time during a test run.
var nowUnix = func() int64 { return time.Now().Unix() }

// MBC3 implements ROM banking (7 bits), RAM banking (0-3), and a real-time
// clock register bank (0x08-0x0C) selected via the same 0x4000-0x5FFF
// window, latched by a 0-then-1 write to 0x6000-0x7FFF. The RTC free-runs
// against wall-clock time between accesses, the way the real MBC3 chip
// free-runs against its own crystal regardless of whether the console is on.
//
// 0000-1FFF: RAM and timer enable (0x0A in the low nibble)
// 2000-3FFF: ROM bank, 7 bits (0 remaps to 1)
// 4000-5FFF: RAM bank (00-03) or RTC register select (08-0C)
// 6000-7FFF: latch clock data (writes 0 then 1)
// A000-BFFF: external RAM, or the latched RTC register if one is selected
type MBC3 struct {
	rom []byte
	ram []byte

	ramTimerEnabled bool
	romBank         byte // 7 bits (1..127)
	bankSelect      byte // RAM bank (0-3) or RTC register index (8-0x0C)

	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9 bits
	rtcHalt, rtcCarry       bool
	lastRTCWallSec          int64

	latchSec, latchMin, latchHour byte
	latchDay                      uint16
	latchHalt, latchCarry         bool
	latchSeen                     byte
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom, romBank: 1, lastRTCWallSec: nowUnix()}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	m.advanceRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if reg, ok := m.rtcRegisterSelected(); ok {
			return m.readLatched(reg)
		}
		if !m.ramTimerEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := int(m.bankSelect&0x03)*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.advanceRTC()
	switch {
	case addr < 0x2000:
		m.ramTimerEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.bankSelect = value
	case addr < 0x8000:
		if m.latchSeen == 0x00 && value == 0x01 {
			m.latchSec, m.latchMin, m.latchHour = m.rtcSec, m.rtcMin, m.rtcHour
			m.latchDay, m.latchHalt, m.latchCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
		}
		m.latchSeen = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if reg, ok := m.rtcRegisterSelected(); ok {
			m.writeLive(reg, value)
			return
		}
		if !m.ramTimerEnabled || len(m.ram) == 0 {
			return
		}
		off := int(m.bankSelect&0x03)*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) rtcRegisterSelected() (byte, bool) {
	if m.bankSelect >= 0x08 && m.bankSelect <= 0x0C {
		return m.bankSelect, true
	}
	return 0, false
}

func (m *MBC3) readLatched(reg byte) byte {
	switch reg {
	case 0x08:
		return m.latchSec
	case 0x09:
		return m.latchMin
	case 0x0A:
		return m.latchHour
	case 0x0B:
		return byte(m.latchDay & 0xFF)
	case 0x0C:
		v := byte((m.latchDay >> 8) & 0x01)
		if m.latchHalt {
			v |= 0x40
		}
		if m.latchCarry {
			v |= 0x80
		}
		return v
	}
	return 0xFF
}

func (m *MBC3) writeLive(reg, v byte) {
	switch reg {
	case 0x08:
		m.rtcSec = v
	case 0x09:
		m.rtcMin = v
	case 0x0A:
		m.rtcHour = v
	case 0x0B:
		m.rtcDay = (m.rtcDay & 0x100) | uint16(v)
	case 0x0C:
		m.rtcDay = (m.rtcDay & 0xFF) | (uint16(v&0x01) << 8)
		m.rtcHalt = v&0x40 != 0
		m.rtcCarry = v&0x80 != 0
	}
}

// advanceRTC folds elapsed wall-clock seconds into the live RTC registers.
// A halted clock (bit 6 of the day-high register) does not advance.
func (m *MBC3) advanceRTC() {
	now := nowUnix()
	delta := now - m.lastRTCWallSec
	m.lastRTCWallSec = now
	if delta <= 0 || m.rtcHalt {
		return
	}
	sec := int(m.rtcSec) + int(delta)
	min := int(m.rtcMin) + sec/60
	sec %= 60
	hour := int(m.rtcHour) + min/60
	min %= 60
	day := int(m.rtcDay) + hour/24
	hour %= 24
	if day >= 512 {
		day %= 512
		m.rtcCarry = true
	}
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = byte(sec), byte(min), byte(hour), uint16(day)
}

func (m *MBC3) SaveRAM() []byte {
	out := make([]byte, len(m.ram)+16)
	copy(out, m.ram)
	tail := out[len(m.ram):]
	tail[0], tail[1], tail[2] = m.rtcSec, m.rtcMin, m.rtcHour
	binary.LittleEndian.PutUint16(tail[3:5], m.rtcDay)
	var flags byte
	if m.rtcHalt {
		flags |= 0x01
	}
	if m.rtcCarry {
		flags |= 0x02
	}
	tail[5] = flags
	binary.LittleEndian.PutUint64(tail[6:14], uint64(m.lastRTCWallSec))
	return out
}

func (m *MBC3) LoadRAM(data []byte) error {
	if len(data) < 16 {
		if len(data) > len(m.ram) {
			return fmt.Errorf("%w: got %d bytes, cartridge has %d", errs.ErrInvalidBatteryRamSize, len(data), len(m.ram))
		}
		copy(m.ram, data)
		return nil
	}
	ramLen := len(data) - 16
	if ramLen > len(m.ram) {
		return fmt.Errorf("%w: got %d bytes, cartridge has %d", errs.ErrInvalidBatteryRamSize, ramLen, len(m.ram))
	}
	copy(m.ram, data[:ramLen])
	tail := data[ramLen:]
	m.rtcSec, m.rtcMin, m.rtcHour = tail[0], tail[1], tail[2]
	m.rtcDay = binary.LittleEndian.Uint16(tail[3:5])
	m.rtcHalt = tail[5]&0x01 != 0
	m.rtcCarry = tail[5]&0x02 != 0
	m.lastRTCWallSec = int64(binary.LittleEndian.Uint64(tail[6:14]))
	return nil
}

type mbc3State struct {
	RAM             []byte `json:"ram,omitempty"`
	RamTimerEnabled bool   `json:"ram_timer_enabled"`
	RomBank         byte   `json:"rom_bank"`
	BankSelect      byte   `json:"bank_select"`
	RTCSec          byte   `json:"rtc_sec"`
	RTCMin          byte   `json:"rtc_min"`
	RTCHour         byte   `json:"rtc_hour"`
	RTCDay          uint16 `json:"rtc_day"`
	RTCHalt         bool   `json:"rtc_halt"`
	RTCCarry        bool   `json:"rtc_carry"`
	LatchSec        byte   `json:"latch_sec"`
	LatchMin        byte   `json:"latch_min"`
	LatchHour       byte   `json:"latch_hour"`
	LatchDay        uint16 `json:"latch_day"`
	LatchHalt       bool   `json:"latch_halt"`
	LatchCarry      bool   `json:"latch_carry"`
	LatchSeen       byte   `json:"latch_state"`
	LastRTCWallSec  int64  `json:"last_rtc_wall_sec"`
}

func (m *MBC3) SaveState() []byte {
	s := mbc3State{
		RAM: m.ram, RamTimerEnabled: m.ramTimerEnabled, RomBank: m.romBank, BankSelect: m.bankSelect,
		RTCSec: m.rtcSec, RTCMin: m.rtcMin, RTCHour: m.rtcHour, RTCDay: m.rtcDay, RTCHalt: m.rtcHalt, RTCCarry: m.rtcCarry,
		LatchSec: m.latchSec, LatchMin: m.latchMin, LatchHour: m.latchHour, LatchDay: m.latchDay,
		LatchHalt: m.latchHalt, LatchCarry: m.latchCarry, LatchSeen: m.latchSeen, LastRTCWallSec: m.lastRTCWallSec,
	}
	b, _ := json.Marshal(s)
	return b
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := json.Unmarshal(data, &s); err != nil {
		return
	}
	if len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.ramTimerEnabled, m.romBank, m.bankSelect = s.RamTimerEnabled, s.RomBank, s.BankSelect
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay, m.rtcHalt, m.rtcCarry = s.RTCSec, s.RTCMin, s.RTCHour, s.RTCDay, s.RTCHalt, s.RTCCarry
	m.latchSec, m.latchMin, m.latchHour, m.latchDay = s.LatchSec, s.LatchMin, s.LatchHour, s.LatchDay
	m.latchHalt, m.latchCarry, m.latchSeen, m.lastRTCWallSec = s.LatchHalt, s.LatchCarry, s.LatchSeen, s.LastRTCWallSec
}
