package ppu

import (
	"encoding/json"

	"github.com/nkondo/pocketgb/internal/interrupt"
)

const (
	ScreenWidth   = 160
	ScreenHeight  = 144
	dotsPerLine   = 456
	linesPerFrame = 154
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT).
// Kept for tests that construct a PPU without a shared Controller.
type InterruptRequester func(bit int)

// LineRegs is a snapshot of the registers affecting rendering, captured when
// the PPU enters mode 3 (Drawing) for a given scanline.
type LineRegs struct {
	SCX, SCY        byte
	WX, WY          byte
	LCDC            byte
	BGP, OBP0, OBP1 byte
	WinLine         byte
	WindowActive    bool
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, timing, and scanline rendering.
type PPU struct {
	vram [0x2000]byte // 0x8000–0x9FFF
	oam  [0xA0]byte   // 0xFE00–0xFE9F

	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	windowStarted     bool
	windowLineCounter int
	lineRegs          [ScreenHeight]LineRegs

	framebuf  [ScreenWidth * ScreenHeight * 4]byte
	frameDone bool

	irq *interrupt.Controller
	req InterruptRequester
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// SetInterruptController routes VBlank/STAT requests through the shared
// controller instead of the legacy bit callback, once the MMU wires it up.
func (p *PPU) SetInterruptController(irq *interrupt.Controller) { p.irq = irq }

func (p *PPU) requestVBlank() {
	if p.irq != nil {
		p.irq.Request(interrupt.VBlank)
		return
	}
	if p.req != nil {
		p.req(0)
	}
}

func (p *PPU) requestSTAT() {
	if p.irq != nil {
		p.irq.Request(interrupt.LCDStat)
		return
	}
	if p.req != nil {
		p.req(1)
	}
}

// Read implements VRAMReader for the scanline/fetcher/sprite helpers.
func (p *PPU) Read(addr uint16) byte { return p.vram[addr-0x8000] }

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.stat&0x03 == 3 {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.stat&0x03 == 3 {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if p.lcdc&0x80 == 0 && prev&0x80 != 0 {
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
		} else if p.lcdc&0x80 != 0 && prev&0x80 == 0 {
			p.ly = 0
			p.dot = 0
			p.windowStarted = false
			p.windowLineCounter = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if p.lcdc&0x80 != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// OAMWriteDMA lets the MMU's DMA engine write OAM directly, bypassing the
// CPU-facing mode gating (DMA is allowed to write OAM during any mode).
func (p *PPU) OAMWriteDMA(index int, value byte) {
	if index >= 0 && index < len(p.oam) {
		p.oam[index] = value
	}
}

// Tick advances PPU state by the given number of dots (T-cycles), rendering
// each scanline into the framebuffer as it leaves mode 3.
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if p.lcdc&0x80 == 0 {
			continue
		}
		p.dot++

		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		prevMode := p.stat & 0x03
		p.setMode(mode)
		if mode == 3 && prevMode != 3 && p.ly < ScreenHeight {
			p.captureLineRegs()
		}
		if mode == 0 && prevMode == 3 && p.ly < ScreenHeight {
			p.renderScanline(int(p.ly))
		}

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				p.requestVBlank()
				if p.stat&(1<<4) != 0 {
					p.requestSTAT()
				}
				p.frameDone = true
			} else if p.ly > 153 {
				p.ly = 0
				p.windowStarted = false
				p.windowLineCounter = 0
			}
			p.updateLYC()
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0: // HBlank
		if p.stat&(1<<3) != 0 {
			p.requestSTAT()
		}
	case 2: // OAM scan
		if p.stat&(1<<5) != 0 {
			p.requestSTAT()
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if p.stat&(1<<6) != 0 {
			p.requestSTAT()
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// captureLineRegs snapshots the registers that matter to the renderer and
// advances the internal window-line counter, which only ticks on lines the
// window actually draws on.
func (p *PPU) captureLineRegs() {
	windowEnabled := p.lcdc&0x20 != 0
	active := windowEnabled && p.ly >= p.wy && p.wx < 166
	if active {
		if !p.windowStarted {
			p.windowStarted = true
		} else {
			p.windowLineCounter++
		}
	}
	p.lineRegs[p.ly] = LineRegs{
		SCX: p.scx, SCY: p.scy, WX: p.wx, WY: p.wy,
		LCDC: p.lcdc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WinLine: byte(p.windowLineCounter), WindowActive: active,
	}
}

// LineRegs returns the register snapshot captured for scanline ly.
func (p *PPU) LineRegs(ly int) LineRegs {
	if ly < 0 || ly >= ScreenHeight {
		return LineRegs{}
	}
	return p.lineRegs[ly]
}

// Framebuffer returns the RGBA pixels of the most recently rendered frame.
func (p *PPU) Framebuffer() []byte { return p.framebuf[:] }

// ConsumeFrameReady reports and clears whether a frame completed (entered
// VBlank) since the last call.
func (p *PPU) ConsumeFrameReady() bool {
	v := p.frameDone
	p.frameDone = false
	return v
}

// Expose palettes and scroll for renderer convenience.
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

// VRAM returns a copy of the raw 0x8000-0x9FFF tile data/map memory, for
// callers (the save-state envelope) that need it outside this package's own
// SaveState blob.
func (p *PPU) VRAM() []byte {
	out := make([]byte, len(p.vram))
	copy(out, p.vram[:])
	return out
}

// SetVRAM overwrites VRAM from a previously captured VRAM() slice.
func (p *PPU) SetVRAM(data []byte) {
	if len(data) != len(p.vram) {
		return
	}
	copy(p.vram[:], data)
}

// OAM returns a copy of the raw 0xFE00-0xFE9F sprite attribute memory.
func (p *PPU) OAM() []byte {
	out := make([]byte, len(p.oam))
	copy(out, p.oam[:])
	return out
}

// SetOAM overwrites OAM from a previously captured OAM() slice.
func (p *PPU) SetOAM(data []byte) {
	if len(data) != len(p.oam) {
		return
	}
	copy(p.oam[:], data)
}

type lineRegsState struct {
	SCX, SCY, WX, WY       byte
	LCDC, BGP, OBP0, OBP1  byte
	WinLine                byte
	WindowActive           bool
}

type ppuState struct {
	LCDC byte `json:"lcdc"`
	STAT byte `json:"stat"`
	SCY  byte `json:"scy"`
	SCX  byte `json:"scx"`
	LY   byte `json:"ly"`
	LYC  byte `json:"lyc"`
	BGP  byte `json:"bgp"`
	OBP0 byte `json:"obp0"`
	OBP1 byte `json:"obp1"`
	WY   byte `json:"wy"`
	WX   byte `json:"wx"`

	Dot               int  `json:"dot"`
	WindowStarted     bool `json:"windowStarted"`
	WindowLineCounter int  `json:"windowLineCounter"`
	FrameDone         bool `json:"frameDone"`

	LineRegs [ScreenHeight]lineRegsState `json:"lineRegs"`
}

// SaveState captures PPU registers and timing state. Raw VRAM/OAM contents
// are exposed separately via VRAM/OAM for the enclosing snapshot envelope.
func (p *PPU) SaveState() []byte {
	s := ppuState{
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx,
		LY: p.ly, LYC: p.lyc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx,
		Dot: p.dot, WindowStarted: p.windowStarted, WindowLineCounter: p.windowLineCounter,
		FrameDone: p.frameDone,
	}
	for i, lr := range p.lineRegs {
		s.LineRegs[i] = lineRegsState{
			SCX: lr.SCX, SCY: lr.SCY, WX: lr.WX, WY: lr.WY,
			LCDC: lr.LCDC, BGP: lr.BGP, OBP0: lr.OBP0, OBP1: lr.OBP1,
			WinLine: lr.WinLine, WindowActive: lr.WindowActive,
		}
	}
	b, _ := json.Marshal(s)
	return b
}

// LoadState restores a snapshot previously produced by SaveState.
func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := json.Unmarshal(data, &s); err != nil {
		return
	}
	p.lcdc, p.stat, p.scy, p.scx = s.LCDC, s.STAT, s.SCY, s.SCX
	p.ly, p.lyc, p.bgp, p.obp0, p.obp1 = s.LY, s.LYC, s.BGP, s.OBP0, s.OBP1
	p.wy, p.wx = s.WY, s.WX
	p.dot, p.windowStarted, p.windowLineCounter = s.Dot, s.WindowStarted, s.WindowLineCounter
	p.frameDone = s.FrameDone
	for i, lr := range s.LineRegs {
		p.lineRegs[i] = LineRegs{
			SCX: lr.SCX, SCY: lr.SCY, WX: lr.WX, WY: lr.WY,
			LCDC: lr.LCDC, BGP: lr.BGP, OBP0: lr.OBP0, OBP1: lr.OBP1,
			WinLine: lr.WinLine, WindowActive: lr.WindowActive,
		}
	}
}
