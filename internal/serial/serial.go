// Package serial models the DMG serial port (SB/SC) as a fixed-duration
// local transfer: no link-cable peer is modeled, but a transfer still takes
// real cycles to complete rather than resolving instantly on the SC write.
package serial

import "github.com/nkondo/pocketgb/internal/interrupt"

// cyclesPerBit is the internal-clock bit period for the default (non-fast)
// serial clock; a full 8-bit transfer takes 8x that many T-cycles.
const cyclesPerBit = 512
const transferCycles = cyclesPerBit * 8

type Port struct {
	irq *interrupt.Controller

	sb byte
	sc byte // bit7 transfer-in-progress, bit0 clock source

	remaining int // T-cycles left in an in-flight transfer; 0 = idle
	w         Writer
}

// Writer receives completed serial bytes; typically a test-ROM harness sink.
type Writer interface {
	Write(p []byte) (int, error)
}

func New(irq *interrupt.Controller) *Port { return &Port{irq: irq} }

func (p *Port) SetWriter(w Writer) { p.w = w }

func (p *Port) ReadSB() byte { return p.sb }
func (p *Port) ReadSC() byte { return 0x7E | (p.sc & 0x81) }

func (p *Port) WriteSB(v byte) { p.sb = v }

// WriteSC arms a transfer if the start bit is set; completion (and the
// Serial IRQ) happens asynchronously once Tick drains transferCycles.
func (p *Port) WriteSC(v byte) {
	p.sc = v & 0x81
	if p.sc&0x80 != 0 {
		p.remaining = transferCycles
	}
}

// Tick advances any in-flight transfer by the given number of T-cycles.
func (p *Port) Tick(cycles int) {
	if p.remaining <= 0 {
		return
	}
	p.remaining -= cycles
	if p.remaining <= 0 {
		p.remaining = 0
		if p.w != nil {
			_, _ = p.w.Write([]byte{p.sb})
		}
		p.sc &^= 0x80
		p.irq.Request(interrupt.Serial)
	}
}

// State is the serializable snapshot of the serial port.
type State struct {
	SB        byte `json:"sb"`
	SC        byte `json:"sc"`
	Remaining int  `json:"remaining"`
}

func (p *Port) Snapshot() State { return State{p.sb, p.sc, p.remaining} }
func (p *Port) Restore(s State) { p.sb, p.sc, p.remaining = s.SB, s.SC, s.Remaining }
