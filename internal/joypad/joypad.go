// Package joypad models the JOYP (P1) register and the button-matrix
// interrupt that fires on any selected-line 1->0 transition.
package joypad

import "github.com/nkondo/pocketgb/internal/interrupt"

const (
	Right = 1 << 0
	Left  = 1 << 1
	Up    = 1 << 2
	Down  = 1 << 3
	A     = 1 << 4
	B     = 1 << 5
	Select = 1 << 6
	Start  = 1 << 7
)

type Joypad struct {
	irq *interrupt.Controller

	selectBits byte // bits 5-4 of P1, as last written
	pressed    byte // bitmask of currently pressed buttons (1=pressed)
	lastLower4 byte // last computed active-low lower nibble, for edge detection
}

func New(irq *interrupt.Controller) *Joypad {
	return &Joypad{irq: irq, lastLower4: 0x0F}
}

// ReadP1 returns the FF00 register value for the CPU.
func (j *Joypad) ReadP1() byte {
	return 0xC0 | (j.selectBits & 0x30) | j.lower4()
}

// WriteP1 updates the select lines (bits 5-4); the input lines are read-only.
func (j *Joypad) WriteP1(v byte) {
	j.selectBits = v & 0x30
	j.updateIRQ()
}

// SetButtons replaces the full pressed-button mask (bits per the exported
// button constants; a set bit means pressed).
func (j *Joypad) SetButtons(mask byte) {
	j.pressed = mask
	j.updateIRQ()
}

func (j *Joypad) lower4() byte {
	lo := byte(0x0F)
	if j.selectBits&0x10 == 0 { // P14 low selects D-pad
		if j.pressed&Right != 0 {
			lo &^= 0x01
		}
		if j.pressed&Left != 0 {
			lo &^= 0x02
		}
		if j.pressed&Up != 0 {
			lo &^= 0x04
		}
		if j.pressed&Down != 0 {
			lo &^= 0x08
		}
	}
	if j.selectBits&0x20 == 0 { // P15 low selects buttons
		if j.pressed&A != 0 {
			lo &^= 0x01
		}
		if j.pressed&B != 0 {
			lo &^= 0x02
		}
		if j.pressed&Select != 0 {
			lo &^= 0x04
		}
		if j.pressed&Start != 0 {
			lo &^= 0x08
		}
	}
	return lo
}

func (j *Joypad) updateIRQ() {
	newLower := j.lower4()
	if j.lastLower4&^newLower != 0 {
		j.irq.Request(interrupt.Joypad)
	}
	j.lastLower4 = newLower
}

// State is the serializable snapshot of the joypad.
type State struct {
	SelectBits byte `json:"select_bits"`
	Pressed    byte `json:"pressed"`
	LastLower4 byte `json:"last_lower4"`
}

func (j *Joypad) Snapshot() State { return State{j.selectBits, j.pressed, j.lastLower4} }
func (j *Joypad) Restore(s State) {
	j.selectBits, j.pressed, j.lastLower4 = s.SelectBits, s.Pressed, s.LastLower4
}
