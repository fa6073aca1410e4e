package joypad

import (
	"testing"

	"github.com/nkondo/pocketgb/internal/interrupt"
)

func TestDPadSelection(t *testing.T) {
	irq := interrupt.New()
	j := New(irq)
	j.SetButtons(Right | Up)
	j.WriteP1(0x20) // select D-pad (P14=0), deselect buttons
	got := j.ReadP1()
	if got&0x01 != 0 {
		t.Fatalf("Right should read as pressed (bit clear), got %#02x", got)
	}
	if got&0x04 != 0 {
		t.Fatalf("Up should read as pressed (bit clear), got %#02x", got)
	}
	if got&0x02 == 0 {
		t.Fatalf("Left should read as not pressed, got %#02x", got)
	}
}

func TestEdgeTriggeredIRQ(t *testing.T) {
	irq := interrupt.New()
	irq.IE = 0xFF
	j := New(irq)
	j.WriteP1(0x20) // select D-pad
	if irq.Pending() {
		t.Fatalf("no buttons pressed yet, should not be pending")
	}
	j.SetButtons(Down)
	if !irq.Pending() {
		t.Fatalf("pressing a selected button should raise the joypad IRQ")
	}
}
