package cart

import "testing"

func TestMBC5_BankZeroDirectlySelectable(t *testing.T) {
	rom := make([]byte, 512*1024)
	for bank := 0; bank < 4; bank++ {
		rom[bank*0x4000] = byte(0xA0 + bank)
	}
	m := NewMBC5(rom, 0)

	m.Write(0x2000, 0x00) // low byte of bank number
	if got := m.Read(0x4000); got != 0xA0 {
		t.Fatalf("MBC5 must allow bank 0 in the switchable window, got %#02x want %#02x", got, 0xA0)
	}

	m.Write(0x2000, 0x02)
	if got := m.Read(0x4000); got != 0xA2 {
		t.Fatalf("bank 2 read got %#02x want %#02x", got, 0xA2)
	}
}

func TestMBC5_RAMBanking(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC5(rom, 4*0x2000)
	m.Write(0x0000, 0x0A)
	m.Write(0x4000, 0x03)
	m.Write(0xA000, 0x55)
	if got := m.Read(0xA000); got != 0x55 {
		t.Fatalf("RAM bank 3 RW failed: got %#02x", got)
	}
}
