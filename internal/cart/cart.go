// Package cart implements the cartridge ROM/RAM address space and the
// memory bank controller variants (none, MBC1, MBC3+RTC, MBC5).
package cart

import (
	"fmt"

	"github.com/nkondo/pocketgb/internal/errs"
)

// Cartridge is the interface the MMU needs for ROM/RAM banking.
// Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize banking registers, RTC state, and external RAM.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by cartridges whose external RAM should be
// persisted to a host-side .sav sidecar independent of full save states.
type BatteryBacked interface {
	SaveRAM() []byte
	// LoadRAM restores external RAM from data, returning
	// errs.ErrInvalidBatteryRamSize if data is larger than the cartridge's
	// declared RAM.
	LoadRAM(data []byte) error
}

// NewCartridge picks an implementation based on the ROM header's cart-type
// byte, returning a typed failure (errs.ErrRomTooShort,
// errs.ErrUnsupportedCartridgeType) instead of silently substituting
// ROM-only behavior.
func NewCartridge(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRomTooShort, err)
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03: // MBC1 (+RAM, +RAM+battery)
		return NewMBC1(rom, h.RAMSizeBytes), nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13: // MBC3 (+RAM/+battery/+timer)
		return NewMBC3(rom, h.RAMSizeBytes), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E: // MBC5 (+RAM/+battery/+rumble)
		return NewMBC5(rom, h.RAMSizeBytes), nil
	default:
		return nil, fmt.Errorf("%w: type byte %#02x", errs.ErrUnsupportedCartridgeType, h.CartType)
	}
}
