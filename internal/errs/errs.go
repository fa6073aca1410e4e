// Package errs defines the typed failures the core signals to its host
// instead of panicking: a small set of sentinel errors plus a couple of
// wrapped variants that carry the offending value via %w/errors.Is.
package errs

import "errors"

var (
	// ErrRomTooShort is returned when a ROM is shorter than the header it
	// must contain (0x0150 bytes).
	ErrRomTooShort = errors.New("cart: rom too short to contain a header")

	// ErrUnsupportedCartridgeType is returned when the header's cart-type
	// byte (0x0147) does not match any supported MBC variant.
	ErrUnsupportedCartridgeType = errors.New("cart: unsupported cartridge type")

	// ErrInvalidBatteryRamSize is returned when a battery RAM snapshot is
	// larger than the cartridge's declared external RAM.
	ErrInvalidBatteryRamSize = errors.New("cart: battery ram snapshot too large for cartridge")

	// ErrSaveStateMagicInvalid is returned when a save-state blob's magic
	// byte doesn't match.
	ErrSaveStateMagicInvalid = errors.New("savestate: bad magic byte")

	// ErrSaveStateVersionUnsupported is returned for an unrecognized
	// save-state wire version.
	ErrSaveStateVersionUnsupported = errors.New("savestate: unsupported version")

	// ErrSaveStateSizeOutOfRange is returned when the declared uncompressed
	// payload size falls outside [1, 10 MiB].
	ErrSaveStateSizeOutOfRange = errors.New("savestate: uncompressed size out of range")

	// ErrSaveStateChecksumMismatch is returned when the checksum stored in
	// the header doesn't match the inflated payload.
	ErrSaveStateChecksumMismatch = errors.New("savestate: checksum mismatch")

	// ErrSaveStateMalformedJSON is returned when the inflated payload isn't
	// valid JSON (or doesn't match the expected envelope shape).
	ErrSaveStateMalformedJSON = errors.New("savestate: malformed json payload")

	// ErrSaveStateIncompatibleWithRom is returned when a save state's
	// cartridgeHash doesn't match the ROM currently loaded.
	ErrSaveStateIncompatibleWithRom = errors.New("savestate: incompatible with currently loaded rom")
)
