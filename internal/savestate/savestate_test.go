package savestate

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/nkondo/pocketgb/internal/errs"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte(`{"pc":256,"a":18}`)
	enc, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc[0] != magic || enc[1] != version {
		t.Fatalf("header got %#02x %#02x want %#02x %#02x", enc[0], enc[1], magic, version)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(dec) != string(payload) {
		t.Fatalf("round trip got %q want %q", dec, payload)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	enc, _ := Encode([]byte("x"))
	enc[0] = 0x00
	if _, err := Decode(enc); err != errs.ErrSaveStateMagicInvalid {
		t.Fatalf("got err %v want ErrSaveStateMagicInvalid", err)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	enc, _ := Encode([]byte("hello world"))
	enc[len(enc)-1] ^= 0xFF
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected an error decoding corrupted data")
	}
}

func TestDecodeRejectsSizeOutOfRange(t *testing.T) {
	enc, _ := Encode([]byte("hello world"))
	binary.LittleEndian.PutUint32(enc[headerLen:headerLen+sizeLen], 0)
	if _, err := Decode(enc); err == nil || !errors.Is(err, errs.ErrSaveStateSizeOutOfRange) {
		t.Fatalf("got err %v want ErrSaveStateSizeOutOfRange", err)
	}

	enc2, _ := Encode([]byte("hello world"))
	binary.LittleEndian.PutUint32(enc2[headerLen:headerLen+sizeLen], maxUncompressedSize+1)
	if _, err := Decode(enc2); err == nil || !errors.Is(err, errs.ErrSaveStateSizeOutOfRange) {
		t.Fatalf("got err %v want ErrSaveStateSizeOutOfRange", err)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode([]byte{magic, version}); err != ErrTruncated {
		t.Fatalf("got err %v want ErrTruncated", err)
	}
}
