// Package savestate implements the on-disk wire format for full-machine
// snapshots: a small header, a DEFLATE-compressed JSON payload, and a
// truncated SHA-256 checksum to catch bit rot or mismatched cores.
package savestate

import (
	"bytes"
	"compress/flate"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nkondo/pocketgb/internal/errs"
)

const (
	magic   byte = 0x47
	version byte = 1

	headerLen   = 2 // magic, version
	sizeLen     = 4 // little-endian uint32 uncompressed size
	checksumLen = 4 // first 4 bytes of SHA-256 over the uncompressed payload

	minUncompressedSize = 1
	maxUncompressedSize = 10 * 1024 * 1024
)

// ErrTruncated is local to this package: it signals a structurally
// incomplete blob, a layer below the typed failures in errs (which assume a
// well-formed header was at least readable).
var ErrTruncated = errors.New("savestate: truncated data")

// Encode wraps an uncompressed JSON payload into the on-disk format.
func Encode(payload []byte) ([]byte, error) {
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(payload)

	out := make([]byte, 0, headerLen+sizeLen+checksumLen+compressed.Len())
	out = append(out, magic, version)
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	out = append(out, sizeBuf[:]...)
	out = append(out, sum[:checksumLen]...)
	out = append(out, compressed.Bytes()...)
	return out, nil
}

// Decode validates and inflates a previously Encode-d blob, returning the
// original JSON payload.
func Decode(data []byte) ([]byte, error) {
	if len(data) < headerLen+sizeLen+checksumLen {
		return nil, ErrTruncated
	}
	if data[0] != magic {
		return nil, errs.ErrSaveStateMagicInvalid
	}
	if data[1] != version {
		return nil, errs.ErrSaveStateVersionUnsupported
	}
	size := binary.LittleEndian.Uint32(data[headerLen : headerLen+sizeLen])
	if size < minUncompressedSize || size > maxUncompressedSize {
		return nil, fmt.Errorf("%w: %d bytes", errs.ErrSaveStateSizeOutOfRange, size)
	}
	wantSum := data[headerLen+sizeLen : headerLen+sizeLen+checksumLen]
	body := data[headerLen+sizeLen+checksumLen:]

	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	payload := make([]byte, 0, size)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			payload = append(payload, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	gotSum := sha256.Sum256(payload)
	if !bytes.Equal(gotSum[:checksumLen], wantSum) {
		return nil, errs.ErrSaveStateChecksumMismatch
	}
	return payload, nil
}
