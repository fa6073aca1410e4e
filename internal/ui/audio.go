package ui

import (
	"encoding/binary"
	"time"

	"github.com/nkondo/pocketgb/internal/emu"
)

// apuStream adapts the emulator's mixed stereo output into an io.Reader of
// 16-bit little-endian stereo frames for oto.Player.
type apuStream struct {
	m *emu.Machine
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	want := len(p) / 4
	frames := s.m.AudioSamples(want)
	i := 0
	for j := 0; j+1 < len(frames) && i+3 < len(p); j += 2 {
		binary.LittleEndian.PutUint16(p[i:], uint16(frames[j]))
		binary.LittleEndian.PutUint16(p[i+2:], uint16(frames[j+1]))
		i += 4
	}
	if i == 0 {
		// Nothing buffered yet: back off briefly and hand back silence
		// rather than spinning oto's read loop at full speed.
		time.Sleep(2 * time.Millisecond)
	}
	for ; i+3 < len(p); i += 4 {
		binary.LittleEndian.PutUint16(p[i:], 0)
		binary.LittleEndian.PutUint16(p[i+2:], 0)
	}
	return len(p), nil
}
