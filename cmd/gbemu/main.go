// Command gbemu runs a ROM in a window (or headless, for regression checks).
package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nkondo/pocketgb/internal/cart"
	"github.com/nkondo/pocketgb/internal/emu"
	"github.com/nkondo/pocketgb/internal/ui"
)

type cliFlags struct {
	romPath string
	bootROM string
	scale   int
	title   string
	trace   bool
	saveRAM bool

	headless bool
	frames   int
	pngOut   string
	expect   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.romPath, "rom", "", "path to ROM (.gb)")
	flag.StringVar(&f.bootROM, "bootrom", "", "optional DMG boot ROM")
	flag.IntVar(&f.scale, "scale", 3, "window scale")
	flag.StringVar(&f.title, "title", "pocketgb", "window title")
	flag.BoolVar(&f.trace, "trace", false, "CPU trace log")
	flag.BoolVar(&f.saveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&f.headless, "headless", false, "run without a window")
	flag.IntVar(&f.frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.pngOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}
	start := time.Now()
	for i := 0; i < frames; i++ {
		m.StepFrame()
	}
	dur := time.Since(start)

	fb := m.Framebuffer()
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()
	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func savStatePath(romPath string) string {
	return strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".state"
}

func main() {
	f := parseFlags()
	if f.romPath == "" {
		log.Fatal("-rom is required")
	}
	boot := mustRead(f.bootROM)

	if h, err := cart.ParseHeader(mustRead(f.romPath)); err == nil {
		log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
	}

	m := emu.New(emu.Config{Trace: f.trace, LimitFPS: !f.headless})
	if err := m.LoadROMFromFile(f.romPath); err != nil {
		log.Fatalf("load rom: %v", err)
	}
	if len(boot) >= 0x100 {
		m.SetBootROM(boot)
	}

	savPath := strings.TrimSuffix(f.romPath, filepath.Ext(f.romPath)) + ".sav"
	if f.saveRAM {
		if data, err := os.ReadFile(savPath); err == nil {
			if err := m.LoadBattery(data); err != nil {
				log.Printf("load save RAM: %v", err)
			} else {
				log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
			}
		}
	}

	writeBattery := func() {
		if !f.saveRAM {
			return
		}
		data, ok := m.SaveBattery()
		if !ok {
			return
		}
		if err := os.WriteFile(savPath, data, 0o644); err == nil {
			log.Printf("wrote %s", savPath)
		}
	}

	if f.headless {
		if err := runHeadless(m, f.frames, f.pngOut, f.expect); err != nil {
			log.Fatal(err)
		}
		writeBattery()
		return
	}

	app, err := ui.NewApp(ui.Config{Title: f.title, Scale: f.scale, StatePath: savStatePath(f.romPath)}, m)
	if err != nil {
		log.Fatalf("create ui: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	writeBattery()
}
