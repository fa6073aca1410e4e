// Command cpurunner drives the CPU/MMU directly (no window, no audio) for
// instruction-level tracing and serial-output test-ROM harnesses.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nkondo/pocketgb/internal/cart"
	"github.com/nkondo/pocketgb/internal/cpu"
	"github.com/nkondo/pocketgb/internal/emu"
	"github.com/nkondo/pocketgb/internal/mmu"
)

// writerFunc adapts a function to io.Writer.
type writerFunc func(p []byte) (n int, err error)

func (f writerFunc) Write(p []byte) (n int, err error) { return f(p) }

func main() {
	app := &cli.App{
		Name:  "cpurunner",
		Usage: "headless CPU/MMU driver for trace dumps and serial test ROMs",
		Commands: []*cli.Command{
			runCommand(),
			blarggCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "step a ROM instruction by instruction, optionally tracing and watching serial output",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rom", Required: true},
			&cli.StringFlag{Name: "bootrom", Usage: "optional DMG boot ROM to run from 0x0000 until FF50 disables it"},
			&cli.IntFlag{Name: "steps", Value: 5_000_000, Usage: "max CPU steps to run"},
			&cli.IntFlag{Name: "pc", Value: 0x0100, Usage: "initial PC value (ignored with -bootrom)"},
			&cli.BoolFlag{Name: "trace", Usage: "print PC/opcode/register trace"},
			&cli.StringFlag{Name: "until", Value: "Passed", Usage: "stop when serial output contains this substring; empty to disable"},
			&cli.BoolFlag{Name: "auto", Usage: "auto-detect 'Passed'/'Failed N tests' in serial output and exit 0/1"},
			&cli.DurationFlag{Name: "timeout", Usage: "optional wall-clock timeout; 0 disables"},
			&cli.BoolFlag{Name: "traceOnFail", Usage: "when -auto detects failure, print a recent trace window"},
			&cli.IntFlag{Name: "traceWindow", Value: 200},
			&cli.IntFlag{Name: "serialWindow", Value: 8192},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	rom, err := os.ReadFile(c.String("rom"))
	if err != nil {
		return fmt.Errorf("read rom: %w", err)
	}
	var boot []byte
	if p := c.String("bootrom"); p != "" {
		if boot, err = os.ReadFile(p); err != nil {
			return fmt.Errorf("read bootrom: %w", err)
		}
	}

	ct, err := cart.NewCartridge(rom)
	if err != nil {
		return fmt.Errorf("load cartridge: %w", err)
	}
	b := mmu.New(ct)
	if len(boot) >= 0x100 {
		b.SetBootROM(boot)
	}

	var ser bytes.Buffer
	until, auto := c.String("until"), c.Bool("auto")
	serialWindow := c.Int("serialWindow")
	if serialWindow < 256 {
		serialWindow = 256
	}
	serRing := make([]byte, serialWindow)
	serRingIdx, serRingFill := 0, 0
	w := io.Writer(os.Stdout)
	if until != "" || auto {
		w = io.MultiWriter(os.Stdout, &ser, writerFunc(func(p []byte) (int, error) {
			for _, ch := range p {
				serRing[serRingIdx] = ch
				serRingIdx = (serRingIdx + 1) % serialWindow
				if serRingFill < serialWindow {
					serRingFill++
				}
			}
			return len(p), nil
		}))
	}
	b.SetSerialWriter(w)

	cp := cpu.New(b)
	if len(boot) >= 0x100 {
		cp.SP = 0xFFFE
		cp.PC = 0x0000
		cp.IME = false
	} else {
		cp.ResetNoBoot()
		cp.SetPC(uint16(c.Int("pc")))
		b.Write(0xFF00, 0xCF)
		b.Write(0xFF05, 0x00)
		b.Write(0xFF06, 0x00)
		b.Write(0xFF07, 0x00)
		b.Write(0xFF40, 0x91)
		b.Write(0xFF42, 0x00)
		b.Write(0xFF43, 0x00)
		b.Write(0xFF45, 0x00)
		b.Write(0xFF47, 0xFC)
		b.Write(0xFF48, 0xFF)
		b.Write(0xFF49, 0xFF)
		b.Write(0xFF4A, 0x00)
		b.Write(0xFF4B, 0x00)
		b.Write(0xFFFF, 0x00)
	}

	trace, traceOnFail := c.Bool("trace"), c.Bool("traceOnFail")
	traceWindow := c.Int("traceWindow")

	start := time.Now()
	var deadline time.Time
	if d := c.Duration("timeout"); d > 0 {
		deadline = start.Add(d)
	}
	failRe := regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)
	stageRe := regexp.MustCompile(`\b(\d{2}:\d{2})\b`)
	lastStage := ""

	type traceEntry struct {
		pc                     uint16
		op                     byte
		cyc                    int
		a, f, b, cc, d, e, h, l byte
		sp                     uint16
		ime                    bool
		ifreg, ie              byte
	}
	ring := make([]traceEntry, traceWindow)
	ringIdx, ringFill := 0, 0
	steps := c.Int("steps")
	var cycles int

	for i := 0; i < steps; i++ {
		pc := cp.PC
		var op byte
		if trace || traceOnFail {
			op = b.Read(pc)
		}
		cyc := cp.Step()
		cycles += cyc
		if trace || traceOnFail {
			te := traceEntry{
				pc: pc, op: op, cyc: cyc,
				a: cp.A, f: cp.F, b: cp.B, cc: cp.C, d: cp.D, e: cp.E, h: cp.H, l: cp.L,
				sp: cp.SP, ime: cp.IME, ifreg: b.Read(0xFF0F), ie: b.Read(0xFFFF),
			}
			if trace {
				fmt.Printf("PC=%04X OP=%02X cyc=%d A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t IF=%02X IE=%02X\n",
					te.pc, te.op, te.cyc, te.a, te.f, te.b, te.cc, te.d, te.e, te.h, te.l, te.sp, te.ime, te.ifreg, te.ie)
			}
			if traceOnFail && traceWindow > 0 {
				ring[ringIdx] = te
				ringIdx = (ringIdx + 1) % traceWindow
				if ringFill < traceWindow {
					ringFill++
				}
			}
		}
		if auto {
			s := ser.String()
			if mm := stageRe.FindAllString(s, -1); len(mm) > 0 {
				lastStage = mm[len(mm)-1]
			}
			if strings.Contains(strings.ToLower(s), "passed") {
				printDone("Detected PASS in serial output.", lastStage, i, cycles, start)
				os.Exit(0)
			}
			if m := failRe.FindStringSubmatch(s); m != nil {
				fmt.Printf("\nDetected %s in serial output.\n", m[0])
				if lastStage != "" {
					fmt.Printf("Last stage seen: %s\n", lastStage)
				}
				if traceOnFail && ringFill > 0 {
					fmt.Printf("\n--- recent trace (last %d instructions) ---\n", ringFill)
					startIdx := (ringIdx - ringFill + traceWindow) % traceWindow
					for j := 0; j < ringFill; j++ {
						idx := (startIdx + j) % traceWindow
						te := ring[idx]
						fmt.Printf("PC=%04X OP=%02X cyc=%d A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t IF=%02X IE=%02X\n",
							te.pc, te.op, te.cyc, te.a, te.f, te.b, te.cc, te.d, te.e, te.h, te.l, te.sp, te.ime, te.ifreg, te.ie)
					}
					fmt.Printf("--- end trace ---\n")
				}
				if serRingFill > 0 {
					fmt.Printf("\n--- recent serial (last %d bytes) ---\n", serRingFill)
					sstart := (serRingIdx - serRingFill + serialWindow) % serialWindow
					for j := 0; j < serRingFill; j++ {
						idx := (sstart + j) % serialWindow
						fmt.Printf("%c", serRing[idx])
					}
					fmt.Printf("\n--- end serial ---\n")
				}
				fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
				os.Exit(1)
			}
		} else if until != "" {
			if strings.Contains(strings.ToLower(ser.String()), strings.ToLower(until)) {
				printDone(fmt.Sprintf("Detected '%s' in serial output.", until), lastStage, i, cycles, start)
				return nil
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
	}
	fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", steps, cycles, time.Since(start).Truncate(time.Millisecond))
	return nil
}

func printDone(header, lastStage string, steps, cycles int, start time.Time) {
	fmt.Printf("\n%s\n", header)
	if lastStage != "" {
		fmt.Printf("Last stage seen: %s\n", lastStage)
	}
	fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", steps+1, cycles, time.Since(start).Truncate(time.Millisecond))
}

func blarggCommand() *cli.Command {
	return &cli.Command{
		Name:  "blargg",
		Usage: "run every .gb/.gbc ROM under a directory through the real Machine, watching serial for pass/fail",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Required: true},
			&cli.IntFlag{Name: "maxFrames", Value: 1800},
		},
		Action: blarggAction,
	}
}

func blarggAction(c *cli.Context) error {
	dir := c.String("dir")
	maxFrames := c.Int("maxFrames")
	var failures []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		low := strings.ToLower(d.Name())
		if !strings.HasSuffix(low, ".gb") && !strings.HasSuffix(low, ".gbc") {
			return nil
		}

		m := emu.New(emu.Config{})
		if err := m.LoadROMFromFile(path); err != nil {
			failures = append(failures, fmt.Sprintf("%s: load: %v", path, err))
			return nil
		}
		var buf bytes.Buffer
		m.SetSerialWriter(&buf)

		passed := false
		for i := 0; i < maxFrames; i++ {
			m.StepFrameNoRender()
			out := buf.String()
			if strings.Contains(strings.ToLower(out), "passed") {
				passed = true
				break
			}
			if strings.Contains(strings.ToLower(out), "failed") {
				failures = append(failures, fmt.Sprintf("%s: reported failure:\n%s", path, out))
				return nil
			}
		}
		if passed {
			fmt.Printf("PASS %s\n", path)
		} else {
			failures = append(failures, fmt.Sprintf("%s: timed out waiting for 'Passed'", path))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		for _, f := range failures {
			fmt.Fprintln(os.Stderr, f)
		}
		return fmt.Errorf("%d ROM(s) failed", len(failures))
	}
	return nil
}
