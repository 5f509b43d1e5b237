// This file is part of cyd-emulator.
//
// cyd-emulator is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// cyd-emulator is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with cyd-emulator.  If not, see <https://www.gnu.org/licenses/>.

package script_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/levkropp/cyd-emulator/bridge"
	"github.com/levkropp/cyd-emulator/display"
	"github.com/levkropp/cyd-emulator/script"
	"github.com/levkropp/cyd-emulator/test"
)

// advanceCore is a minimal scripted CPU for exercising the debug
// bindings end to end.
type advanceCore struct {
	pc      uint32
	regs    [16]uint32
	running bool
	breaks  map[uint32]bool
	bpHit   bool
	cycles  uint64
}

func (c *advanceCore) Reset() { c.pc = 0 }
func (c *advanceCore) Step(ignore bool) error {
	c.bpHit = false
	if !ignore && c.breaks[c.pc] {
		c.bpHit = true
		return nil
	}
	c.pc += 4
	c.cycles++
	return nil
}
func (c *advanceCore) Run(limit int) (int, error) {
	c.bpHit = false
	for i := 0; i < limit; i++ {
		if c.breaks[c.pc] {
			c.bpHit = true
			return i, nil
		}
		c.pc += 4
		c.cycles++
	}
	return limit, nil
}
func (c *advanceCore) PC() uint32                     { return c.pc }
func (c *advanceCore) SetPC(pc uint32)                { c.pc = pc }
func (c *advanceCore) Register(r int) uint32          { return c.regs[r] }
func (c *advanceCore) SetRegister(r int, v uint32)    { c.regs[r] = v }
func (c *advanceCore) SetBreakpoint(addr uint32)      { c.breaks[addr] = true }
func (c *advanceCore) ClearBreakpoint(addr uint32)    { delete(c.breaks, addr) }
func (c *advanceCore) HasBreakpoint(addr uint32) bool { return c.breaks[addr] }
func (c *advanceCore) Halted() bool                   { return false }
func (c *advanceCore) Running() bool                  { return c.running }
func (c *advanceCore) SetRunning(r bool)              { c.running = r }
func (c *advanceCore) BreakpointHit() bool            { return c.bpHit }
func (c *advanceCore) Cycles() uint64                 { return c.cycles }
func (c *advanceCore) SetCycles(cy uint64)            { c.cycles = cy }

func TestTouchBindings(t *testing.T) {
	touch := display.NewTouch()

	eng := script.NewEngine(script.WithTouch(touch))
	defer eng.Close()

	err := eng.RunString(`emu.touch_down(15, 30)`)
	test.ExpectedSuccess(t, err)

	x, y, down := touch.Read()
	test.ExpectedSuccess(t, down)
	test.Equate(t, x, 15)
	test.Equate(t, y, 30)

	err = eng.RunString(`emu.touch_up()`)
	test.ExpectedSuccess(t, err)
	_, _, down = touch.Read()
	test.ExpectedFailure(t, down)

	// tap presses and releases; the latch preserves the press for the
	// next poll
	err = eng.RunString(`emu.tap(100, 200)`)
	test.ExpectedSuccess(t, err)
	x, y, down = touch.Read()
	test.ExpectedSuccess(t, down)
	test.Equate(t, x, 100)
	test.Equate(t, y, 200)
}

func TestDebugBindings(t *testing.T) {
	core := &advanceCore{running: true, breaks: make(map[uint32]bool)}
	core.regs[2] = 0xbeef
	b := bridge.New(core)

	done := make(chan error, 1)
	go func() { done <- b.Run() }()
	defer func() {
		b.Shutdown()
		<-done
	}()

	eng := script.NewEngine(script.WithBridge(b))
	defer eng.Close()

	err := eng.RunString(`
		emu.pause()
		assert(emu.paused(), "expected pause")

		local before = emu.pc()
		emu.step(3)
		assert(emu.pc() == before + 12, "expected three steps")

		assert(emu.reg(2) == 0xbeef, "unexpected a2")

		emu.resume()
		assert(not emu.paused(), "expected resume")
	`)
	test.ExpectedSuccess(t, err)
}

func TestDebugWithoutBridge(t *testing.T) {
	eng := script.NewEngine()
	defer eng.Close()

	err := eng.RunString(`emu.pause()`)
	test.ExpectedFailure(t, err)
	test.Equate(t, strings.Contains(err.Error(), "debug not active"), true)
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lua")
	err := os.WriteFile(path, []byte(`emu.log("hello from lua")`), 0644)
	test.ExpectedSuccess(t, err)

	eng := script.NewEngine()
	defer eng.Close()
	test.ExpectedSuccess(t, eng.RunFile(path))

	test.ExpectedFailure(t, eng.RunFile(filepath.Join(t.TempDir(), "missing.lua")))
}
