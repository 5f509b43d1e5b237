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

package control_test

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/levkropp/cyd-emulator/board"
	"github.com/levkropp/cyd-emulator/bridge"
	"github.com/levkropp/cyd-emulator/control"
	"github.com/levkropp/cyd-emulator/display"
	"github.com/levkropp/cyd-emulator/symbols"
	"github.com/levkropp/cyd-emulator/test"
)

// send issues one command over a fresh connection and returns the whole
// response, the way a scripted client would.
func send(t *testing.T, path, cmd string) string {
	t.Helper()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(resp)
}

func TestTouchCommands(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")
	touch := display.NewTouch()

	srv, err := control.NewServer(sock, control.WithTouch(touch))
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	resp := send(t, sock, "touch_down 42 99")
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)

	x, y, down := touch.Read()
	test.ExpectedSuccess(t, down)
	test.Equate(t, x, 42)
	test.Equate(t, y, 99)

	resp = send(t, sock, "touch_up")
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)
	_, _, down = touch.Read()
	test.ExpectedFailure(t, down)

	// tap presses and releases; the latch preserves the press for the
	// next poll
	resp = send(t, sock, "tap 10 20")
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)
	x, y, down = touch.Read()
	test.ExpectedSuccess(t, down)
	test.Equate(t, x, 10)
	test.Equate(t, y, 20)

	resp = send(t, sock, "tap")
	test.Equate(t, strings.HasPrefix(resp, "ERR"), true)
}

func TestStatus(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")
	d := display.NewDisplay(320, 240)

	srv, err := control.NewServer(sock,
		control.WithDisplay(d),
		control.WithBoard(board.Default()),
	)
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	resp := send(t, sock, "status")
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)
	test.Equate(t, strings.Contains(resp, "board=2432S028R"), true)
	test.Equate(t, strings.Contains(resp, "display=320x240"), true)
	test.Equate(t, strings.Contains(resp, "mode=native"), true)
}

func TestUnknownCommand(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")
	srv, err := control.NewServer(sock)
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	resp := send(t, sock, "frobnicate")
	test.Equate(t, strings.HasPrefix(resp, "ERR unknown"), true)
}

func TestScreenshot(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")
	d := display.NewDisplay(32, 24)
	d.Clear(display.Red)

	srv, err := control.NewServer(sock, control.WithDisplay(d))
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	shot := filepath.Join(t.TempDir(), "shot.bmp")
	resp := send(t, sock, "screenshot "+shot)
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)

	data, err := os.ReadFile(shot)
	test.ExpectedSuccess(t, err)
	if len(data) < 2 || data[0] != 'B' || data[1] != 'M' {
		t.Fatal("screenshot is not a BMP file")
	}
}

func TestMemviz(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")

	disp := display.NewDisplay(320, 240)
	sym := symbols.NewTable()
	sym.Add(0x400d0000, "app_main")

	srv, err := control.NewServer(sock,
		control.WithDisplay(disp),
		control.WithSymbols(sym),
	)
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	dot := filepath.Join(t.TempDir(), "graph.dot")
	resp := send(t, sock, "memviz "+dot)
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)

	data, err := os.ReadFile(dot)
	test.ExpectedSuccess(t, err)
	test.Equate(t, strings.Contains(string(data), "digraph"), true)

	// the attached collaborators appear in the graph, not just the board
	test.Equate(t, strings.Contains(string(data), "app_main"), true)
}

func TestDebugWithoutBridge(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")
	srv, err := control.NewServer(sock)
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	for _, cmd := range []string{"pause", "continue", "step", "paused", "regs", "peek 0x0"} {
		resp := send(t, sock, cmd)
		test.Equate(t, strings.HasPrefix(resp, "ERR debug not active"), true)
	}
}

func TestQuit(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")

	quit := make(chan struct{}, 1)
	srv, err := control.NewServer(sock, control.WithQuit(func() {
		quit <- struct{}{}
	}))
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	resp := send(t, sock, "quit")
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)

	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("quit callback never ran")
	}
}

// advanceCore is a minimal scripted CPU for exercising the debug
// commands end to end.
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

func TestDebugCommands(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "emu.sock")

	core := &advanceCore{running: true, breaks: make(map[uint32]bool)}
	b := bridge.New(core)

	done := make(chan error, 1)
	go func() { done <- b.Run() }()
	defer func() {
		b.Shutdown()
		<-done
	}()

	sym := symbols.NewTable()
	sym.Add(0, "_start")

	srv, err := control.NewServer(sock, control.WithBridge(b), control.WithSymbols(sym))
	test.ExpectedSuccess(t, err)
	defer srv.Close()

	resp := send(t, sock, "pause")
	test.Equate(t, strings.HasPrefix(resp, "OK paused at 0x"), true)
	test.Equate(t, strings.Contains(resp, "<_start"), true)

	resp = send(t, sock, "paused")
	test.Equate(t, strings.Contains(resp, "paused=true"), true)

	resp = send(t, sock, "regs")
	test.Equate(t, strings.Contains(resp, "REG PC=0x"), true)
	test.Equate(t, strings.Contains(resp, "REG a0="), true)
	test.Equate(t, strings.HasSuffix(resp, "OK\n"), true)

	resp = send(t, sock, "step 3")
	test.Equate(t, strings.Count(resp, "STEP 0x"), 3)
	test.Equate(t, strings.Contains(resp, "OK pc=0x"), true)

	resp = send(t, sock, "continue")
	test.Equate(t, strings.HasPrefix(resp, "OK"), true)

	resp = send(t, sock, "paused")
	test.Equate(t, strings.Contains(resp, "paused=false"), true)
}
