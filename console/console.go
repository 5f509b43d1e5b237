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

// Package console is the single-keypress debug console on the launching
// terminal. The terminal is switched to cbreak mode so keys act
// immediately, without waiting for a newline.
//
// It is a convenience layer over the same five debug primitives the
// control socket uses. When stdin is not a terminal (the emulator was
// started by a script) the console refuses to start and the emulator
// carries on without it.
package console

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/levkropp/cyd-emulator/bridge"
	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/logger"
)

// error patterns for the console package.
const (
	NotATerminal  = "console: stdin is not a terminal"
	TerminalError = "console: %v"
)

// how long a pause keypress waits for the run loop to park.
const pauseTimeoutDuration = 2 * time.Second

// Console owns the launching terminal while the emulator runs.
type Console struct {
	input *os.File

	canAttr    unix.Termios
	cbreakAttr unix.Termios

	dbg  *bridge.Bridge
	quit func()

	done chan struct{}
}

// New switches the terminal to cbreak mode and starts the key loop. dbg
// may be nil when running native firmware; the debug keys then print a
// notice instead. quit is called on the q key.
func New(dbg *bridge.Bridge, quit func()) (*Console, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, curated.Errorf(NotATerminal)
	}

	c := &Console{
		input: os.Stdin,
		dbg:   dbg,
		quit:  quit,
		done:  make(chan struct{}),
	}

	if err := termios.Tcgetattr(c.input.Fd(), &c.canAttr); err != nil {
		return nil, curated.Errorf(TerminalError, err)
	}
	c.cbreakAttr = c.canAttr
	termios.Cfmakecbreak(&c.cbreakAttr)

	if err := termios.Tcsetattr(c.input.Fd(), termios.TCIFLUSH, &c.cbreakAttr); err != nil {
		return nil, curated.Errorf(TerminalError, err)
	}

	go c.keyLoop()

	fmt.Println("debug console ready (h for help)")
	return c, nil
}

// Close restores the terminal to canonical mode.
func (c *Console) Close() {
	close(c.done)
	_ = termios.Tcsetattr(c.input.Fd(), termios.TCIFLUSH, &c.canAttr)
}

func (c *Console) keyLoop() {
	buf := make([]byte, 1)
	for {
		n, err := c.input.Read(buf)
		if err != nil || n == 0 {
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		c.HandleKey(buf[0])
	}
}

// HandleKey dispatches one keypress.
func (c *Console) HandleKey(key byte) {
	switch key {
	case 'q':
		fmt.Println("quit")
		if c.quit != nil {
			c.quit()
		}

	case 'l':
		logger.Tail(os.Stdout, 16)

	case 'h', '?':
		fmt.Println("p pause/continue  s step  r registers  l log  q quit")

	case 'p':
		if !c.requireBridge() {
			return
		}
		if c.dbg.IsPaused() {
			c.dbg.Continue()
			fmt.Println("continue")
			return
		}
		c.dbg.Break()
		if !c.dbg.WaitPaused(pauseTimeoutDuration) {
			fmt.Println("timeout waiting for pause")
			return
		}
		pc, _ := c.dbg.PC()
		fmt.Printf("paused at 0x%08X\n", pc)

	case 's':
		if !c.requireBridge() {
			return
		}
		if !c.dbg.IsPaused() {
			fmt.Println("not paused")
			return
		}
		if err := c.dbg.StepInstruction(); err != nil {
			fmt.Printf("step: %v\n", err)
			return
		}
		pc, _ := c.dbg.PC()
		fmt.Printf("step to 0x%08X\n", pc)

	case 'r':
		if !c.requireBridge() {
			return
		}
		pc, err := c.dbg.PC()
		if err != nil {
			fmt.Println("not paused")
			return
		}
		fmt.Printf("PC=0x%08X\n", pc)
		for r := 0; r < 16; r += 4 {
			v0, _ := c.dbg.Register(r)
			v1, _ := c.dbg.Register(r + 1)
			v2, _ := c.dbg.Register(r + 2)
			v3, _ := c.dbg.Register(r + 3)
			fmt.Printf("a%-2d=%08X a%-2d=%08X a%-2d=%08X a%-2d=%08X\n",
				r, v0, r+1, v1, r+2, v2, r+3, v3)
		}
	}
}

func (c *Console) requireBridge() bool {
	if c.dbg == nil {
		fmt.Println("debug not active")
		return false
	}
	return true
}
