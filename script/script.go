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

// Package script runs Lua automation scripts against the emulator. A
// script sees one global table, emu, with functions layered on the same
// debug surface the control socket uses, plus touch injection. Scripted
// regression tests of firmware behaviour drive the emulator with tap()
// and assert on pc()/reg()/peek() values.
package script

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/levkropp/cyd-emulator/bridge"
	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/display"
	"github.com/levkropp/cyd-emulator/logger"
)

// ScriptError is the pattern for a script that failed to run.
const ScriptError = "script: %v"

// how long scripted pause() waits for the run loop to park.
const pauseTimeout = 2 * time.Second

// Engine hosts one Lua state wired to the emulator.
type Engine struct {
	state *lua.LState

	dbg   *bridge.Bridge
	touch *display.Touch
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithBridge attaches the execution bridge, enabling the debug functions.
func WithBridge(b *bridge.Bridge) Option {
	return func(e *Engine) { e.dbg = b }
}

// WithTouch attaches the touch panel, enabling emu.tap and friends.
func WithTouch(t *display.Touch) Option {
	return func(e *Engine) { e.touch = t }
}

// NewEngine creates a Lua state with the emu table registered.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		state: lua.NewState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.register()
	return e
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.state.Close()
}

// RunFile executes a script file.
func (e *Engine) RunFile(path string) error {
	logger.Logf("script", "running %s", path)
	if err := e.state.DoFile(path); err != nil {
		return curated.Errorf(ScriptError, err)
	}
	return nil
}

// RunString executes script source directly.
func (e *Engine) RunString(src string) error {
	if err := e.state.DoString(src); err != nil {
		return curated.Errorf(ScriptError, err)
	}
	return nil
}

func (e *Engine) register() {
	L := e.state
	emu := L.NewTable()
	L.SetGlobal("emu", emu)

	reg := func(name string, fn lua.LGFunction) {
		L.SetField(emu, name, L.NewFunction(fn))
	}

	reg("sleep", func(L *lua.LState) int {
		time.Sleep(time.Duration(L.CheckInt(1)) * time.Millisecond)
		return 0
	})

	reg("log", func(L *lua.LState) int {
		logger.Log("script", L.CheckString(1))
		return 0
	})

	reg("tap", func(L *lua.LState) int {
		if e.touch == nil {
			L.RaiseError("no touch panel attached")
		}
		x, y := L.CheckInt(1), L.CheckInt(2)
		e.touch.Update(true, x, y)
		time.Sleep(50 * time.Millisecond)
		e.touch.Update(false, x, y)
		return 0
	})

	reg("touch_down", func(L *lua.LState) int {
		if e.touch == nil {
			L.RaiseError("no touch panel attached")
		}
		e.touch.Update(true, L.CheckInt(1), L.CheckInt(2))
		return 0
	})

	reg("touch_up", func(L *lua.LState) int {
		if e.touch == nil {
			L.RaiseError("no touch panel attached")
		}
		e.touch.Update(false, 0, 0)
		return 0
	})

	reg("pause", func(L *lua.LState) int {
		dbg := e.requireBridge(L)
		if dbg.IsPaused() {
			return 0
		}
		dbg.Break()
		if !dbg.WaitPaused(pauseTimeout) {
			L.RaiseError("timeout waiting for pause")
		}
		return 0
	})

	reg("resume", func(L *lua.LState) int {
		e.requireBridge(L).Continue()
		return 0
	})

	reg("paused", func(L *lua.LState) int {
		L.Push(lua.LBool(e.requireBridge(L).IsPaused()))
		return 1
	})

	reg("step", func(L *lua.LState) int {
		dbg := e.requireBridge(L)
		count := L.OptInt(1, 1)
		for i := 0; i < count; i++ {
			if err := dbg.StepInstruction(); err != nil {
				L.RaiseError("step: %v", err)
			}
		}
		return 0
	})

	reg("pc", func(L *lua.LState) int {
		pc, err := e.requireBridge(L).PC()
		if err != nil {
			L.RaiseError("pc: %v", err)
		}
		L.Push(lua.LNumber(pc))
		return 1
	})

	reg("reg", func(L *lua.LState) int {
		val, err := e.requireBridge(L).Register(L.CheckInt(1))
		if err != nil {
			L.RaiseError("reg: %v", err)
		}
		L.Push(lua.LNumber(val))
		return 1
	})

	reg("peek", func(L *lua.LState) int {
		val, err := e.requireBridge(L).Peek32(uint32(L.CheckInt64(1)))
		if err != nil {
			L.RaiseError("peek: %v", err)
		}
		L.Push(lua.LNumber(val))
		return 1
	})

	reg("breakpoint", func(L *lua.LState) int {
		if err := e.requireBridge(L).SetBreakpoint(uint32(L.CheckInt64(1))); err != nil {
			L.RaiseError("breakpoint: %v", err)
		}
		return 0
	})

	reg("clearbreak", func(L *lua.LState) int {
		if err := e.requireBridge(L).ClearBreakpoint(uint32(L.CheckInt64(1))); err != nil {
			L.RaiseError("clearbreak: %v", err)
		}
		return 0
	})
}

func (e *Engine) requireBridge(L *lua.LState) *bridge.Bridge {
	if e.dbg == nil {
		L.RaiseError("debug not active")
	}
	return e.dbg
}
