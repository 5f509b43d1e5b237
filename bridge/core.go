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

package bridge

// Core is the interpreted CPU as the bridge sees it. The interpreter itself
// lives outside this project; anything satisfying this interface can be
// driven by the run loop.
//
// None of these functions are required to be concurrency safe. The bridge
// guarantees they are only ever called from the execution goroutine, or
// from a debug controller while the loop is parked in the paused state.
type Core interface {
	// Reset returns the CPU to its power-on state. PC and registers are
	// the caller's responsibility after a reset.
	Reset()

	// Step executes exactly one instruction. When ignoreBreakpoints is
	// true a breakpoint on the current PC does not fire, which is how the
	// loop moves past a trapped address before re-arming.
	Step(ignoreBreakpoints bool) error

	// Run executes up to limit instructions, returning the number
	// actually executed. It returns early when the CPU halts, stops or
	// hits a breakpoint.
	Run(limit int) (int, error)

	// PC is the current program counter.
	PC() uint32
	SetPC(pc uint32)

	// Register reads and writes the general register file. For the
	// Xtensa call0 ABI used by the guest firmware: a0 is the return
	// address, a1 the stack pointer, a2 the first argument.
	Register(reg int) uint32
	SetRegister(reg int, val uint32)

	// breakpoints are plain PC traps
	SetBreakpoint(addr uint32)
	ClearBreakpoint(addr uint32)
	HasBreakpoint(addr uint32) bool

	// Halted reports the CPU waiting for an interrupt (WAITI). A halted
	// core resumes as a side effect of stepping once an interrupt is
	// pending.
	Halted() bool

	// Running is false once the CPU has stopped for good (illegal
	// instruction, explicit stop). SetRunning(true) restarts a stopped
	// core, which the debug controller uses on continue.
	Running() bool
	SetRunning(running bool)

	// BreakpointHit reports whether the last Run or Step ended on a
	// breakpoint. The flag is cleared by the next Run or Step.
	BreakpointHit() bool

	// Cycles is the core's cycle counter. The bridge writes it to keep
	// two cores in step.
	Cycles() uint64
	SetCycles(cycles uint64)
}

// System answers the peripheral-state questions the run loop needs. On the
// emulated ESP32 the PRO core releases the APP core by writing a control
// register that also carries the boot address.
type System interface {
	// AppCoreReleased reports whether firmware has released the second
	// core from stall.
	AppCoreReleased() bool

	// AppCoreBootAddr is the address the second core starts at.
	AppCoreBootAddr() uint32
}

// Memory is raw guest memory access, used by debug controllers while the
// loop is paused.
type Memory interface {
	Peek8(addr uint32) (uint8, error)
	Peek16(addr uint32) (uint16, error)
	Peek32(addr uint32) (uint32, error)
}
