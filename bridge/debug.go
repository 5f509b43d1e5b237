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

import (
	"time"

	"github.com/levkropp/cyd-emulator/curated"
)

// The debug surface. These five functions plus the register/memory
// accessors below are the whole contract with external controllers (the
// control socket, the keypress console, lua scripts). All of them may be
// called from any goroutine.

// Break asks the run loop to pause. The loop honours the request at the
// top of its next iteration; use WaitPaused to synchronize with it.
func (b *Bridge) Break() {
	b.crit.Lock()
	defer b.crit.Unlock()

	if b.state == Running {
		b.state = PauseRequested
	}
}

// Continue releases a paused run loop. If the core had stopped it is
// restarted. Calling Continue when the loop is not paused cancels any
// pending pause request and is otherwise a no-op.
func (b *Bridge) Continue() {
	b.crit.Lock()
	defer b.crit.Unlock()

	switch b.state {
	case Paused:
		b.state = Running
		b.pausedCh = make(chan struct{})
		if !b.core.Running() {
			b.core.SetRunning(true)
		}
		close(b.resumeCh)
	case PauseRequested:
		b.state = Running
	}
}

// IsPaused is a non-blocking query of the paused state.
func (b *Bridge) IsPaused() bool {
	b.crit.Lock()
	defer b.crit.Unlock()
	return b.state == Paused
}

// WaitPaused blocks until the run loop has parked in the paused state,
// returning false if the timeout elapses first. A typical controller
// calls Break then WaitPaused before touching registers or memory.
func (b *Bridge) WaitPaused(timeout time.Duration) bool {
	b.crit.Lock()
	if b.state == Paused {
		b.crit.Unlock()
		return true
	}
	paused := b.pausedCh
	b.crit.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-paused:
		return true
	case <-t.C:
		return false
	case <-b.shutdown:
		return false
	}
}

// requirePaused guards the accessors that touch the core directly. must
// be called with b.crit held.
func (b *Bridge) requirePaused() error {
	if b.state != Paused {
		return curated.Errorf(NotPaused)
	}
	return nil
}

// StepInstruction executes a single instruction while the loop is paused.
// Breakpoint checks are suppressed for the one instruction so stepping
// away from a trapped address works.
func (b *Bridge) StepInstruction() error {
	b.crit.Lock()
	defer b.crit.Unlock()

	if err := b.requirePaused(); err != nil {
		return err
	}
	return b.core.Step(true)
}

// PC returns the program counter. The loop must be paused.
func (b *Bridge) PC() (uint32, error) {
	b.crit.Lock()
	defer b.crit.Unlock()

	if err := b.requirePaused(); err != nil {
		return 0, err
	}
	return b.core.PC(), nil
}

// Register reads a general register. The loop must be paused.
func (b *Bridge) Register(reg int) (uint32, error) {
	b.crit.Lock()
	defer b.crit.Unlock()

	if err := b.requirePaused(); err != nil {
		return 0, err
	}
	return b.core.Register(reg), nil
}

// SetBreakpoint arms a PC trap. The loop must be paused.
func (b *Bridge) SetBreakpoint(addr uint32) error {
	b.crit.Lock()
	defer b.crit.Unlock()

	if err := b.requirePaused(); err != nil {
		return err
	}
	b.core.SetBreakpoint(addr)
	return nil
}

// ClearBreakpoint disarms a PC trap. The loop must be paused.
func (b *Bridge) ClearBreakpoint(addr uint32) error {
	b.crit.Lock()
	defer b.crit.Unlock()

	if err := b.requirePaused(); err != nil {
		return err
	}
	b.core.ClearBreakpoint(addr)
	return nil
}
