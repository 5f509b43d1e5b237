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

package rtos

import (
	"sync"
)

// EventBits is the bit register of an event group.
type EventBits uint32

// EventGroup is a shared bit register that tasks can wait on. Bits are set
// and cleared atomically with respect to waiters.
type EventGroup struct {
	r *RTOS

	crit   sync.Mutex
	notify chan struct{}

	bits EventBits
}

// NewEventGroup creates an event group with all bits clear.
func (r *RTOS) NewEventGroup() *EventGroup {
	return &EventGroup{
		r:      r,
		notify: make(chan struct{}),
	}
}

// SetBits ORs the given bits into the register, wakes every waiter and
// returns the register value immediately after the set.
func (eg *EventGroup) SetBits(bits EventBits) EventBits {
	eg.crit.Lock()
	defer eg.crit.Unlock()

	eg.bits |= bits
	wake(&eg.notify)
	return eg.bits
}

// ClearBits ANDs the given bits out of the register and returns the value
// the register held before the clear.
func (eg *EventGroup) ClearBits(bits EventBits) EventBits {
	eg.crit.Lock()
	defer eg.crit.Unlock()

	before := eg.bits
	eg.bits &^= bits
	return before
}

// Bits returns the current register value.
func (eg *EventGroup) Bits() EventBits {
	eg.crit.Lock()
	defer eg.crit.Unlock()
	return eg.bits
}

// WaitBits blocks until the bits in the mask are set - all of them if
// waitAll is true, any one of them otherwise - or until the timeout
// expires. If clearOnExit is true the masked bits are cleared on a
// satisfied wait (and only then).
//
// The return value is the register value at the moment of return. A
// timeout is not an error: callers distinguish timeout from success only by
// inspecting which bits are set in the returned value, exactly as they
// would on the real RTOS.
func (eg *EventGroup) WaitBits(mask EventBits, clearOnExit, waitAll bool, timeout TickType) EventBits {
	satisfied := func() bool {
		match := eg.bits & mask
		if waitAll {
			return match == mask
		}
		return match != 0
	}

	eg.crit.Lock()
	defer eg.crit.Unlock()

	if satisfied() {
		bits := eg.bits
		if clearOnExit {
			eg.bits &^= mask
		}
		return bits
	}

	if timeout == 0 {
		return eg.bits
	}

	dl := newDeadline(timeout)
	for {
		if eg.r.wait(&eg.crit, &eg.notify, dl) == timedOut {
			return eg.bits
		}

		if satisfied() {
			bits := eg.bits
			if clearOnExit {
				eg.bits &^= mask
			}
			return bits
		}
	}
}

// Delete releases the event group's resources. The caller must guarantee
// that no task is blocked on the group.
func (eg *EventGroup) Delete() {
	// nothing to free on the host side
}
