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
	"github.com/levkropp/cyd-emulator/logger"
)

// This file is the RTOS side of the contract with the execution bridge.
//
// When firmware runs on the interpreted CPU rather than natively, its task
// creation calls arrive before its scheduler has started: the entry
// addresses are queued here as deferred tasks. Once the bridge detects that
// the firmware's bootstrap code has reached its idle point it starts the
// scheduler and dispatches the deferred tasks one at a time, by steering
// the CPU's program counter. See the bridge package for the other half.

// DeferredTask is a guest task waiting to be dispatched on the interpreted
// CPU: an entry address and the value for the argument register.
type DeferredTask struct {
	Entry uint32
	Arg   uint32
}

// DeferTask queues a guest task for dispatch once the guest scheduler is
// running.
func (r *RTOS) DeferTask(entry, arg uint32) {
	r.bootCrit.Lock()
	defer r.bootCrit.Unlock()

	r.deferred = append(r.deferred, DeferredTask{Entry: entry, Arg: arg})
	logger.Logf("rtos", "guest task deferred: entry=%08x", entry)
}

// NextDeferred pops the oldest deferred guest task. The second return value
// is false when the queue is empty.
func (r *RTOS) NextDeferred() (DeferredTask, bool) {
	r.bootCrit.Lock()
	defer r.bootCrit.Unlock()

	if len(r.deferred) == 0 {
		return DeferredTask{}, false
	}
	d := r.deferred[0]
	r.deferred = r.deferred[1:]
	return d, true
}

// SchedulerStarted reports whether StartScheduler has been called.
func (r *RTOS) SchedulerStarted() bool {
	r.bootCrit.Lock()
	defer r.bootCrit.Unlock()
	return r.schedulerStarted
}

// StartScheduler records that the guest scheduler has taken control. On
// the real hardware this is the point of no return after vTaskStartScheduler;
// here it simply gates deferred task dispatch.
func (r *RTOS) StartScheduler() {
	r.bootCrit.Lock()
	defer r.bootCrit.Unlock()

	if !r.schedulerStarted {
		r.schedulerStarted = true
		logger.Log("rtos", "guest scheduler started")
	}
}
