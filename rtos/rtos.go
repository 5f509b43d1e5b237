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
	"time"

	"github.com/levkropp/cyd-emulator/logger"
)

// RTOS is a single instance of the emulated operating system. It owns the
// shutdown token, the tick epoch, the task and timer tables and the global
// critical-section lock. Primitives created through an RTOS instance
// capture its shutdown token, so a blocked task belonging to one instance
// can never outlive that instance's Shutdown().
type RTOS struct {
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// the tick counter starts at zero when the instance is created
	epoch time.Time

	// the critical section lock. see EnterCritical()/ExitCritical()
	crit sync.Mutex

	// task slot table. see task.go
	tasksCrit sync.Mutex
	tasks     [MaxTasks]taskSlot
	byTID     map[int]Task

	// software timer table and service goroutine. see timer.go
	timers timerService

	// scheduler bootstrap state shared with the execution bridge. see
	// dispatch.go
	bootCrit         sync.Mutex
	schedulerStarted bool
	deferred         []DeferredTask
}

// New creates a fresh RTOS instance. The tick counter starts now.
func New() *RTOS {
	r := &RTOS{
		shutdown: make(chan struct{}),
		epoch:    time.Now(),
		byTID:    make(map[int]Task),
	}
	r.timers.wake = make(chan struct{})
	return r
}

// ShutdownToken returns the channel that is closed when the instance shuts
// down. Long-running collaborators (the GUI loop, the control channel, the
// execution bridge) observe it to stop in step with the emulated tasks.
func (r *RTOS) ShutdownToken() <-chan struct{} {
	return r.shutdown
}

// Running returns false once Shutdown() has been called.
func (r *RTOS) Running() bool {
	select {
	case <-r.shutdown:
		return false
	default:
		return true
	}
}

// Shutdown signals every blocked task, stops the timer service and joins
// the task threads. Tasks observe the token within one wait slice. A task
// that is busy and never reaches a suspension point cannot be stopped; it
// is logged and abandoned. Shutdown is idempotent and is only intended for
// process exit: resources held by terminated tasks are not released.
func (r *RTOS) Shutdown() {
	r.shutdownOnce.Do(func() {
		close(r.shutdown)

		r.stopTimerService()

		// join all tracked task threads. the bound covers the whole table:
		// each task unblocks within one wait slice of the token closing
		limit := time.After(5 * joinSlack)
		for i := range r.tasks {
			r.tasksCrit.Lock()
			var ctl *taskControl
			var name string
			if r.tasks[i].valid {
				ctl = r.tasks[i].ctl
				name = r.tasks[i].name
			}
			r.tasksCrit.Unlock()

			if ctl == nil {
				continue
			}

			select {
			case <-ctl.done:
			case <-limit:
				logger.Logf("rtos", "task %s did not stop at shutdown", name)
			}
		}

		logger.Log("rtos", "shutdown complete")
	})
}

const joinSlack = 500 * time.Millisecond

// EnterCritical takes the single instance-wide lock that emulates the
// interrupt-disable critical section of the real RTOS. It is coarse by
// design: on the single-core original, disabling interrupts excludes every
// other task at once and firmware relies on that.
func (r *RTOS) EnterCritical() {
	r.crit.Lock()
}

// ExitCritical releases the lock taken by EnterCritical.
func (r *RTOS) ExitCritical() {
	r.crit.Unlock()
}
