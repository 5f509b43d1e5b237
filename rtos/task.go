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
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/logger"
)

// MaxTasks is the capacity of the task slot table.
const MaxTasks = 32

// TooManyTasks is returned by the task creation functions when the slot
// table is full.
const TooManyTasks = "rtos: too many tasks (max %d)"

// NoAffinity indicates that a task is not pinned to a virtual core. Core
// pinning is accepted but never enforced.
const NoAffinity = -1

// TaskFunc is the type of a task's entry function. A TaskFunc that returns
// normally unregisters its task, as if it had deleted itself.
type TaskFunc func(param any)

// Task is a generation-checked handle into the task slot table. The zero
// value is not a valid handle. A handle held after its task has gone can be
// used safely: operations on it do nothing, even if the slot has since been
// reused.
type Task struct {
	slot int
	gen  uint32
}

// taskControl carries the channels shared between the task's own thread,
// any thread deleting the task, and Shutdown(). It lives outside the slot
// so that slot reuse cannot hand one task's channels to another.
type taskControl struct {
	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

func (ctl *taskControl) requestCancel() {
	ctl.cancelOnce.Do(func() { close(ctl.cancel) })
}

type taskSlot struct {
	valid bool
	gen   uint32
	name  string
	tid   int
	ctl   *taskControl
}

// CreateTask allocates a slot and starts a thread running fn(param). It
// fails with a TooManyTasks error when the table is full. The priority is
// accepted for API compatibility but all tasks run with equal weight under
// the host scheduler.
func (r *RTOS) CreateTask(fn TaskFunc, name string, param any, priority int) (Task, error) {
	return r.CreateTaskPinnedToCore(fn, name, param, priority, NoAffinity)
}

// CreateTaskPinnedToCore is CreateTask with a virtual core affinity, which
// is likewise accepted but ignored.
func (r *RTOS) CreateTaskPinnedToCore(fn TaskFunc, name string, param any, priority int, core int) (Task, error) {
	_ = priority
	_ = core

	r.tasksCrit.Lock()

	slot := -1
	for i := range r.tasks {
		if !r.tasks[i].valid {
			slot = i
			break
		}
	}
	if slot < 0 {
		r.tasksCrit.Unlock()
		return Task{}, curated.Errorf(TooManyTasks, MaxTasks)
	}

	s := &r.tasks[slot]
	s.valid = true
	s.gen++
	s.name = name
	s.tid = 0
	s.ctl = &taskControl{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	handle := Task{slot: slot, gen: s.gen}
	ctl := s.ctl
	r.tasksCrit.Unlock()

	go r.taskThread(handle, ctl, fn, param)

	logger.Logf("rtos", "task created: %s", name)
	return handle, nil
}

func (r *RTOS) taskThread(handle Task, ctl *taskControl, fn TaskFunc, param any) {
	// one OS thread per task. the thread is never unlocked so it dies with
	// the goroutine, and its id identifies the task wherever the real RTOS
	// would use the current task handle
	runtime.LockOSThread()
	tid := unix.Gettid()

	r.tasksCrit.Lock()
	s := &r.tasks[handle.slot]
	if !s.valid || s.gen != handle.gen {
		// deleted before the thread started. fn never runs
		r.tasksCrit.Unlock()
		close(ctl.done)
		return
	}
	s.tid = tid
	r.byTID[tid] = handle
	r.tasksCrit.Unlock()

	// the deferred unregister runs on every exit path: normal return,
	// DeleteSelf and the forced unwind of a shutdown-interrupted wait
	defer func() {
		r.unregister(handle, tid)
		close(ctl.done)
	}()

	fn(param)
}

func (r *RTOS) unregister(handle Task, tid int) {
	r.tasksCrit.Lock()
	defer r.tasksCrit.Unlock()

	s := &r.tasks[handle.slot]
	if s.valid && s.gen == handle.gen {
		s.valid = false
		delete(r.byTID, tid)
	}
}

// CurrentTask returns the handle of the calling task. The second return
// value is false when the caller is not an emulated task (the GUI loop,
// for instance).
func (r *RTOS) CurrentTask() (Task, bool) {
	r.tasksCrit.Lock()
	defer r.tasksCrit.Unlock()

	t, ok := r.byTID[unix.Gettid()]
	return t, ok
}

// TaskName returns the name given to the task at creation, or the empty
// string for a stale handle.
func (r *RTOS) TaskName(t Task) string {
	r.tasksCrit.Lock()
	defer r.tasksCrit.Unlock()

	if t.slot < 0 || t.slot >= MaxTasks {
		return ""
	}
	s := &r.tasks[t.slot]
	if !s.valid || s.gen != t.gen {
		return ""
	}
	return s.name
}

// currentCancel returns the calling task's cancel channel, or nil when the
// caller is not a task. a nil channel blocks forever in a select, which is
// exactly what a caller with no cancel token needs.
func (r *RTOS) currentCancel() <-chan struct{} {
	r.tasksCrit.Lock()
	defer r.tasksCrit.Unlock()

	if t, ok := r.byTID[unix.Gettid()]; ok {
		return r.tasks[t.slot].ctl.cancel
	}
	return nil
}

// DeleteSelf unregisters the calling task and terminates it immediately. No
// further code in the task runs. It never returns.
func (r *RTOS) DeleteSelf() {
	runtime.Goexit()
}

// DeleteTask cancels the task and waits for its thread to finish. The
// target observes the cancellation at its next suspension point (a wait, a
// delay) in the manner of deferred thread cancellation; a task that never
// suspends cannot be deleted this way.
//
// Deleting the calling task is equivalent to DeleteSelf.
func (r *RTOS) DeleteTask(t Task) {
	if cur, ok := r.CurrentTask(); ok && cur == t {
		r.DeleteSelf()
	}

	if t.slot < 0 || t.slot >= MaxTasks {
		return
	}

	r.tasksCrit.Lock()
	s := &r.tasks[t.slot]
	if !s.valid || s.gen != t.gen {
		r.tasksCrit.Unlock()
		return
	}
	ctl := s.ctl
	name := s.name
	r.tasksCrit.Unlock()

	ctl.requestCancel()
	<-ctl.done

	logger.Logf("rtos", "task deleted: %s", name)
}

// Delay suspends the calling task for the given number of ticks. If the
// RTOS shuts down, or the task is deleted, during the delay the task is
// terminated immediately.
func (r *RTOS) Delay(ticks TickType) {
	cancel := r.currentCancel()

	if ticks > 0 {
		t := time.NewTimer(ticks.duration())
		select {
		case <-t.C:
		case <-r.shutdown:
			t.Stop()
			runtime.Goexit()
		case <-cancel:
			t.Stop()
			runtime.Goexit()
		}
	}

	// a shutdown that raced the timer must still terminate the task before
	// it returns to caller code
	select {
	case <-r.shutdown:
		runtime.Goexit()
	default:
	}
}

// DelayUntil suspends the calling task until the absolute tick
// previousWake+increment and then advances previousWake by the increment.
// Unlike Delay the wake time does not accumulate the task's own execution
// time, so a loop around DelayUntil runs at a fixed cadence.
func (r *RTOS) DelayUntil(previousWake *TickType, increment TickType) {
	target := *previousWake + increment
	now := r.TickCount()
	if target > now {
		r.Delay(target - now)
	}
	*previousWake = target
}
