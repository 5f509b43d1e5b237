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

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/logger"
)

// MaxTimers is the capacity of the software timer table.
const MaxTimers = 16

// TooManyTimers is returned by NewTimer when the timer table is full.
const TooManyTimers = "rtos: too many timers (max %d)"

// TimerFunc is a timer's callback. It runs on the timer service thread
// with the timer table unlocked, so a callback is free to start, stop,
// create or delete timers, including its own.
type TimerFunc func(t Timer)

// Timer is a generation-checked handle into the timer table. The zero
// value is not a valid handle; operations on a stale handle do nothing and
// report failure.
type Timer struct {
	r    *RTOS
	slot int
	gen  uint32
}

type timerSlot struct {
	inUse      bool
	gen        uint32
	name       string
	period     TickType
	autoReload bool
	id         any
	callback   TimerFunc
	active     bool
	nextFire   time.Time
}

// timerService multiplexes every software timer onto one dedicated thread,
// in the way the FreeRTOS daemon task does. The thread is created lazily on
// first timer creation and joined at shutdown.
type timerService struct {
	crit  sync.Mutex
	slots [MaxTimers]timerSlot

	// wake is closed-and-replaced by any operation that may change the
	// earliest fire time, so the service recomputes its sleep target
	// immediately instead of waiting out a stale slice
	wake chan struct{}

	started bool
	done    chan struct{}
}

// must be called with ts.crit held.
func (ts *timerService) signalWake() {
	close(ts.wake)
	ts.wake = make(chan struct{})
}

// must be called with r.timers.crit held.
func (r *RTOS) ensureTimerService() {
	ts := &r.timers
	if ts.started {
		return
	}
	ts.started = true
	ts.done = make(chan struct{})
	go r.timerLoop()
}

func (r *RTOS) stopTimerService() {
	r.timers.crit.Lock()
	started := r.timers.started
	if started {
		r.timers.signalWake()
	}
	done := r.timers.done
	r.timers.crit.Unlock()

	if started {
		<-done
	}
}

func (r *RTOS) timerLoop() {
	ts := &r.timers
	defer close(ts.done)

	ts.crit.Lock()
	defer ts.crit.Unlock()

	for r.Running() {
		now := time.Now()

		// find the active timer with the earliest fire time
		var earliest time.Time
		found := false
		for i := range ts.slots {
			s := &ts.slots[i]
			if s.inUse && s.active && s.callback != nil {
				if !found || s.nextFire.Before(earliest) {
					earliest = s.nextFire
					found = true
				}
			}
		}

		if !found || earliest.After(now) {
			// nothing due yet. sleep until the earliest fire time but never
			// longer than one slice, so shutdown is noticed promptly even
			// with no timers active
			d := waitSlice
			if found {
				if until := earliest.Sub(now); until < d {
					d = until
				}
			}

			wakeCh := ts.wake
			ts.crit.Unlock()

			t := time.NewTimer(d)
			select {
			case <-wakeCh:
			case <-t.C:
			case <-r.shutdown:
			}
			t.Stop()

			ts.crit.Lock()
			continue
		}

		// fire every timer whose fire time has passed
		for i := range ts.slots {
			s := &ts.slots[i]
			if !s.inUse || !s.active || s.callback == nil {
				continue
			}
			if time.Now().Before(s.nextFire) {
				continue
			}

			callback := s.callback
			handle := Timer{r: r, slot: i, gen: s.gen}

			if s.autoReload {
				// rescheduled from the actual firing instant, not from the
				// nominal previous deadline. the timer drifts under host
				// load instead of firing in catch-up bursts, which emulated
				// firmware tolerates far better
				s.nextFire = time.Now().Add(s.period.duration())
			} else {
				s.active = false
			}

			// the callback runs with the table lock released so it can
			// operate on timers itself without deadlocking
			ts.crit.Unlock()
			callback(handle)
			ts.crit.Lock()
		}
	}
}

// NewTimer creates a software timer. The timer is created dormant: it does
// not run until Start (or Reset) is called. For an auto-reload timer the
// period is the repeat interval; a one-shot timer fires once per Start.
// The id is an opaque tag for the callback's use.
//
// Fails with a TooManyTimers error when the timer table is full.
func (r *RTOS) NewTimer(name string, period TickType, autoReload bool, id any, callback TimerFunc) (Timer, error) {
	ts := &r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	slot := -1
	for i := range ts.slots {
		if !ts.slots[i].inUse {
			slot = i
			break
		}
	}
	if slot < 0 {
		logger.Logf("rtos", "timer %s not created: table full", name)
		return Timer{}, curated.Errorf(TooManyTimers, MaxTimers)
	}

	gen := ts.slots[slot].gen + 1
	ts.slots[slot] = timerSlot{
		inUse:      true,
		gen:        gen,
		name:       name,
		period:     period,
		autoReload: autoReload,
		id:         id,
		callback:   callback,
	}

	r.ensureTimerService()

	return Timer{r: r, slot: slot, gen: gen}, nil
}

// lookup returns the slot for the handle. must be called with the timer
// table lock held. returns nil for a stale or zero handle.
func (t Timer) lookup() *timerSlot {
	if t.r == nil || t.slot < 0 || t.slot >= MaxTimers {
		return nil
	}
	s := &t.r.timers.slots[t.slot]
	if !s.inUse || s.gen != t.gen {
		return nil
	}
	return s
}

// Start activates the timer, scheduling its next fire one period from now.
// Starting an already-active timer reschedules it.
func (t Timer) Start() bool {
	if t.r == nil {
		return false
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	s := t.lookup()
	if s == nil {
		return false
	}
	s.active = true
	s.nextFire = time.Now().Add(s.period.duration())
	ts.signalWake()
	return true
}

// Reset behaves exactly as Start: the next fire moves to one period from
// now regardless of the timer's previous state.
func (t Timer) Reset() bool {
	return t.Start()
}

// Stop deactivates the timer. A stopped one-shot timer can be started
// again.
func (t Timer) Stop() bool {
	if t.r == nil {
		return false
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	s := t.lookup()
	if s == nil {
		return false
	}
	s.active = false
	return true
}

// ChangePeriod sets a new period. An active timer is rescheduled to fire
// one new period from now.
func (t Timer) ChangePeriod(period TickType) bool {
	if t.r == nil {
		return false
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	s := t.lookup()
	if s == nil {
		return false
	}
	s.period = period
	if s.active {
		s.nextFire = time.Now().Add(period.duration())
	}
	ts.signalWake()
	return true
}

// Delete frees the timer's slot. The handle, and any copy of it, is stale
// from this point on.
func (t Timer) Delete() bool {
	if t.r == nil {
		return false
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	s := t.lookup()
	if s == nil {
		return false
	}
	s.inUse = false
	s.active = false
	s.callback = nil
	return true
}

// IsActive returns true if the timer is running: started and, for a
// one-shot timer, not yet fired.
func (t Timer) IsActive() bool {
	if t.r == nil {
		return false
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	s := t.lookup()
	return s != nil && s.active
}

// Name returns the name given to the timer at creation.
func (t Timer) Name() string {
	if t.r == nil {
		return ""
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	if s := t.lookup(); s != nil {
		return s.name
	}
	return ""
}

// ID returns the timer's opaque tag.
func (t Timer) ID() any {
	if t.r == nil {
		return nil
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	if s := t.lookup(); s != nil {
		return s.id
	}
	return nil
}

// SetID replaces the timer's opaque tag.
func (t Timer) SetID(id any) {
	if t.r == nil {
		return
	}
	ts := &t.r.timers
	ts.crit.Lock()
	defer ts.crit.Unlock()

	if s := t.lookup(); s != nil {
		s.id = id
	}
}
