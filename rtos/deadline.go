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
)

// waitSlice bounds every individual sleep inside a blocking wait. the
// shutdown token and the task's own cancel token are re-checked between
// slices, so no blocked task can delay process exit by more than one slice.
const waitSlice = 100 * time.Millisecond

// deadline is the absolute point in time by which a blocking call must
// complete. It is computed exactly once per call, from the relative
// timeout, and never moves afterwards: a spurious wake does not reset the
// timeout, reproducing the monotonic timeout behaviour that a tick-counting
// RTOS gives its callers.
type deadline struct {
	forever bool
	at      time.Time
}

func newDeadline(timeout TickType) deadline {
	if timeout == MaxDelay {
		return deadline{forever: true}
	}
	return deadline{at: time.Now().Add(timeout.duration())}
}

func (dl deadline) expired(now time.Time) bool {
	return !dl.forever && !now.Before(dl.at)
}

// sliceUntil returns the duration of the next wait slice: waitSlice, or the
// remaining time to the deadline if that is nearer.
func (dl deadline) sliceUntil(now time.Time) time.Duration {
	d := waitSlice
	if !dl.forever {
		if remaining := dl.at.Sub(now); remaining < d {
			d = remaining
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

type waitResult int

const (
	signalled waitResult = iota
	timedOut
)

// wait blocks the calling task until the channel held in *notify is closed
// (see wake()), or until the deadline expires. mu must be held on entry and
// is held again on return, so callers can re-evaluate their predicate
// atomically:
//
//	for q.count == 0 {
//		if r.wait(&q.crit, &q.notifyRecv, dl) == timedOut {
//			...
//		}
//	}
//
// If the RTOS shuts down, or the calling task is deleted, while the wait is
// in progress, the goroutine is terminated with runtime.Goexit() and wait
// never returns. The mutex is re-acquired first so that the callers'
// deferred unlocks, which Goexit runs, stay balanced.
func (r *RTOS) wait(mu *sync.Mutex, notify *chan struct{}, dl deadline) waitResult {
	cancel := r.currentCancel()

	for {
		now := time.Now()
		if dl.expired(now) {
			return timedOut
		}

		// capture the current notify channel before releasing the lock. a
		// wake between here and the select below closes this channel, so
		// the wake cannot be lost
		ch := *notify
		mu.Unlock()

		slice := time.NewTimer(dl.sliceUntil(now))

		var woken bool
		select {
		case <-ch:
			woken = true
		case <-slice.C:
		case <-r.shutdown:
			slice.Stop()
			mu.Lock()
			runtime.Goexit()
		case <-cancel:
			slice.Stop()
			mu.Lock()
			runtime.Goexit()
		}
		slice.Stop()

		mu.Lock()
		if woken {
			return signalled
		}
	}
}

// wake signals every task blocked on the notify channel. waiters always
// re-evaluate their predicate after waking, so waking more tasks than can
// proceed is safe. no FIFO order among waiters is guaranteed. must be
// called with the owning mutex held.
func wake(notify *chan struct{}) {
	close(*notify)
	*notify = make(chan struct{})
}
