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

package rtos_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/rtos"
	"github.com/levkropp/cyd-emulator/test"
)

func TestTimerPeriodic(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	var fires atomic.Int32

	tm, err := r.NewTimer("tick", rtos.TickType(50), true, nil, func(_ rtos.Timer) {
		fires.Add(1)
	})
	test.ExpectedSuccess(t, err)

	// timers are created dormant
	test.Equate(t, tm.IsActive(), false)
	test.ExpectedSuccess(t, tm.Start())
	test.Equate(t, tm.IsActive(), true)

	// over 275ms a 50ms timer fires 5 times. allow one either way for
	// scheduling jitter
	time.Sleep(275 * time.Millisecond)
	test.ExpectedSuccess(t, tm.Stop())

	n := fires.Load()
	if n < 4 || n > 6 {
		t.Fatalf("periodic timer fired %d times, wanted 5 +/- 1", n)
	}

	// no further fires after stop
	time.Sleep(120 * time.Millisecond)
	test.Equate(t, fires.Load(), n)
	test.Equate(t, tm.IsActive(), false)
}

func TestTimerOneShot(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	var fires atomic.Int32

	tm, err := r.NewTimer("once", rtos.TickType(30), false, nil, func(_ rtos.Timer) {
		fires.Add(1)
	})
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, tm.Start())

	time.Sleep(150 * time.Millisecond)
	test.Equate(t, fires.Load(), int32(1))
	test.Equate(t, tm.IsActive(), false)

	// restarting a one-shot arms it again
	test.ExpectedSuccess(t, tm.Start())
	time.Sleep(100 * time.Millisecond)
	test.Equate(t, fires.Load(), int32(2))
}

func TestTimerResetDefersFire(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	var fires atomic.Int32

	tm, err := r.NewTimer("reset", rtos.TickType(80), false, nil, func(_ rtos.Timer) {
		fires.Add(1)
	})
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, tm.Start())

	// keep resetting before the period elapses. the timer must not fire
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		test.ExpectedSuccess(t, tm.Reset())
	}
	test.Equate(t, fires.Load(), int32(0))

	time.Sleep(150 * time.Millisecond)
	test.Equate(t, fires.Load(), int32(1))
}

func TestTimerChangePeriod(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	var fires atomic.Int32

	tm, err := r.NewTimer("stretch", rtos.TickType(500), true, nil, func(_ rtos.Timer) {
		fires.Add(1)
	})
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, tm.Start())

	// shortening the period reschedules the next fire from now
	test.ExpectedSuccess(t, tm.ChangePeriod(rtos.TickType(20)))

	time.Sleep(150 * time.Millisecond)
	test.ExpectedSuccess(t, tm.Stop())
	if fires.Load() < 3 {
		t.Fatalf("timer fired %d times after period change, wanted at least 3", fires.Load())
	}
}

func TestTimerCallbackStopsItself(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	var fires atomic.Int32

	// the callback runs with the timer table unlocked so it can operate on
	// its own timer
	tm, err := r.NewTimer("latch", rtos.TickType(20), true, nil, func(self rtos.Timer) {
		fires.Add(1)
		self.Stop()
	})
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, tm.Start())

	time.Sleep(150 * time.Millisecond)
	test.Equate(t, fires.Load(), int32(1))
	test.Equate(t, tm.IsActive(), false)
}

func TestTimerDeleteAndStaleHandle(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	tm, err := r.NewTimer("gone", rtos.TickType(10), true, 7, func(_ rtos.Timer) {})
	test.ExpectedSuccess(t, err)
	test.Equate(t, tm.ID().(int), 7)
	test.Equate(t, tm.Name(), "gone")

	tm.SetID("tag")
	test.Equate(t, tm.ID().(string), "tag")

	test.ExpectedSuccess(t, tm.Delete())

	// operations on a deleted handle fail harmlessly
	test.ExpectedFailure(t, tm.Start())
	test.Equate(t, tm.IsActive(), false)
	test.Equate(t, tm.Name(), "")

	// the freed slot can be reused without confusing the old handle
	tm2, err := r.NewTimer("fresh", rtos.TickType(10), true, nil, func(_ rtos.Timer) {})
	test.ExpectedSuccess(t, err)
	test.Equate(t, tm2.Name(), "fresh")
	test.Equate(t, tm.Name(), "")
}

func TestTimerTableExhaustion(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	for i := 0; i < rtos.MaxTimers; i++ {
		_, err := r.NewTimer("filler", rtos.TickType(1000), false, nil, func(_ rtos.Timer) {})
		test.ExpectedSuccess(t, err)
	}

	_, err := r.NewTimer("overflow", rtos.TickType(1000), false, nil, func(_ rtos.Timer) {})
	test.ExpectedFailure(t, err)
	test.ExpectedSuccess(t, curated.Is(err, rtos.TooManyTimers))
}
