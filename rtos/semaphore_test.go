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
	"runtime"
	"testing"
	"time"

	"github.com/levkropp/cyd-emulator/rtos"
	"github.com/levkropp/cyd-emulator/test"
)

func TestMutex(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	mtx := r.NewMutex()

	// created available
	test.ExpectedSuccess(t, mtx.Take(0))

	// not available twice
	test.ExpectedFailure(t, mtx.Take(0))

	// available again after give
	test.ExpectedSuccess(t, mtx.Give())
	test.ExpectedSuccess(t, mtx.Take(0))
	test.ExpectedSuccess(t, mtx.Give())
}

func TestBinarySemaphore(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	sem := r.NewBinarySemaphore()

	// created empty
	test.ExpectedFailure(t, sem.Take(0))

	// give-then-take
	test.ExpectedSuccess(t, sem.Give())
	test.ExpectedSuccess(t, sem.Take(0))

	// giving twice without a take is a logic error
	test.ExpectedSuccess(t, sem.Give())
	test.ExpectedFailure(t, sem.Give())
	test.Equate(t, sem.Count(), 1)
}

func TestCountingSemaphore(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	// max 3, initial 0
	sem := r.NewCountingSemaphore(3, 0)

	// give 3 times; all succeed
	for i := 0; i < 3; i++ {
		test.ExpectedSuccess(t, sem.Give())
	}

	// a 4th give fails and leaves the count unchanged
	test.ExpectedFailure(t, sem.Give())
	test.Equate(t, sem.Count(), 3)

	// take 3 times; all succeed and the count reaches 0
	for i := 0; i < 3; i++ {
		test.ExpectedSuccess(t, sem.Take(0))
	}
	test.Equate(t, sem.Count(), 0)

	// a 4th take with zero timeout fails
	test.ExpectedFailure(t, sem.Take(0))
}

func TestTakeTimeout(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	sem := r.NewBinarySemaphore()

	// an unavailable semaphore times out rather than returning early
	start := time.Now()
	test.ExpectedFailure(t, sem.Take(50))
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("take returned after %v; wanted at least 45ms", elapsed)
	}
}

func TestTakeBlocksUntilGive(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	sem := r.NewBinarySemaphore()

	_, err := r.CreateTask(func(_ any) {
		r.Delay(20)
		sem.Give()
	}, "giver", nil, 1)
	test.ExpectedSuccess(t, err)

	test.ExpectedSuccess(t, sem.Take(rtos.MaxDelay))
}

func TestRecursiveMutex(t *testing.T) {
	// recursive mutex ownership is tracked by thread id, so the test must
	// stay on one thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := rtos.New()
	defer r.Shutdown()

	mtx := r.NewRecursiveMutex()

	// take N times from the same thread
	const depth = 5
	for i := 0; i < depth; i++ {
		test.ExpectedSuccess(t, mtx.TakeRecursive(0))
	}

	// the underlying count was decremented exactly once
	test.Equate(t, mtx.Count(), 0)

	// fully released only after exactly N matching gives
	for i := 0; i < depth-1; i++ {
		mtx.GiveRecursive()
		test.Equate(t, mtx.Count(), 0)
	}
	mtx.GiveRecursive()
	test.Equate(t, mtx.Count(), 1)
}

func TestRecursiveMutexNonOwner(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := rtos.New()
	defer r.Shutdown()

	mtx := r.NewRecursiveMutex()
	test.ExpectedSuccess(t, mtx.TakeRecursive(0))
	test.ExpectedSuccess(t, mtx.TakeRecursive(0))

	// a give from a non-owning thread is a no-op: it neither releases the
	// mutex nor corrupts the depth
	done := make(chan struct{})
	_, err := r.CreateTask(func(_ any) {
		mtx.GiveRecursive()
		test.ExpectedFailure(t, mtx.TakeRecursive(0))
		close(done)
	}, "nonowner", nil, 1)
	test.ExpectedSuccess(t, err)
	<-done

	test.Equate(t, mtx.Count(), 0)

	// the owner can still unwind its two acquisitions
	mtx.GiveRecursive()
	test.Equate(t, mtx.Count(), 0)
	mtx.GiveRecursive()
	test.Equate(t, mtx.Count(), 1)
}
