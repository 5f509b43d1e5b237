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

func TestTaskTableExhaustion(t *testing.T) {
	r := rtos.New()

	block := make(chan struct{})
	fn := func(_ any) { <-block }

	for i := 0; i < rtos.MaxTasks; i++ {
		_, err := r.CreateTask(fn, "filler", nil, 1)
		test.ExpectedSuccess(t, err)
	}

	// the table is full: creation fails immediately with a resource
	// exhaustion error, it does not block or retry
	_, err := r.CreateTask(fn, "overflow", nil, 1)
	test.ExpectedFailure(t, err)
	test.ExpectedSuccess(t, curated.Is(err, rtos.TooManyTasks))

	close(block)
	r.Shutdown()
}

func TestTaskSlotReuse(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	h1, err := r.CreateTask(func(_ any) {}, "short", nil, 1)
	test.ExpectedSuccess(t, err)

	// wait for the task to finish and unregister
	deadline := time.After(time.Second)
	for r.TaskName(h1) != "" {
		select {
		case <-deadline:
			t.Fatal("slot never freed")
		case <-time.After(time.Millisecond):
		}
	}

	// the stale handle must not alias a new task even if the slot is reused
	h2, err := r.CreateTask(func(_ any) {
		r.Delay(rtos.TickType(100))
	}, "long", nil, 1)
	test.ExpectedSuccess(t, err)

	test.Equate(t, r.TaskName(h1), "")
	test.Equate(t, r.TaskName(h2), "long")

	// deleting through the stale handle does nothing
	r.DeleteTask(h1)
	test.Equate(t, r.TaskName(h2), "long")
}

func TestTaskDeleteByHandle(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	var count atomic.Int32
	h, err := r.CreateTask(func(_ any) {
		for {
			count.Add(1)
			r.Delay(5)
		}
	}, "looper", nil, 1)
	test.ExpectedSuccess(t, err)

	// let it run a little, then delete it. DeleteTask joins, so no further
	// increments can happen afterwards
	time.Sleep(30 * time.Millisecond)
	r.DeleteTask(h)

	n := count.Load()
	if n == 0 {
		t.Fatal("task never ran")
	}
	time.Sleep(30 * time.Millisecond)
	test.Equate(t, count.Load(), n)
}

func TestTaskDeleteWhileBlocked(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	q := r.NewQueue(1, 4)

	started := make(chan struct{})
	h, err := r.CreateTask(func(_ any) {
		close(started)
		item := make([]byte, 4)
		q.Receive(item, rtos.MaxDelay)
	}, "blocked", nil, 1)
	test.ExpectedSuccess(t, err)
	<-started

	// give the task time to enter the indefinite wait inside the queue.
	// deleting it must unwind that wait without poisoning the queue lock
	time.Sleep(20 * time.Millisecond)
	r.DeleteTask(h)

	test.ExpectedSuccess(t, q.Send([]byte{1, 2, 3, 4}, 0))
	test.Equate(t, q.MessagesWaiting(), 1)
}

func TestTaskDeleteSelf(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	var after atomic.Bool
	done := make(chan struct{})

	_, err := r.CreateTask(func(_ any) {
		defer close(done)
		r.DeleteSelf()
		after.Store(true) // must never run
	}, "suicidal", nil, 1)
	test.ExpectedSuccess(t, err)

	<-done
	test.ExpectedFailure(t, after.Load())
}

func TestCurrentTask(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	// the test goroutine is not a task
	_, ok := r.CurrentTask()
	test.ExpectedFailure(t, ok)

	type result struct {
		handle rtos.Task
		ok     bool
	}
	resCh := make(chan result)

	// the task blocks until released so its slot is still registered when
	// the name is looked up. a returned task has no name
	release := make(chan struct{})
	h, err := r.CreateTask(func(_ any) {
		cur, ok := r.CurrentTask()
		resCh <- result{handle: cur, ok: ok}
		<-release
	}, "self-aware", nil, 1)
	test.ExpectedSuccess(t, err)

	res := <-resCh
	test.ExpectedSuccess(t, res.ok)
	test.Equate(t, res.handle, h)
	test.Equate(t, r.TaskName(res.handle), "self-aware")
	close(release)
}

func TestDelayDuration(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	done := make(chan time.Duration)
	_, err := r.CreateTask(func(_ any) {
		start := time.Now()
		r.Delay(50)
		done <- time.Since(start)
	}, "sleeper", nil, 1)
	test.ExpectedSuccess(t, err)

	if elapsed := <-done; elapsed < 45*time.Millisecond {
		t.Errorf("delay returned after %v; wanted at least 45ms", elapsed)
	}
}

func TestDelayUntilCadence(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	done := make(chan time.Duration)
	_, err := r.CreateTask(func(_ any) {
		start := time.Now()
		wake := r.TickCount()
		for i := 0; i < 5; i++ {
			// busy work shorter than the period must not stretch the cadence
			time.Sleep(2 * time.Millisecond)
			r.DelayUntil(&wake, 20)
		}
		done <- time.Since(start)
	}, "cadence", nil, 1)
	test.ExpectedSuccess(t, err)

	elapsed := <-done
	if elapsed < 90*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Errorf("five 20ms periods took %v", elapsed)
	}
}

func TestShutdownUnblocksWaiters(t *testing.T) {
	r := rtos.New()

	sem := r.NewBinarySemaphore()

	started := make(chan struct{})
	_, err := r.CreateTask(func(_ any) {
		close(started)
		// an indefinite wait with nothing to give the semaphore. shutdown
		// must terminate the task rather than leave it blocked
		sem.Take(rtos.MaxDelay)
	}, "stuck", nil, 1)
	test.ExpectedSuccess(t, err)
	<-started

	finished := make(chan struct{})
	go func() {
		r.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not unblock the waiting task")
	}
}

func TestCriticalSection(t *testing.T) {
	r := rtos.New()

	// two tasks increment a shared counter with no synchronisation other
	// than the critical section primitive
	counter := 0
	done := make(chan struct{}, 2)

	worker := func(_ any) {
		for i := 0; i < 1000; i++ {
			r.EnterCritical()
			counter++
			r.ExitCritical()
		}
		done <- struct{}{}
	}

	_, err := r.CreateTask(worker, "inc1", nil, 1)
	test.ExpectedSuccess(t, err)
	_, err = r.CreateTask(worker, "inc2", nil, 1)
	test.ExpectedSuccess(t, err)

	<-done
	<-done
	r.Shutdown()

	test.Equate(t, counter, 2000)
}

func TestTickCount(t *testing.T) {
	r := rtos.New()
	defer r.Shutdown()

	a := r.TickCount()
	time.Sleep(20 * time.Millisecond)
	b := r.TickCount()

	if b-a < 15 {
		t.Errorf("tick count advanced by %d over 20ms", b-a)
	}
}
