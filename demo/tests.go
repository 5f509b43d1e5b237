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

package demo

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/logger"
	"github.com/levkropp/cyd-emulator/nvs"
	"github.com/levkropp/cyd-emulator/rtos"
)

// queue payloads are 4-byte little-endian integers
func itob(v int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func btoi(b []byte) int {
	return int(binary.LittleEndian.Uint32(b))
}

func (s *Suite) testTasks() bool {
	var counter atomic.Int32
	mtx := s.rt.NewMutex()
	defer mtx.Delete()

	worker := func(param any) {
		id := param.(int)
		for i := 0; i < 10; i++ {
			mtx.Take(rtos.MaxDelay)
			counter.Add(1)
			mtx.Give()
			s.rt.Delay(5)
		}
		logger.Logf("test", "task %d done", id)
	}

	_, err1 := s.rt.CreateTask(worker, "cnt1", 1, 5)
	_, err2 := s.rt.CreateTask(worker, "cnt2", 2, 5)
	_, err3 := s.rt.CreateTaskPinnedToCore(worker, "cnt3", 3, 5, 1)
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}

	s.rt.Delay(300)

	if c := counter.Load(); c != 30 {
		logger.Logf("test", "task counter=%d, expected 30", c)
		return false
	}
	return true
}

func (s *Suite) testTickCount() bool {
	t1 := s.rt.TickCount()
	s.rt.Delay(100)
	t2 := s.rt.TickCount()

	// ticks are milliseconds. allow generous scheduling slack
	elapsed := int(t2 - t1)
	if elapsed < 80 || elapsed > 200 {
		logger.Logf("test", "tick elapsed=%d, expected ~100", elapsed)
		return false
	}
	return true
}

func (s *Suite) testCriticalSection() bool {
	var counter int

	worker := func(any) {
		for i := 0; i < 1000; i++ {
			s.rt.EnterCritical()
			counter++
			s.rt.ExitCritical()
		}
	}

	s.rt.CreateTask(worker, "crit1", nil, 5)
	s.rt.CreateTask(worker, "crit2", nil, 5)

	s.rt.Delay(500)

	s.rt.EnterCritical()
	c := counter
	s.rt.ExitCritical()

	if c != 2000 {
		logger.Logf("test", "critical counter=%d, expected 2000", c)
		return false
	}
	return true
}

func (s *Suite) testMutex() bool {
	mtx := s.rt.NewMutex()
	defer mtx.Delete()

	if !mtx.Take(0) {
		return false
	}

	// second take must time out, the mutex is not recursive
	if mtx.Take(0) {
		return false
	}

	mtx.Give()

	if !mtx.Take(0) {
		return false
	}
	mtx.Give()
	return true
}

func (s *Suite) testRecursiveMutex() bool {
	mtx := s.rt.NewRecursiveMutex()
	defer mtx.Delete()

	for i := 0; i < 3; i++ {
		if !mtx.TakeRecursive(rtos.MaxDelay) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		mtx.GiveRecursive()
	}

	if !mtx.TakeRecursive(0) {
		return false
	}
	mtx.GiveRecursive()
	return true
}

func (s *Suite) testBinarySemaphore() bool {
	sem := s.rt.NewBinarySemaphore()
	defer sem.Delete()

	var received atomic.Bool

	s.rt.CreateTask(func(any) {
		sem.Take(rtos.MaxDelay)
		received.Store(true)
	}, "bwait", nil, 5)

	// let the waiter block
	s.rt.Delay(50)
	if received.Load() {
		return false
	}

	sem.Give()
	s.rt.Delay(50)

	return received.Load()
}

func (s *Suite) testCountingSemaphore() bool {
	sem := s.rt.NewCountingSemaphore(3, 0)
	defer sem.Delete()

	for i := 0; i < 3; i++ {
		sem.Give()
	}

	// fourth give exceeds the maximum count
	if sem.Give() {
		return false
	}

	for i := 0; i < 3; i++ {
		if !sem.Take(0) {
			return false
		}
	}

	// fourth take finds the count at zero
	if sem.Take(0) {
		return false
	}
	return true
}

func (s *Suite) testQueue() bool {
	q := s.rt.NewQueue(5, 4)
	defer q.Delete()

	for i := 0; i < 5; i++ {
		if !q.Send(itob(i*10), 0) {
			return false
		}
	}

	// queue full
	if q.Send(itob(99), 0) {
		return false
	}

	if q.MessagesWaiting() != 5 || q.SpacesAvailable() != 0 {
		return false
	}

	out := make([]byte, 4)
	for i := 0; i < 5; i++ {
		if !q.Receive(out, 0) || btoi(out) != i*10 {
			return false
		}
	}

	// queue empty
	return !q.Receive(out, 0)
}

func (s *Suite) testQueuePeek() bool {
	q := s.rt.NewQueue(3, 4)
	defer q.Delete()

	q.Send(itob(42), 0)

	out := make([]byte, 4)
	if !q.Peek(out, 0) || btoi(out) != 42 {
		return false
	}

	// peek leaves the item in place
	if q.MessagesWaiting() != 1 {
		return false
	}

	if !q.Receive(out, 0) || btoi(out) != 42 {
		return false
	}

	return q.MessagesWaiting() == 0
}

func (s *Suite) testQueueFront() bool {
	q := s.rt.NewQueue(5, 4)
	defer q.Delete()

	q.Send(itob(1), 0)
	q.Send(itob(2), 0)
	q.SendToFront(itob(3), 0)

	out := make([]byte, 4)
	for _, want := range []int{3, 1, 2} {
		if !q.Receive(out, 0) || btoi(out) != want {
			return false
		}
	}
	return true
}

func (s *Suite) testQueueCrossTask() bool {
	q := s.rt.NewQueue(5, 4)

	s.rt.CreateTask(func(any) {
		for i := 0; i < 5; i++ {
			q.Send(itob(i+100), rtos.MaxDelay)
			s.rt.Delay(10)
		}
	}, "qsend", nil, 5)

	ok := true
	out := make([]byte, 4)
	for i := 0; i < 5; i++ {
		if !q.Receive(out, 500) || btoi(out) != i+100 {
			ok = false
			break
		}
	}

	// let the sender task exit before deleting the queue
	s.rt.Delay(50)
	q.Delete()
	return ok
}

func (s *Suite) testQueueOverwrite() bool {
	// a length-one queue used as a mailbox: the latest write wins
	q := s.rt.NewQueue(1, 4)
	defer q.Delete()

	if !q.Overwrite(itob(10)) || !q.Overwrite(itob(20)) {
		return false
	}

	out := make([]byte, 4)
	if !q.Receive(out, 0) || btoi(out) != 20 {
		return false
	}
	return q.MessagesWaiting() == 0
}

func (s *Suite) testQueueReset() bool {
	q := s.rt.NewQueue(5, 4)
	defer q.Delete()

	for i := 0; i < 3; i++ {
		q.Send(itob(i), 0)
	}
	if q.MessagesWaiting() != 3 {
		return false
	}

	q.Reset()
	if q.MessagesWaiting() != 0 || q.SpacesAvailable() != 5 {
		return false
	}

	// the queue is fully usable after a reset
	if !q.Send(itob(7), 0) {
		return false
	}
	out := make([]byte, 4)
	return q.Receive(out, 0) && btoi(out) == 7
}

const (
	evtBitA rtos.EventBits = 1 << 0
	evtBitB rtos.EventBits = 1 << 1
	evtBitC rtos.EventBits = 1 << 2
)

func (s *Suite) testEventGroup() bool {
	eg := s.rt.NewEventGroup()

	s.rt.CreateTask(func(any) {
		s.rt.Delay(30)
		eg.SetBits(evtBitA)
		s.rt.Delay(30)
		eg.SetBits(evtBitB)
		s.rt.Delay(30)
		eg.SetBits(evtBitC)
	}, "evgset", nil, 5)

	all := evtBitA | evtBitB | evtBitC
	bits := eg.WaitBits(all, true, true, 2000)

	ok := bits&all == all

	// clear-on-exit must have wiped the bits
	if ok && eg.Bits()&all != 0 {
		ok = false
	}

	s.rt.Delay(50)
	eg.Delete()
	return ok
}

func (s *Suite) testEventGroupAny() bool {
	eg := s.rt.NewEventGroup()
	defer eg.Delete()

	eg.SetBits(evtBitB)

	bits := eg.WaitBits(evtBitA|evtBitB|evtBitC, false, false, 0)
	if bits&evtBitB == 0 {
		return false
	}

	// no clear-on-exit, B stays set
	return eg.Bits()&evtBitB != 0
}

func (s *Suite) testTimerOneShot() bool {
	var fired atomic.Bool

	t, err := s.rt.NewTimer("oneshot", 50, false, nil, func(rtos.Timer) {
		fired.Store(true)
	})
	if err != nil {
		return false
	}
	defer t.Delete()

	t.Start()
	s.rt.Delay(200)

	ok := fired.Load()

	// one-shot must not fire a second time
	fired.Store(false)
	s.rt.Delay(200)
	return ok && !fired.Load()
}

func (s *Suite) testTimerPeriodic() bool {
	var count atomic.Int32

	t, err := s.rt.NewTimer("periodic", 50, true, nil, func(rtos.Timer) {
		count.Add(1)
	})
	if err != nil {
		return false
	}
	defer t.Delete()

	t.Start()
	s.rt.Delay(280)
	t.Stop()

	// 50ms period over 280ms fires about 5 times. allow some tolerance
	c := count.Load()
	if c < 4 || c > 7 {
		logger.Logf("test", "periodic count=%d, expected 4-7", c)
		return false
	}
	return true
}

func (s *Suite) testBootCounter() bool {
	ns, err := s.store.Open("system", false)
	if err != nil {
		return false
	}

	count, err := ns.GetUint32("boot_count")
	if err != nil && !curated.Is(err, nvs.NotFound) {
		return false
	}
	count++

	if err := ns.SetUint32("boot_count", count); err != nil {
		return false
	}
	if err := ns.Close(); err != nil {
		return false
	}
	logger.Logf("test", "boot count %d", count)

	// read back through a fresh read-only handle
	ns, err = s.store.Open("system", true)
	if err != nil {
		return false
	}
	defer ns.Close()

	stored, err := ns.GetUint32("boot_count")
	return err == nil && stored == count
}

func (s *Suite) testTimerID() bool {
	var ok atomic.Bool

	t, err := s.rt.NewTimer("idtest", 30, false, 42, func(t rtos.Timer) {
		if id, valid := t.ID().(int); valid && id == 42 {
			ok.Store(true)
		}
	})
	if err != nil {
		return false
	}
	defer t.Delete()

	t.Start()
	s.rt.Delay(150)
	return ok.Load()
}
