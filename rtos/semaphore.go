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

	"golang.org/x/sys/unix"
)

// the four semaphore semantics served by the one blocking primitive.
type semKind int

const (
	semMutex semKind = iota
	semRecursive
	semBinary
	semCounting
)

// Semaphore implements the four FreeRTOS semaphore kinds over one counted
// primitive. The invariant 0 <= count <= maxCount holds at all times; for
// the recursive kind, depth > 0 exactly when an owner is recorded and the
// count is decremented once no matter how many recursive acquisitions are
// outstanding.
type Semaphore struct {
	r *RTOS

	crit   sync.Mutex
	notify chan struct{}

	count    int
	maxCount int
	kind     semKind

	// recursive mutex tracking. owner is a thread id
	owner int
	depth int
}

func (r *RTOS) newSemaphore(kind semKind, initial, maxCount int) *Semaphore {
	return &Semaphore{
		r:        r,
		notify:   make(chan struct{}),
		count:    initial,
		maxCount: maxCount,
		kind:     kind,
	}
}

// NewMutex creates a mutex semaphore: max count 1, created available.
func (r *RTOS) NewMutex() *Semaphore {
	return r.newSemaphore(semMutex, 1, 1)
}

// NewRecursiveMutex creates a mutex that the owning task can take
// repeatedly. Use TakeRecursive/GiveRecursive with it.
func (r *RTOS) NewRecursiveMutex() *Semaphore {
	return r.newSemaphore(semRecursive, 1, 1)
}

// NewBinarySemaphore creates a binary semaphore: max count 1, created
// empty. It must be given before it can be taken.
func (r *RTOS) NewBinarySemaphore() *Semaphore {
	return r.newSemaphore(semBinary, 0, 1)
}

// NewCountingSemaphore creates a counting semaphore with the given maximum
// and initial counts.
func (r *RTOS) NewCountingSemaphore(maxCount, initial int) *Semaphore {
	return r.newSemaphore(semCounting, initial, maxCount)
}

// Take acquires the semaphore, blocking for at most timeout ticks. A zero
// timeout fails immediately if the semaphore is not available. Returns
// false on timeout.
func (s *Semaphore) Take(timeout TickType) bool {
	s.crit.Lock()
	defer s.crit.Unlock()

	if s.count > 0 {
		s.count--
		return true
	}

	if timeout == 0 {
		return false
	}

	dl := newDeadline(timeout)
	for s.count <= 0 {
		if s.r.wait(&s.crit, &s.notify, dl) == timedOut {
			return false
		}
	}
	s.count--
	return true
}

// Give releases the semaphore. Giving a semaphore that is already at its
// maximum count is a logic error (a binary semaphore given twice, a mutex
// released without being held): Give fails and the count is unchanged.
func (s *Semaphore) Give() bool {
	s.crit.Lock()
	defer s.crit.Unlock()

	if s.count >= s.maxCount {
		return false
	}
	s.count++
	wake(&s.notify)
	return true
}

// GiveFromISR is Give under the name firmware uses from interrupt context.
// There are no real interrupts here so no higher-priority wakeup can occur;
// the distinction is purely one of API shape.
func (s *Semaphore) GiveFromISR() bool {
	return s.Give()
}

// TakeRecursive acquires a recursive mutex. If the calling thread already
// owns the mutex the recursion depth is incremented and the call succeeds
// immediately; otherwise it behaves as Take and records the new owner.
func (s *Semaphore) TakeRecursive(timeout TickType) bool {
	self := unix.Gettid()

	s.crit.Lock()
	defer s.crit.Unlock()

	if s.depth > 0 && s.owner == self {
		s.depth++
		return true
	}

	if s.count > 0 {
		s.count--
		s.owner = self
		s.depth = 1
		return true
	}

	if timeout == 0 {
		return false
	}

	dl := newDeadline(timeout)
	for s.count <= 0 {
		if s.r.wait(&s.crit, &s.notify, dl) == timedOut {
			return false
		}
	}
	s.count--
	s.owner = self
	s.depth = 1
	return true
}

// GiveRecursive releases one level of a recursive mutex. The underlying
// count is released only when the depth reaches zero. A call from a thread
// that does not own the mutex is a no-op: it does not disturb the owner or
// the depth. Matching the observed RTOS behaviour, the call reports success
// either way.
func (s *Semaphore) GiveRecursive() bool {
	s.crit.Lock()
	defer s.crit.Unlock()

	if s.depth > 0 && s.owner == unix.Gettid() {
		s.depth--
		if s.depth == 0 {
			s.owner = 0
			s.count++
			wake(&s.notify)
		}
	}
	return true
}

// Count returns the current count. For mutexes a count of 1 means
// available.
func (s *Semaphore) Count() int {
	s.crit.Lock()
	defer s.crit.Unlock()
	return s.count
}

// Delete releases the semaphore's resources. The caller must guarantee
// that no task is blocked on the semaphore; deleting a contested semaphore
// is undefined.
func (s *Semaphore) Delete() {
	// nothing to free on the host side. the method exists so firmware
	// lifecycles translate one-to-one
}
