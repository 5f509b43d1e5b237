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
)

// Queue is a fixed-capacity ring buffer of fixed-size items. Items are
// copied in on send and copied out on receive, as they are on the real
// RTOS: a queue never aliases caller memory.
//
// FIFO order is preserved except where SendToFront and Overwrite say
// otherwise.
type Queue struct {
	r *RTOS

	crit sync.Mutex

	// two wake channels: one for tasks waiting for an item, one for tasks
	// waiting for space
	notifyRecv chan struct{}
	notifySend chan struct{}

	buffer   []byte
	itemSize int
	capacity int
	head     int // next write position
	tail     int // next read position
	count    int // items currently in the queue
}

// NewQueue creates a queue holding up to length items of itemSize bytes
// each. An itemSize of zero makes a pure token queue: sends and receives
// count items but copy nothing.
func (r *RTOS) NewQueue(length, itemSize int) *Queue {
	q := &Queue{
		r:          r,
		notifyRecv: make(chan struct{}),
		notifySend: make(chan struct{}),
		itemSize:   itemSize,
		capacity:   length,
	}
	if itemSize > 0 {
		q.buffer = make([]byte, length*itemSize)
	}
	return q
}

func (q *Queue) slot(i int) []byte {
	return q.buffer[i*q.itemSize : (i+1)*q.itemSize]
}

// waitForSpace blocks until count < capacity. returns false on timeout.
// must be called with q.crit held.
func (q *Queue) waitForSpace(timeout TickType) bool {
	if q.count < q.capacity {
		return true
	}
	if timeout == 0 {
		return false
	}

	dl := newDeadline(timeout)
	for q.count >= q.capacity {
		if q.r.wait(&q.crit, &q.notifySend, dl) == timedOut {
			return false
		}
	}
	return true
}

// waitForItem blocks until count > 0. returns false on timeout. must be
// called with q.crit held.
func (q *Queue) waitForItem(timeout TickType) bool {
	if q.count > 0 {
		return true
	}
	if timeout == 0 {
		return false
	}

	dl := newDeadline(timeout)
	for q.count == 0 {
		if q.r.wait(&q.crit, &q.notifyRecv, dl) == timedOut {
			return false
		}
	}
	return true
}

// SendToBack copies the item to the back of the queue, blocking for at most
// timeout ticks while the queue is full. Returns false on timeout.
func (q *Queue) SendToBack(item []byte, timeout TickType) bool {
	q.crit.Lock()
	defer q.crit.Unlock()

	if !q.waitForSpace(timeout) {
		return false
	}

	if q.itemSize > 0 {
		copy(q.slot(q.head), item[:q.itemSize])
	}
	q.head = (q.head + 1) % q.capacity
	q.count++
	wake(&q.notifyRecv)
	return true
}

// Send is SendToBack, under the name most firmware uses.
func (q *Queue) Send(item []byte, timeout TickType) bool {
	return q.SendToBack(item, timeout)
}

// SendFromISR is a non-blocking SendToBack under the name firmware uses
// from interrupt context.
func (q *Queue) SendFromISR(item []byte) bool {
	return q.SendToBack(item, 0)
}

// SendToFront copies the item to the front of the queue so it is received
// before anything already queued. The blocking rule is the same as
// SendToBack: front insertion reorders arrival, it never displaces items.
func (q *Queue) SendToFront(item []byte, timeout TickType) bool {
	q.crit.Lock()
	defer q.crit.Unlock()

	if !q.waitForSpace(timeout) {
		return false
	}

	if q.tail == 0 {
		q.tail = q.capacity - 1
	} else {
		q.tail--
	}
	if q.itemSize > 0 {
		copy(q.slot(q.tail), item[:q.itemSize])
	}
	q.count++
	wake(&q.notifyRecv)
	return true
}

// Overwrite sends without ever blocking: if the queue is full the oldest
// item is dropped first. On a queue of capacity one this gives
// latest-value-wins semantics, which is what firmware uses it for.
func (q *Queue) Overwrite(item []byte) bool {
	q.crit.Lock()
	defer q.crit.Unlock()

	if q.count >= q.capacity {
		// discard the oldest item
		q.tail = (q.tail + 1) % q.capacity
		q.count--
	}
	if q.itemSize > 0 {
		copy(q.slot(q.head), item[:q.itemSize])
	}
	q.head = (q.head + 1) % q.capacity
	q.count++
	wake(&q.notifyRecv)
	return true
}

// Receive copies the oldest item into the provided buffer and removes it,
// blocking for at most timeout ticks while the queue is empty. Returns
// false on timeout.
func (q *Queue) Receive(item []byte, timeout TickType) bool {
	q.crit.Lock()
	defer q.crit.Unlock()

	if !q.waitForItem(timeout) {
		return false
	}

	if q.itemSize > 0 && item != nil {
		copy(item[:q.itemSize], q.slot(q.tail))
	}
	q.tail = (q.tail + 1) % q.capacity
	q.count--
	wake(&q.notifySend)
	return true
}

// ReceiveFromISR is a non-blocking Receive under the name firmware uses
// from interrupt context.
func (q *Queue) ReceiveFromISR(item []byte) bool {
	return q.Receive(item, 0)
}

// Peek is Receive without removal: the item stays at the front of the
// queue and no sender is woken.
func (q *Queue) Peek(item []byte, timeout TickType) bool {
	q.crit.Lock()
	defer q.crit.Unlock()

	if !q.waitForItem(timeout) {
		return false
	}

	if q.itemSize > 0 && item != nil {
		copy(item[:q.itemSize], q.slot(q.tail))
	}
	return true
}

// MessagesWaiting returns the number of items currently in the queue.
func (q *Queue) MessagesWaiting() int {
	q.crit.Lock()
	defer q.crit.Unlock()
	return q.count
}

// SpacesAvailable returns the number of free slots currently in the queue.
func (q *Queue) SpacesAvailable() int {
	q.crit.Lock()
	defer q.crit.Unlock()
	return q.capacity - q.count
}

// Reset atomically empties the queue. Blocked senders are woken so they can
// use the freed space; there is nothing to tell receivers.
func (q *Queue) Reset() {
	q.crit.Lock()
	defer q.crit.Unlock()

	q.head = 0
	q.tail = 0
	q.count = 0
	wake(&q.notifySend)
}

// Delete releases the queue's resources. The caller must guarantee that no
// task is blocked on the queue.
func (q *Queue) Delete() {
	q.crit.Lock()
	defer q.crit.Unlock()
	q.buffer = nil
	q.capacity = 0
}
