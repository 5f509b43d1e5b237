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

// Package rtos emulates the FreeRTOS concurrency primitives on top of the
// host scheduler, so that firmware written against the FreeRTOS API can run
// unmodified (in shape, not in language) on a development machine.
//
// The emulation maps one FreeRTOS task to one goroutine locked to its own
// OS thread. Locking the thread gives every task a stable thread id, which
// stands in for pthread_self() wherever the real RTOS needs to know "which
// task is calling": CurrentTask(), recursive mutex ownership and per-task
// deletion all key off it.
//
// Priorities, core affinity and stack depths are accepted by the task
// creation functions but are not enforced. All tasks run with equal weight
// under the host scheduler. This is deliberate: the emulation reproduces
// blocking, timeout and ordering semantics, not scheduling latencies.
//
// Every blocking operation takes a timeout in ticks (one tick is one
// millisecond; MaxDelay means wait forever). Timeouts are converted once
// into an absolute deadline and the wait then proceeds in bounded slices so
// that the RTOS shutdown token is noticed within one slice even from an
// indefinite wait. A task that observes shutdown (or its own deletion)
// while blocked is terminated on the spot with runtime.Goexit(); it never
// returns to caller code. This is how indefinite `for { Delay() }` task
// bodies exit cleanly at emulator shutdown.
package rtos
