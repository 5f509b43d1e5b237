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

import "time"

// TickType counts RTOS ticks. One tick is one millisecond, fixed at
// initialisation, matching the configTICK_RATE_HZ of 1000 that the original
// firmware is built with.
type TickType uint32

// MaxDelay is the sentinel timeout meaning "wait forever". It is the
// equivalent of portMAX_DELAY.
const MaxDelay TickType = 0xffffffff

func (t TickType) duration() time.Duration {
	return time.Duration(t) * time.Millisecond
}

// TickCount returns the number of ticks (milliseconds) elapsed since the
// RTOS instance was created.
func (r *RTOS) TickCount() TickType {
	return TickType(time.Since(r.epoch).Milliseconds())
}
