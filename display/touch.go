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

package display

import (
	"sync"

	"github.com/levkropp/cyd-emulator/logger"
)

// Touch is the emulated touch panel. The gui (or the control channel)
// writes the pointer state; firmware tasks poll it with Read.
//
// A press is latched until the next Read so a quick click is never lost
// between two polls, however slowly the polling task runs.
type Touch struct {
	crit sync.Mutex

	down bool
	x    int
	y    int

	pendingDown bool
	pendingX    int
	pendingY    int
}

// NewTouch creates a touch panel with the pointer up.
func NewTouch() *Touch {
	return &Touch{}
}

// Update sets the physical pointer state. A rising edge latches the press
// position for the next Read.
func (t *Touch) Update(down bool, x, y int) {
	t.crit.Lock()
	defer t.crit.Unlock()

	if down && !t.down {
		t.pendingDown = true
		t.pendingX = x
		t.pendingY = y
		logger.Logf("touch", "down (%d, %d)", x, y)
	}
	if !down && t.down {
		logger.Logf("touch", "up (%d, %d)", x, y)
	}
	t.x = x
	t.y = y
	t.down = down
}

// Read polls the touch state. A latched press is consumed and reported as
// down at the press position even if the pointer has already been
// released.
func (t *Touch) Read() (x, y int, down bool) {
	t.crit.Lock()
	defer t.crit.Unlock()

	if t.pendingDown {
		t.pendingDown = false
		return t.pendingX, t.pendingY, true
	}
	return t.x, t.y, t.down
}

// ClearPending drops a latched press without reporting it. Tap-detection
// loops use this after they have consumed the down edge themselves.
func (t *Touch) ClearPending() {
	t.crit.Lock()
	defer t.crit.Unlock()
	t.pendingDown = false
}
