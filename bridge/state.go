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

package bridge

// State indicates the run loop's execution state.
type State int

// List of run loop states.
//
// PauseRequested is a transient state: the loop observes it at the top of
// the next iteration and moves to Paused. Stopped is terminal.
const (
	Running State = iota
	PauseRequested
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case PauseRequested:
		return "PauseRequested"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	}

	return ""
}
