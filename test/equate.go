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

package test

import (
	"testing"
)

// Equate is used to test equality between one value and another. Both values
// must be of the same comparable type:
//
//	var r uint32
//	r = someFunction()
//	test.Equate(t, r, uint32(10))
func Equate[T comparable](t *testing.T, value, expectedValue T) {
	t.Helper()

	if value != expectedValue {
		t.Errorf("equation of type %T failed (%v - wanted %v)", value, value, expectedValue)
	}
}
