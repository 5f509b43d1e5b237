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

package curated_test

import (
	"errors"
	"testing"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/test"
)

func TestIdentification(t *testing.T) {
	e := curated.Errorf("test: value = %d", 10)
	test.ExpectedSuccess(t, curated.IsAny(e))
	test.ExpectedSuccess(t, curated.Is(e, "test: value = %d"))
	test.ExpectedFailure(t, curated.Is(e, "test: value = %s"))

	// plain errors are not curated errors
	p := errors.New("test: value = 10")
	test.ExpectedFailure(t, curated.IsAny(p))
	test.ExpectedFailure(t, curated.Is(p, "test: value = %d"))
}

func TestChains(t *testing.T) {
	inner := curated.Errorf("inner: %d", 1)
	outer := curated.Errorf("outer: %v", inner)

	test.ExpectedSuccess(t, curated.Has(outer, "inner: %d"))
	test.ExpectedSuccess(t, curated.Has(outer, "outer: %v"))
	test.ExpectedFailure(t, curated.Is(outer, "inner: %d"))
}

func TestDeduplication(t *testing.T) {
	inner := curated.Errorf("mistake: %s", "oops")
	outer := curated.Errorf("mistake: %v", inner)
	test.Equate(t, outer.Error(), "mistake: oops")
}
