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

package demo_test

import (
	"testing"
	"time"

	"github.com/levkropp/cyd-emulator/demo"
	"github.com/levkropp/cyd-emulator/display"
	"github.com/levkropp/cyd-emulator/nvs"
	"github.com/levkropp/cyd-emulator/rtos"
	"github.com/levkropp/cyd-emulator/test"
)

// the suite exercises real delays so the whole run takes a few seconds
func TestSelfTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("self-test suite runs for several seconds")
	}

	rt := rtos.New()
	defer rt.Shutdown()

	disp := display.NewDisplay(320, 240)

	store, err := nvs.NewStore(t.TempDir())
	test.ExpectedSuccess(t, err)

	suite := demo.NewSuite(rt, disp, demo.WithStore(store))
	_, err = suite.Start()
	test.ExpectedSuccess(t, err)

	select {
	case <-suite.Done():
	case <-time.After(20 * time.Second):
		t.Fatal("suite did not finish")
	}

	test.Equate(t, suite.Failed(), 0)
	test.Equate(t, suite.Passed(), 19)

	// the suite paints something on every run
	painted := false
	for _, px := range disp.Snapshot(nil) {
		if px != display.Black {
			painted = true
			break
		}
	}
	test.Equate(t, painted, true)
}
