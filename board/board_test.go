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

package board_test

import (
	"strings"
	"testing"

	"github.com/levkropp/cyd-emulator/board"
	"github.com/levkropp/cyd-emulator/test"
)

func TestFind(t *testing.T) {
	p, ok := board.Find("3248S035C")
	test.ExpectedSuccess(t, ok)
	test.Equate(t, p.DisplayWidth, 480)
	test.Equate(t, p.DisplayHeight, 320)
	test.Equate(t, p.ChipModel, board.ChipESP32)

	// model names match case insensitively
	p, ok = board.Find("8048s070c")
	test.ExpectedSuccess(t, ok)
	test.Equate(t, p.ChipModel, board.ChipESP32S3)
	test.Equate(t, p.USBOTG, true)

	_, ok = board.Find("NOTABOARD")
	test.ExpectedFailure(t, ok)
}

func TestDefault(t *testing.T) {
	p := board.Default()
	test.Equate(t, p.Model, board.DefaultModel)
	test.Equate(t, p.DisplayWidth, 320)
	test.Equate(t, p.DisplayHeight, 240)
	test.Equate(t, p.Cores, 2)
}

func TestList(t *testing.T) {
	var b strings.Builder
	board.List(&b)
	out := b.String()

	for _, p := range board.Profiles() {
		if !strings.Contains(out, p.Model) {
			t.Fatalf("board list is missing %s", p.Model)
		}
	}
	if !strings.Contains(out, "(default)") {
		t.Fatal("board list does not mark the default")
	}
}
