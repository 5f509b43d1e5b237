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

package nvs_test

import (
	"bytes"
	"testing"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/nvs"
	"github.com/levkropp/cyd-emulator/test"
)

func TestRoundTrip(t *testing.T) {
	store, err := nvs.NewStore(t.TempDir())
	test.ExpectedSuccess(t, err)

	ns, err := store.Open("settings", false)
	test.ExpectedSuccess(t, err)

	test.ExpectedSuccess(t, ns.SetUint32("boot_count", 42))
	test.ExpectedSuccess(t, ns.SetInt32("offset", -7))
	test.ExpectedSuccess(t, ns.SetString("ssid", "cyd-test"))
	test.ExpectedSuccess(t, ns.SetBlob("calib", []byte{0x01, 0x02, 0x03}))
	test.ExpectedSuccess(t, ns.Commit())

	// reopen and read everything back
	ns2, err := store.Open("settings", true)
	test.ExpectedSuccess(t, err)

	u, err := ns2.GetUint32("boot_count")
	test.ExpectedSuccess(t, err)
	test.Equate(t, u, uint32(42))

	i, err := ns2.GetInt32("offset")
	test.ExpectedSuccess(t, err)
	test.Equate(t, i, int32(-7))

	s, err := ns2.GetString("ssid")
	test.ExpectedSuccess(t, err)
	test.Equate(t, s, "cyd-test")

	b, err := ns2.GetBlob("calib")
	test.ExpectedSuccess(t, err)
	if !bytes.Equal(b, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("blob round-trip mismatch: %v", b)
	}
}

func TestUncommittedWritesAreLost(t *testing.T) {
	dir := t.TempDir()

	store, err := nvs.NewStore(dir)
	test.ExpectedSuccess(t, err)

	ns, err := store.Open("volatile", false)
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, ns.SetUint32("committed", 1))
	test.ExpectedSuccess(t, ns.Commit())
	test.ExpectedSuccess(t, ns.SetUint32("dropped", 2))
	// no commit for the second key

	ns2, err := store.Open("volatile", false)
	test.ExpectedSuccess(t, err)

	_, err = ns2.GetUint32("committed")
	test.ExpectedSuccess(t, err)

	_, err = ns2.GetUint32("dropped")
	test.ExpectedFailure(t, err)
	test.ExpectedSuccess(t, curated.Is(err, nvs.NotFound))
}

func TestCloseCommits(t *testing.T) {
	store, err := nvs.NewStore(t.TempDir())
	test.ExpectedSuccess(t, err)

	ns, err := store.Open("settings", false)
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, ns.SetString("k", "v"))
	test.ExpectedSuccess(t, ns.Close())

	ns2, err := store.Open("settings", true)
	test.ExpectedSuccess(t, err)
	s, err := ns2.GetString("k")
	test.ExpectedSuccess(t, err)
	test.Equate(t, s, "v")
}

func TestTypeMismatch(t *testing.T) {
	store, err := nvs.NewStore(t.TempDir())
	test.ExpectedSuccess(t, err)

	ns, err := store.Open("settings", false)
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, ns.SetString("k", "v"))

	_, err = ns.GetUint32("k")
	test.ExpectedFailure(t, err)
	test.ExpectedSuccess(t, curated.Is(err, nvs.WrongType))
}

func TestReadOnly(t *testing.T) {
	store, err := nvs.NewStore(t.TempDir())
	test.ExpectedSuccess(t, err)

	// a read-only open of a namespace that has never been committed fails
	_, err = store.Open("missing", true)
	test.ExpectedFailure(t, err)

	ns, err := store.Open("settings", false)
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, ns.SetUint32("k", 1))
	test.ExpectedSuccess(t, ns.Commit())

	ro, err := store.Open("settings", true)
	test.ExpectedSuccess(t, err)

	err = ro.SetUint32("k", 2)
	test.ExpectedFailure(t, err)
	test.ExpectedSuccess(t, curated.Is(err, nvs.ReadOnly))
}

func TestErase(t *testing.T) {
	store, err := nvs.NewStore(t.TempDir())
	test.ExpectedSuccess(t, err)

	ns, err := store.Open("settings", false)
	test.ExpectedSuccess(t, err)
	test.ExpectedSuccess(t, ns.SetUint32("a", 1))
	test.ExpectedSuccess(t, ns.SetUint32("b", 2))
	test.Equate(t, ns.Keys(), 2)

	test.ExpectedSuccess(t, ns.Erase("a"))
	test.Equate(t, ns.Keys(), 1)
	test.ExpectedFailure(t, ns.Erase("a"))

	test.ExpectedSuccess(t, ns.EraseAll())
	test.Equate(t, ns.Keys(), 0)
}
