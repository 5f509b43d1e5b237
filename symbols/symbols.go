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

// Package symbols maps guest addresses to the names in the firmware's ELF
// file. The table is used for presentation only. Emulation correctness
// never depends on a symbol being present.
package symbols

import (
	"debug/elf"
	"fmt"
	"sort"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/logger"
)

// SymbolsFileError is the pattern for any failure while reading symbols
// from an ELF file.
const SymbolsFileError = "symbols: %v"

type entry struct {
	addr uint32
	name string
}

// Table is an address to name lookup, sorted by address.
type Table struct {
	entries []entry
	sorted  bool
}

// NewTable creates an empty symbol table. Useful when no ELF file is
// available; Lookup on an empty table simply never succeeds.
func NewTable() *Table {
	return &Table{}
}

// ReadELF loads function and object symbols from a firmware ELF file.
func ReadELF(filename string) (*Table, error) {
	f, err := elf.Open(filename)
	if err != nil {
		return nil, curated.Errorf(SymbolsFileError, err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, curated.Errorf(SymbolsFileError, err)
	}

	tbl := NewTable()
	for _, s := range syms {
		if s.Name == "" || s.Value == 0 {
			continue
		}
		typ := elf.ST_TYPE(s.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_OBJECT {
			continue
		}
		tbl.Add(uint32(s.Value), s.Name)
	}

	logger.Logf("symbols", "%d symbols from %s", tbl.Count(), filename)
	return tbl, nil
}

// Add inserts a symbol. Adding is cheap; the table sorts lazily on the
// next lookup.
func (tbl *Table) Add(addr uint32, name string) {
	tbl.entries = append(tbl.entries, entry{addr: addr, name: name})
	tbl.sorted = false
}

// Count returns the number of symbols in the table.
func (tbl *Table) Count() int {
	return len(tbl.entries)
}

func (tbl *Table) sort() {
	if tbl.sorted {
		return
	}
	sort.Slice(tbl.entries, func(i, j int) bool {
		return tbl.entries[i].addr < tbl.entries[j].addr
	})
	tbl.sorted = true
}

// Lookup finds the nearest symbol at or below addr, returning its name and
// the offset of addr from the symbol's address. ok is false when the table
// is empty or addr is below the lowest symbol.
func (tbl *Table) Lookup(addr uint32) (name string, offset uint32, ok bool) {
	tbl.sort()

	i := sort.Search(len(tbl.entries), func(i int) bool {
		return tbl.entries[i].addr > addr
	})
	if i == 0 {
		return "", 0, false
	}
	e := tbl.entries[i-1]
	return e.name, addr - e.addr, true
}

// FormatAddress renders addr as "name" or "name+0xNN" when a symbol
// covers it, or as a bare hex address otherwise.
func (tbl *Table) FormatAddress(addr uint32) string {
	name, offset, ok := tbl.Lookup(addr)
	if !ok {
		return fmt.Sprintf("0x%08x", addr)
	}
	if offset == 0 {
		return name
	}
	return fmt.Sprintf("%s+0x%x", name, offset)
}
