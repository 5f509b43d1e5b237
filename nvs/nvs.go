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

// Package nvs emulates the ESP32 non-volatile storage API with one JSON
// file per namespace. Values live in memory from open; Commit rewrites
// the namespace file atomically. Firmware that never commits loses its
// writes on shutdown, matching the hardware's flash semantics closely
// enough for emulation.
package nvs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/logger"
)

// error patterns for the nvs package.
const (
	NotFound     = "nvs: key %s not found"
	WrongType    = "nvs: key %s holds a %s"
	ReadOnly     = "nvs: namespace %s opened read-only"
	StorageError = "nvs: %v"
)

// value type tags in the namespace file.
const (
	typeU32  = "u32"
	typeI32  = "i32"
	typeStr  = "str"
	typeBlob = "blob"
)

type value struct {
	Type string `json:"type"`
	Num  int64  `json:"num,omitempty"`
	Str  string `json:"str,omitempty"`
	Blob []byte `json:"blob,omitempty"`
}

// Store is the root of the emulated NVS partition: a directory holding
// one JSON file per namespace.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) an NVS directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, curated.Errorf(StorageError, err)
	}
	return &Store{dir: dir}, nil
}

// Namespace is an open NVS namespace.
type Namespace struct {
	store    *Store
	name     string
	readOnly bool

	crit   sync.Mutex
	values map[string]value
	dirty  bool
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Open loads a namespace. A missing file is an empty namespace when
// opened read-write, and an error when opened read-only, matching the
// hardware API.
func (s *Store) Open(name string, readOnly bool) (*Namespace, error) {
	ns := &Namespace{
		store:    s,
		name:     name,
		readOnly: readOnly,
		values:   make(map[string]value),
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, curated.Errorf(StorageError, err)
		}
		if readOnly {
			return nil, curated.Errorf(NotFound, name)
		}
		return ns, nil
	}

	if err := json.Unmarshal(data, &ns.values); err != nil {
		return nil, curated.Errorf(StorageError, err)
	}

	logger.Logf("nvs", "namespace %s: %d keys", name, len(ns.values))
	return ns, nil
}

// Commit rewrites the namespace file. The write is atomic: a temporary
// file is renamed over the old one so a crash never leaves a torn file.
func (ns *Namespace) Commit() error {
	ns.crit.Lock()
	defer ns.crit.Unlock()
	return ns.commit()
}

// must be called with ns.crit held.
func (ns *Namespace) commit() error {
	if !ns.dirty {
		return nil
	}
	if ns.readOnly {
		return curated.Errorf(ReadOnly, ns.name)
	}

	data, err := json.MarshalIndent(ns.values, "", "  ")
	if err != nil {
		return curated.Errorf(StorageError, err)
	}

	path := ns.store.path(ns.name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return curated.Errorf(StorageError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return curated.Errorf(StorageError, err)
	}

	ns.dirty = false
	return nil
}

// Close commits any uncommitted writes and releases the namespace.
func (ns *Namespace) Close() error {
	ns.crit.Lock()
	defer ns.crit.Unlock()

	if ns.readOnly {
		return nil
	}
	return ns.commit()
}

func (ns *Namespace) set(key string, v value) error {
	ns.crit.Lock()
	defer ns.crit.Unlock()

	if ns.readOnly {
		return curated.Errorf(ReadOnly, ns.name)
	}
	ns.values[key] = v
	ns.dirty = true
	return nil
}

func (ns *Namespace) get(key, typ string) (value, error) {
	ns.crit.Lock()
	defer ns.crit.Unlock()

	v, ok := ns.values[key]
	if !ok {
		return value{}, curated.Errorf(NotFound, key)
	}
	if v.Type != typ {
		return value{}, curated.Errorf(WrongType, key, v.Type)
	}
	return v, nil
}

// SetUint32 stores an unsigned 32bit value.
func (ns *Namespace) SetUint32(key string, val uint32) error {
	return ns.set(key, value{Type: typeU32, Num: int64(val)})
}

// GetUint32 reads an unsigned 32bit value.
func (ns *Namespace) GetUint32(key string) (uint32, error) {
	v, err := ns.get(key, typeU32)
	if err != nil {
		return 0, err
	}
	return uint32(v.Num), nil
}

// SetInt32 stores a signed 32bit value.
func (ns *Namespace) SetInt32(key string, val int32) error {
	return ns.set(key, value{Type: typeI32, Num: int64(val)})
}

// GetInt32 reads a signed 32bit value.
func (ns *Namespace) GetInt32(key string) (int32, error) {
	v, err := ns.get(key, typeI32)
	if err != nil {
		return 0, err
	}
	return int32(v.Num), nil
}

// SetString stores a string value.
func (ns *Namespace) SetString(key, val string) error {
	return ns.set(key, value{Type: typeStr, Str: val})
}

// GetString reads a string value.
func (ns *Namespace) GetString(key string) (string, error) {
	v, err := ns.get(key, typeStr)
	if err != nil {
		return "", err
	}
	return v.Str, nil
}

// SetBlob stores an opaque byte slice.
func (ns *Namespace) SetBlob(key string, val []byte) error {
	return ns.set(key, value{Type: typeBlob, Blob: append([]byte(nil), val...)})
}

// GetBlob reads an opaque byte slice.
func (ns *Namespace) GetBlob(key string) ([]byte, error) {
	v, err := ns.get(key, typeBlob)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.Blob...), nil
}

// Erase removes one key. Erasing a missing key fails with a NotFound
// error.
func (ns *Namespace) Erase(key string) error {
	ns.crit.Lock()
	defer ns.crit.Unlock()

	if ns.readOnly {
		return curated.Errorf(ReadOnly, ns.name)
	}
	if _, ok := ns.values[key]; !ok {
		return curated.Errorf(NotFound, key)
	}
	delete(ns.values, key)
	ns.dirty = true
	return nil
}

// EraseAll removes every key in the namespace.
func (ns *Namespace) EraseAll() error {
	ns.crit.Lock()
	defer ns.crit.Unlock()

	if ns.readOnly {
		return curated.Errorf(ReadOnly, ns.name)
	}
	ns.values = make(map[string]value)
	ns.dirty = true
	return nil
}

// Keys returns the number of keys in the namespace.
func (ns *Namespace) Keys() int {
	ns.crit.Lock()
	defer ns.crit.Unlock()
	return len(ns.values)
}
