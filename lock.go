// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package modwire

import (
	"bytes"
	"encoding/hex"
	"io"
	"sort"

	"github.com/modwire/modwire/resolver"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// LockName is the wiring lock file name used by modwire.
const LockName = "wiring.lock"

// Lock is the recorded outcome of a resolve: every wire it produced, keyed by
// module names rather than ids so it survives reinstalls.
type Lock struct {
	// Memo is the digest of the inputs the wires were computed from.
	Memo  []byte
	Wires []LockedWire
}

// LockedWire is one wire as stored in a lock.
type LockedWire struct {
	Importer  string   `toml:"importer" json:"importer"`
	Namespace string   `toml:"namespace" json:"namespace"`
	Name      string   `toml:"name" json:"name"`
	Exporter  string   `toml:"exporter" json:"exporter"`
	Packages  []string `toml:"packages,omitempty" json:"packages,omitempty"`
	Dynamic   bool     `toml:"dynamic,omitempty" json:"dynamic,omitempty"`
}

type rawLock struct {
	Memo  string       `toml:"memo"`
	Wires []LockedWire `toml:"wire"`
}

// NewLock converts a wire map into lock form. A module that resolved with no
// wires at all is recorded with a single wire that has an empty namespace.
func NewLock(u resolver.Universe, wires map[resolver.ModuleID][]resolver.Wire, memo []byte) *Lock {
	l := &Lock{Memo: memo}
	for id, ws := range wires {
		m := u.Module(id)
		if len(ws) == 0 {
			l.Wires = append(l.Wires, LockedWire{Importer: m.String()})
			continue
		}
		for _, w := range ws {
			l.Wires = append(l.Wires, LockedWire{
				Importer:  m.String(),
				Namespace: string(u.Requirement(w.Requirement).Namespace),
				Name:      u.Capability(w.Capability).Name,
				Exporter:  u.Module(w.Exporter).String(),
				Packages:  w.Packages,
				Dynamic:   w.Dynamic,
			})
		}
	}
	sort.Sort(SortedLockedWires(l.Wires))
	return l
}

// Modules returns the names of the modules the lock records, sorted.
func (l *Lock) Modules() []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range l.Wires {
		if !seen[w.Importer] {
			seen[w.Importer] = true
			out = append(out, w.Importer)
		}
	}
	sort.Strings(out)
	return out
}

// ReadLock reads a lock written by MarshalTOML.
func ReadLock(r io.Reader) (*Lock, error) {
	buf := &bytes.Buffer{}
	_, err := buf.ReadFrom(r)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read byte stream")
	}

	raw := rawLock{}
	err = toml.Unmarshal(buf.Bytes(), &raw)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to parse the lock as TOML")
	}

	memo, err := hex.DecodeString(raw.Memo)
	if err != nil {
		return nil, errors.Errorf("invalid hash digest in lock's memo field")
	}

	l := &Lock{
		Memo:  memo,
		Wires: raw.Wires,
	}
	sort.Sort(SortedLockedWires(l.Wires))
	return l, nil
}

// MarshalTOML serializes this lock into TOML via an intermediate raw form.
func (l *Lock) MarshalTOML() ([]byte, error) {
	raw := rawLock{
		Memo:  hex.EncodeToString(l.Memo),
		Wires: l.Wires,
	}
	result, err := toml.Marshal(raw)
	return result, errors.Wrap(err, "Unable to marshal lock to TOML string")
}

// Equivalent reports whether two locks record the same inputs and wires.
func (l *Lock) Equivalent(o *Lock) bool {
	if !bytes.Equal(l.Memo, o.Memo) || len(l.Wires) != len(o.Wires) {
		return false
	}
	for i := range l.Wires {
		a, b := l.Wires[i], o.Wires[i]
		if a.Importer != b.Importer || a.Namespace != b.Namespace || a.Name != b.Name ||
			a.Exporter != b.Exporter || a.Dynamic != b.Dynamic || len(a.Packages) != len(b.Packages) {
			return false
		}
		for j := range a.Packages {
			if a.Packages[j] != b.Packages[j] {
				return false
			}
		}
	}
	return true
}

// SortedLockedWires orders wires by importer, namespace, name, then exporter.
type SortedLockedWires []LockedWire

func (s SortedLockedWires) Len() int      { return len(s) }
func (s SortedLockedWires) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s SortedLockedWires) Less(i, j int) bool {
	a, b := s[i], s[j]
	switch {
	case a.Importer != b.Importer:
		return a.Importer < b.Importer
	case a.Namespace != b.Namespace:
		return a.Namespace < b.Namespace
	case a.Name != b.Name:
		return a.Name < b.Name
	case a.Exporter != b.Exporter:
		return a.Exporter < b.Exporter
	}
	return !a.Dynamic && b.Dynamic
}
