// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"github.com/armon/go-radix"
	"github.com/modwire/modwire/resolver"
)

// Typed wrapper around a radix tree mapping capability names to the ids of
// every capability with that name. It saves type asserting everywhere else.
//
// Only what the catalog needs is implemented; capabilities are never removed.

type capTrie struct {
	t *radix.Tree
}

func newCapTrie() capTrie {
	return capTrie{
		t: radix.New(),
	}
}

// Add appends id to the list under name.
func (t capTrie) Add(name string, id resolver.CapID) {
	ids, _ := t.Get(name)
	t.t.Insert(name, append(ids, id))
}

// Get is used to lookup a specific key, returning the value and if it was found
func (t capTrie) Get(name string) ([]resolver.CapID, bool) {
	if v, has := t.t.Get(name); has {
		return v.([]resolver.CapID), has
	}
	return nil, false
}

// WalkPrefix calls fn for every name beginning with prefix, in lexical order.
func (t capTrie) WalkPrefix(prefix string, fn func(name string, ids []resolver.CapID)) {
	t.t.WalkPrefix(prefix, func(s string, v interface{}) bool {
		fn(s, v.([]resolver.CapID))
		return false
	})
}

// Walk calls fn for every name in the tree, in lexical order.
func (t capTrie) Walk(fn func(name string, ids []resolver.CapID)) {
	t.t.Walk(func(s string, v interface{}) bool {
		fn(s, v.([]resolver.CapID))
		return false
	})
}
