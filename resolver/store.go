// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import "sort"

// store is the candidate bookkeeping for one resolve attempt. It maps every
// populated requirement to its remaining candidates, in preference order, and
// every candidate back to the requirements depending on it.
//
// Backtracking never edits a store in place once package spaces have been
// computed from it; a permutation is a clone with one candidate dropped.
type store struct {
	u Universe

	cands map[reqRef][]capRef
	deps  map[capRef][]reqRef

	// Shared between a store and its clones. The fragment index and wrapped
	// hosts are read-only once fragments have been merged.
	frags   map[ModuleID]*hostFragments
	wrapped map[ModuleID]*wrappedHost
	results map[ModuleID]*populateResult
	roots   map[ModuleID]bool

	merged bool
}

// hostFragments indexes the candidate fragments of one host by symbolic
// name, each list ordered by descending version.
type hostFragments struct {
	names  []string
	byName map[string][]fragmentEntry
}

type fragmentEntry struct {
	module ModuleID
	req    reqRef
	host   capRef
}

func newStore(u Universe) *store {
	return &store{
		u:       u,
		cands:   make(map[reqRef][]capRef),
		deps:    make(map[capRef][]reqRef),
		frags:   make(map[ModuleID]*hostFragments),
		wrapped: make(map[ModuleID]*wrappedHost),
		results: make(map[ModuleID]*populateResult),
		roots:   make(map[ModuleID]bool),
	}
}

// add records the candidates of a requirement. The store takes ownership of
// the slice.
func (c *store) add(r reqRef, caps []capRef) {
	c.cands[r] = caps
	isHost := c.u.Requirement(r.id).Namespace == HostNamespace
	for _, cap := range caps {
		c.addDependent(cap, r)
		if isHost {
			c.indexFragment(r, cap)
		}
	}
}

func (c *store) addDependent(cap capRef, r reqRef) {
	for _, have := range c.deps[cap] {
		if have == r {
			return
		}
	}
	c.deps[cap] = append(c.deps[cap], r)
}

func (c *store) removeDependent(cap capRef, r reqRef) {
	list := c.deps[cap]
	for i, have := range list {
		if have == r {
			c.deps[cap] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (c *store) indexFragment(r reqRef, host capRef) {
	frag := c.u.Module(c.u.Requirement(r.id).Module)
	hid := c.capOwner(host).id

	hf, has := c.frags[hid]
	if !has {
		hf = &hostFragments{byName: make(map[string][]fragmentEntry)}
		c.frags[hid] = hf
	}

	list, has := hf.byName[frag.SymbolicName]
	if !has {
		hf.names = append(hf.names, frag.SymbolicName)
		sort.Strings(hf.names)
	}
	for _, e := range list {
		if e.module == frag.ID {
			return
		}
	}

	// Keep descending version order; equal versions stay in insertion order.
	pos := len(list)
	for i, e := range list {
		if c.u.Module(e.module).Version.LessThan(frag.Version) {
			pos = i
			break
		}
	}
	list = append(list, fragmentEntry{})
	copy(list[pos+1:], list[pos:])
	list[pos] = fragmentEntry{module: frag.ID, req: r, host: host}
	hf.byName[frag.SymbolicName] = list
}

func (c *store) unindexFragment(r reqRef, host capRef) {
	hid := c.capOwner(host).id
	hf, has := c.frags[hid]
	if !has {
		return
	}
	name := c.u.Module(c.u.Requirement(r.id).Module).SymbolicName
	list := hf.byName[name]
	for i, e := range list {
		if e.req == r {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) > 0 {
		hf.byName[name] = list
		return
	}

	delete(hf.byName, name)
	for i, n := range hf.names {
		if n == name {
			hf.names = append(hf.names[:i:i], hf.names[i+1:]...)
			break
		}
	}
	if len(hf.names) == 0 {
		delete(c.frags, hid)
	}
}

// candidatesFor returns the remaining candidates of r. The slice belongs to
// the store.
func (c *store) candidatesFor(r reqRef) []capRef {
	return c.cands[r]
}

func (c *store) first(r reqRef) (capRef, bool) {
	list := c.cands[r]
	if len(list) == 0 {
		return capRef{}, false
	}
	return list[0], true
}

// dropFirst removes the currently preferred candidate of r.
func (c *store) dropFirst(r reqRef) {
	list := c.cands[r]
	if len(list) == 0 {
		return
	}
	c.cands[r] = list[1:len(list):len(list)]
}

// removeRequirement forgets r entirely. It never cascades.
func (c *store) removeRequirement(r reqRef) {
	list, has := c.cands[r]
	if !has {
		return
	}
	delete(c.cands, r)

	isHost := c.u.Requirement(r.id).Namespace == HostNamespace
	for _, cap := range list {
		c.removeDependent(cap, r)
		if isHost {
			c.unindexFragment(r, cap)
		}
	}
}

// removeCapability takes cap out of every candidate list. A mandatory
// requirement left without candidates fails its module, which is returned
// for the caller to remove in turn; if that module is a resolve root the
// removal fails instead.
func (c *store) removeCapability(cap capRef) ([]ModuleID, error) {
	dependents, has := c.deps[cap]
	if !has {
		return nil, nil
	}
	delete(c.deps, cap)

	var cascade []ModuleID
	for _, r := range dependents {
		list := c.cands[r]
		idx := indexCap(list, cap)
		if idx < 0 {
			continue
		}
		list = append(list[:idx:idx], list[idx+1:]...)
		if len(list) > 0 {
			c.cands[r] = list
			continue
		}

		delete(c.cands, r)
		if c.u.Requirement(r.id).Optional() {
			continue
		}

		owner := c.reqModule(r)
		err := newMissingRequirementError(c.u, owner, r.id, nil)
		if c.roots[owner] {
			return cascade, err
		}
		c.fail(owner, err)
		cascade = append(cascade, owner)
	}
	return cascade, nil
}

// removeModule removes m and, transitively, every module that loses its last
// candidate for a mandatory requirement along the way.
func (c *store) removeModule(m ModuleID) error {
	seen := map[ModuleID]bool{m: true}
	queue := []ModuleID{m}
	for len(queue) > 0 {
		cur := c.u.Module(queue[0])
		queue = queue[1:]

		for _, rid := range cur.Requirements {
			c.removeRequirement(plainReq(rid))
		}
		for _, cid := range cur.Capabilities {
			more, err := c.removeCapability(plainCap(cid))
			if err != nil {
				return err
			}
			for _, id := range more {
				if !seen[id] {
					seen[id] = true
					queue = append(queue, id)
				}
			}
		}
	}
	return nil
}

// clone returns a permutation of c. Candidate lists and dependent sets are
// copied; everything that is read-only after merging is shared.
func (c *store) clone() *store {
	n := &store{
		u:       c.u,
		cands:   make(map[reqRef][]capRef, len(c.cands)),
		deps:    make(map[capRef][]reqRef, len(c.deps)),
		frags:   c.frags,
		wrapped: c.wrapped,
		results: c.results,
		roots:   c.roots,
		merged:  c.merged,
	}
	for r, list := range c.cands {
		n.cands[r] = append([]capRef(nil), list...)
	}
	for cap, list := range c.deps {
		n.deps[cap] = append([]reqRef(nil), list...)
	}
	return n
}

// wrappedHost returns the view of m the algorithm works with: the composite
// of m and its selected fragments if there is one, m itself otherwise.
func (c *store) wrappedHost(m ModuleID) modRef {
	if _, has := c.wrapped[m]; has {
		return modRef{id: m, wrapped: true}
	}
	return plainMod(m)
}

// capOwner returns the module serving cap.
func (c *store) capOwner(cap capRef) modRef {
	if cap.host == NoModule {
		return plainMod(c.u.Capability(cap.id).Module)
	}
	if c.u.Module(cap.host).Resolved {
		return plainMod(cap.host)
	}
	return c.wrappedHost(cap.host)
}

// reqModule returns the module a requirement is resolved for.
func (c *store) reqModule(r reqRef) ModuleID {
	if r.host != NoModule {
		return r.host
	}
	return c.u.Requirement(r.id).Module
}

func (c *store) resolved(m modRef) bool {
	return !m.wrapped && c.u.Module(m.id).Resolved
}

func (c *store) capName(cap capRef) string {
	return c.u.Capability(cap.id).Name
}

// capabilities returns the capabilities visible through m. For a resolved
// module these are its wired capabilities: declared ones plus those of
// attached fragments, minus packages it imports instead of exporting.
func (c *store) capabilities(m modRef) []capRef {
	if m.wrapped {
		return c.wrapped[m.id].caps
	}

	mod := c.u.Module(m.id)
	if !mod.Resolved {
		out := make([]capRef, 0, len(mod.Capabilities))
		for _, id := range mod.Capabilities {
			out = append(out, plainCap(id))
		}
		return out
	}

	substituted := make(map[string]bool)
	for _, w := range mod.Wires {
		if !w.Dynamic && c.u.Requirement(w.Requirement).Namespace == PackageNamespace {
			substituted[c.u.Capability(w.Capability).Name] = true
		}
	}

	var out []capRef
	for _, id := range mod.Capabilities {
		cap := c.u.Capability(id)
		if cap.Namespace == PackageNamespace && substituted[cap.Name] {
			continue
		}
		out = append(out, plainCap(id))
	}
	for _, f := range c.u.Fragments(m.id) {
		for _, id := range c.u.Module(f).Capabilities {
			cap := c.u.Capability(id)
			if cap.Namespace == PackageNamespace && !substituted[cap.Name] {
				out = append(out, capRef{id: id, host: m.id})
			}
		}
	}
	return out
}

// requirements returns the requirements of an unresolved module view.
func (c *store) requirements(m modRef) []reqRef {
	if m.wrapped {
		return c.wrapped[m.id].reqs
	}
	mod := c.u.Module(m.id)
	out := make([]reqRef, 0, len(mod.Requirements))
	for _, id := range mod.Requirements {
		out = append(out, plainReq(id))
	}
	return out
}

func indexCap(list []capRef, cap capRef) int {
	for i, have := range list {
		if have == cap {
			return i
		}
	}
	return -1
}
