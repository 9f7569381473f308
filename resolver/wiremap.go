// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

// populateWireMap adds wires for m and, before it, for every unresolved
// module m's chosen candidates come from. A wrapped host also produces the
// host wire of each of its fragments, keyed by the fragment.
func (s *session) populateWireMap(c *store, m modRef, wires map[ModuleID][]Wire) {
	if c.resolved(m) {
		return
	}
	if _, has := wires[m.id]; has {
		return
	}
	// Placeholder; cuts cycles back to m.
	wires[m.id] = []Wire{}

	var pkgWires, modWires, otherWires []Wire
	for _, r := range c.requirements(m) {
		req := c.u.Requirement(r.id)
		if req.Resolution == Dynamic {
			continue
		}
		cand, has := c.first(r)
		if !has {
			continue
		}
		owner := c.capOwner(cand)
		if owner == m {
			continue
		}
		if !c.resolved(owner) && !c.u.Module(owner.id).IsFragment() {
			s.populateWireMap(c, owner, wires)
		}

		w := Wire{
			Importer:    m.id,
			Requirement: r.id,
			Exporter:    owner.id,
			Capability:  cand.id,
		}
		switch req.Namespace {
		case PackageNamespace:
			w.Package = c.capName(cand)
			pkgWires = append(pkgWires, w)
		case ModuleNamespace:
			w.Packages = s.exportedAndReexported(c, owner)
			modWires = append(modWires, w)
		default:
			otherWires = append(otherWires, w)
		}
	}

	out := make([]Wire, 0, len(pkgWires)+len(modWires)+len(otherWires))
	out = append(out, pkgWires...)
	out = append(out, modWires...)
	out = append(out, otherWires...)
	wires[m.id] = out

	if !m.wrapped {
		return
	}
	hostCap := c.u.Module(m.id).HostCapability()
	for _, f := range c.wrapped[m.id].fragments {
		wires[f] = append(wires[f], Wire{
			Importer:    f,
			Requirement: c.u.Module(f).HostRequirement(),
			Exporter:    m.id,
			Capability:  hostCap,
		})
	}
}

// populateDynamicWireMap builds the result of a dynamic import of pkg by the
// resolved module m through its dynamic requirement dyn.
func (s *session) populateDynamicWireMap(c *store, m ModuleID, dyn ReqID, pkg string) map[ModuleID][]Wire {
	wires := map[ModuleID][]Wire{m: {}}
	self := plainMod(m)

	var out []Wire
	for _, b := range s.spaces[self].imported[pkg] {
		if b.reqs[0].id != dyn {
			continue
		}
		owner := c.capOwner(b.cap)
		if owner == self {
			continue
		}
		if !c.resolved(owner) {
			s.populateWireMap(c, owner, wires)
		}
		out = append(out, Wire{
			Importer:    m,
			Requirement: dyn,
			Exporter:    owner.id,
			Capability:  b.cap.id,
			Package:     pkg,
			Dynamic:     true,
		})
	}
	wires[m] = out
	return wires
}
