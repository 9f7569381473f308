// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import "sort"

// blame records a capability and the requirements that led to it. The first
// requirement belongs to the module whose package space holds the blame.
// Exports carry no requirements.
type blame struct {
	cap  capRef
	reqs []reqRef
}

// packages is the package space of one module.
type packages struct {
	exported map[string]blame
	imported map[string][]blame
	required map[string][]blame
	used     map[string][]blame
}

func newPackages() *packages {
	return &packages{
		exported: make(map[string]blame),
		imported: make(map[string][]blame),
		required: make(map[string][]blame),
		used:     make(map[string][]blame),
	}
}

// exportedAndReexported lists the packages visible to a module requiring the
// owner of p: its own package capabilities, substituted or not, and every
// required package it reexports.
func (s *session) exportedAndReexported(c *store, m modRef) []string {
	seen := make(map[string]bool)
	var out []string
	for _, cap := range c.capabilities(m) {
		if c.u.Capability(cap.id).Namespace != PackageNamespace {
			continue
		}
		if name := c.capName(cap); !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	if p := s.spaces[m]; p != nil {
		for _, name := range sortedKeys(p.required) {
			for _, b := range p.required[name] {
				if c.u.Requirement(b.reqs[len(b.reqs)-1].id).Reexport {
					if !seen[name] {
						seen[name] = true
						out = append(out, name)
					}
					break
				}
			}
		}
	}

	sort.Strings(out)
	return out
}

// calculatePackageSpaces computes the package space of m and, depth first,
// of every module its chosen candidates come from. cycle guards against
// import and require cycles; usesCycle bounds uses propagation.
func (s *session) calculatePackageSpaces(c *store, m modRef, usesCycle map[capRef]map[modRef]bool, cycle map[modRef]bool) {
	if cycle[m] {
		return
	}
	cycle[m] = true

	var reqs []reqRef
	var caps []capRef
	resolved := c.resolved(m)
	dynamic := false
	if resolved {
		mod := c.u.Module(m.id)
		for _, w := range mod.Wires {
			r := plainReq(w.Requirement)
			if c.u.Requirement(w.Requirement).Module != w.Importer || w.Dynamic {
				r.host = w.Importer
			}
			cap := plainCap(w.Capability)
			if c.u.Capability(w.Capability).Module != w.Exporter {
				cap.host = w.Exporter
			}
			reqs = append(reqs, r)
			caps = append(caps, cap)
		}

		// A resolved module is only in the store through a dynamic import,
		// and only one is attempted at a time.
		for _, id := range mod.DynamicRequirements {
			cand, has := c.first(plainReq(id))
			if !has {
				continue
			}
			reqs = append(reqs, plainReq(id))
			caps = append(caps, cand)
			dynamic = true
			break
		}
	} else {
		for _, r := range c.requirements(m) {
			if c.u.Requirement(r.id).Resolution == Dynamic {
				continue
			}
			cand, has := c.first(r)
			if !has {
				continue
			}
			reqs = append(reqs, r)
			caps = append(caps, cand)
		}
	}

	s.calculateExportedPackages(c, m)
	pkgs := s.spaces[m]

	for i := range reqs {
		s.calculateExportedPackages(c, c.capOwner(caps[i]))
		s.mergeCandidatePackages(c, m, reqs[i], caps[i], make(map[capRef]bool))
	}

	for i := range caps {
		s.calculatePackageSpaces(c, c.capOwner(caps[i]), usesCycle, cycle)
	}

	// Resolved package spaces are consistent already; their uses only matter
	// when a dynamic import adds something new.
	if resolved && !dynamic {
		return
	}

	for i, r := range reqs {
		switch c.u.Requirement(r.id).Namespace {
		case PackageNamespace, ModuleNamespace:
			// Covered through the imported and required maps below.
		default:
			s.mergeUses(c, m, pkgs, caps[i], []reqRef{r}, usesCycle)
		}
	}
	for _, name := range sortedKeys(pkgs.imported) {
		for _, b := range pkgs.imported[name] {
			if c.capOwner(b.cap) != m {
				s.mergeUses(c, m, pkgs, b.cap, []reqRef{b.reqs[0]}, usesCycle)
			}
		}
	}
	for _, name := range sortedKeys(pkgs.required) {
		for _, b := range pkgs.required[name] {
			s.mergeUses(c, m, pkgs, b.cap, []reqRef{b.reqs[0]}, usesCycle)
		}
	}
}

// calculateExportedPackages seeds the package space of m with the packages
// it exports. An unresolved module that also imports a package it exports
// has the export substituted by the import.
func (s *session) calculateExportedPackages(c *store, m modRef) {
	if _, has := s.spaces[m]; has {
		return
	}
	p := newPackages()

	exports := make(map[string]capRef)
	for _, cap := range c.capabilities(m) {
		if c.u.Capability(cap.id).Namespace == PackageNamespace {
			exports[c.capName(cap)] = cap
		}
	}

	if len(exports) > 0 && !c.resolved(m) {
		for _, r := range c.requirements(m) {
			if c.u.Requirement(r.id).Namespace != PackageNamespace {
				continue
			}
			if cand, has := c.first(r); has {
				delete(exports, c.capName(cand))
			}
		}
	}

	for name, cap := range exports {
		p.exported[name] = blame{cap: cap}
	}
	s.spaces[m] = p
}

// mergeCandidatePackages adds what cand makes visible to current through req.
// A module capability brings in every package the candidate exports and,
// transitively, whatever the candidate reexports.
func (s *session) mergeCandidatePackages(c *store, current modRef, req reqRef, cand capRef, visited map[capRef]bool) {
	if visited[cand] {
		return
	}
	visited[cand] = true

	switch c.u.Capability(cand.id).Namespace {
	case PackageNamespace:
		s.mergeCandidatePackage(c, current, false, req, cand)

	case ModuleNamespace:
		owner := c.capOwner(cand)
		s.calculateExportedPackages(c, owner)
		exported := s.spaces[owner].exported
		for _, name := range sortedKeys(exported) {
			s.mergeCandidatePackage(c, current, true, req, exported[name].cap)
		}

		if c.resolved(owner) {
			for _, w := range c.u.Module(owner.id).Wires {
				wr := c.u.Requirement(w.Requirement)
				if wr.Namespace != ModuleNamespace || !wr.Reexport {
					continue
				}
				cap := plainCap(w.Capability)
				if c.u.Capability(w.Capability).Module != w.Exporter {
					cap.host = w.Exporter
				}
				s.mergeCandidatePackages(c, current, req, cap, visited)
			}
			return
		}

		for _, r := range c.requirements(owner) {
			rq := c.u.Requirement(r.id)
			if rq.Namespace != ModuleNamespace || !rq.Reexport {
				continue
			}
			if next, has := c.first(r); has {
				s.mergeCandidatePackages(c, current, req, next, visited)
			}
		}
	}
}

func (s *session) mergeCandidatePackage(c *store, current modRef, requires bool, req reqRef, cand capRef) {
	if c.u.Capability(cand.id).Namespace != PackageNamespace {
		return
	}

	name := c.capName(cand)
	pkgs := s.spaces[current]
	b := blame{cap: cand, reqs: []reqRef{req}}
	if requires {
		pkgs.required[name] = append(pkgs.required[name], b)
	} else {
		pkgs.imported[name] = append(pkgs.imported[name], b)
	}
}

// mergeUses follows the uses constraints of mergeCap and records, in the
// used map of current, the provider of every used package along with the
// chain of requirements leading to it.
func (s *session) mergeUses(c *store, current modRef, pkgs *packages, mergeCap capRef, blameReqs []reqRef, cycle map[capRef]map[modRef]bool) {
	// Packages current provides to itself show up as its own space is built.
	if c.capOwner(mergeCap) == current {
		return
	}

	seen := cycle[mergeCap]
	if seen[current] {
		return
	}
	if seen == nil {
		seen = make(map[modRef]bool)
		cycle[mergeCap] = seen
	}
	seen[current] = true

	for _, src := range s.packageSources(c, mergeCap) {
		srcPkgs := s.spaces[c.capOwner(src)]
		if srcPkgs == nil {
			continue
		}

		for _, usedName := range c.u.Capability(src.id).Uses {
			var blames []blame
			if b, has := srcPkgs.exported[usedName]; has {
				blames = []blame{b}
			} else if rb := srcPkgs.required[usedName]; len(rb) > 0 {
				blames = rb
			} else {
				blames = srcPkgs.imported[usedName]
			}
			if len(blames) == 0 {
				// Not visible to the source, so it cannot leak.
				continue
			}

			for _, b := range blames {
				next := blameReqs
				if len(b.reqs) > 0 {
					next = make([]reqRef, len(blameReqs), len(blameReqs)+1)
					copy(next, blameReqs)
					next = append(next, b.reqs[len(b.reqs)-1])
				}
				pkgs.used[usedName] = append(pkgs.used[usedName], blame{cap: b.cap, reqs: next})
				s.mergeUses(c, current, pkgs, b.cap, next, cycle)
			}
		}
	}
}

// compatible reports whether a module may be exposed to both a and b for the
// same package: their package sources must nest.
func (s *session) compatible(c *store, a, b capRef) bool {
	if a == b {
		return true
	}
	as := s.packageSources(c, a)
	bs := s.packageSources(c, b)
	return containsAll(as, bs) || containsAll(bs, as)
}

// packageSources returns every capability that actually supplies the package
// behind cap: all exports of that package by the owning module plus,
// transitively, its providers through module requirements. The result is
// cached for the current pass.
func (s *session) packageSources(c *store, cap capRef) []capRef {
	if c.u.Capability(cap.id).Namespace != PackageNamespace {
		if len(c.u.Capability(cap.id).Uses) > 0 {
			return []capRef{cap}
		}
		return nil
	}

	if sources, has := s.sources[cap]; has {
		return sources
	}
	sources := s.packageSourcesInternal(c, cap, nil, make(map[capRef]bool))
	s.sources[cap] = sources
	return sources
}

func (s *session) packageSourcesInternal(c *store, cap capRef, sources []capRef, cycle map[capRef]bool) []capRef {
	if c.u.Capability(cap.id).Namespace != PackageNamespace || cycle[cap] {
		return sources
	}
	cycle[cap] = true

	name := c.capName(cap)
	owner := c.capOwner(cap)
	for _, sc := range c.capabilities(owner) {
		if c.u.Capability(sc.id).Namespace == PackageNamespace && c.capName(sc) == name {
			sources = append(sources, sc)
		}
	}

	if p := s.spaces[owner]; p != nil {
		for _, b := range p.required[name] {
			sources = s.packageSourcesInternal(c, b.cap, sources, cycle)
		}
	}
	return sources
}

func containsAll(have, want []capRef) bool {
	for _, w := range want {
		if indexCap(have, w) < 0 {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
