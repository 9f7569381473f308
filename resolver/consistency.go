// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

// checkConsistency verifies that nothing m is exposed to collides with what
// it exports or imports, then checks every module m imports from. On a
// collision it queues the permutations that could avoid it and returns the
// conflict; the pass that called it is over.
func (s *session) checkConsistency(c *store, dynamic bool, m modRef, visited map[modRef]bool) error {
	if (c.resolved(m) && !dynamic) || visited[m] {
		return nil
	}
	pkgs := s.spaces[m]
	if pkgs == nil {
		return nil
	}

	// Duplicate imports of one package can only come from fragments.
	for _, name := range sortedKeys(pkgs.imported) {
		blames := pkgs.imported[name]
		if len(blames) < 2 {
			continue
		}
		src := blames[0]
		for _, b := range blames[1:] {
			if c.capOwner(src.cap).id == c.capOwner(b.cap).id {
				continue
			}
			s.permutate(c, b.reqs[0], ImportPermutation)
			s.permutate(c, src.reqs[0], ImportPermutation)
			err := &UsesConflictError{
				Kind:        FragmentImportConflict,
				Module:      m.id,
				Requirement: b.reqs[0].id,
				Package:     name,
				Chains:      []Chain{s.chain(c, src), s.chain(c, b)},
				u:           c.u,
			}
			s.traceConflict(err)
			return err
		}
	}

	var perm *store
	mutated := make(map[reqRef]bool)

	for _, name := range sortedKeys(pkgs.exported) {
		eb := pkgs.exported[name]
		var err *UsesConflictError
		for _, ub := range pkgs.used[name] {
			if s.compatible(c, eb.cap, ub.cap) {
				continue
			}
			if perm == nil {
				perm = c.clone()
			}
			if err == nil {
				err = &UsesConflictError{
					Kind:        ExportUsesConflict,
					Module:      m.id,
					Requirement: ub.reqs[0].id,
					Package:     name,
					Chains:      []Chain{s.chain(c, ub)},
					u:           c.u,
				}
			}
			mutateChain(perm, ub, mutated)
		}

		if err != nil {
			if len(mutated) > 0 {
				s.queue(UsesPermutation, perm)
			}
			s.traceConflict(err)
			return err
		}
	}

	for _, name := range sortedKeys(pkgs.imported) {
		used := pkgs.used[name]
		if len(used) == 0 {
			continue
		}

		for _, ib := range pkgs.imported[name] {
			var err *UsesConflictError
			for _, ub := range used {
				if s.compatible(c, ib.cap, ub.cap) {
					continue
				}
				if perm == nil {
					perm = c.clone()
				}
				if err == nil {
					err = &UsesConflictError{
						Kind:        ImportUsesConflict,
						Module:      m.id,
						Requirement: ib.reqs[0].id,
						Package:     name,
						Chains:      []Chain{s.chain(c, ib), s.chain(c, ub)},
						u:           c.u,
					}
				}
				mutateChain(perm, ub, mutated)
			}

			if err != nil {
				if len(mutated) > 0 {
					s.queue(UsesPermutation, perm)
				}
				// Also backtrack the import decision itself, in case no
				// provider along the uses chain works out.
				if r := ib.reqs[0]; !mutated[r] {
					s.permutateIfNeeded(c, r)
				}
				s.traceConflict(err)
				return err
			}
		}
	}

	visited[m] = true

	queued := s.stats.UsesPermutations + s.stats.ImportPermutations
	for _, name := range sortedKeys(pkgs.imported) {
		for _, ib := range pkgs.imported[name] {
			owner := c.capOwner(ib.cap)
			if owner == m {
				continue
			}
			if err := s.checkConsistency(c, false, owner, visited); err != nil {
				// Nothing below could offer an alternative, so reconsider
				// the import that led there.
				if queued == s.stats.UsesPermutations+s.stats.ImportPermutations {
					s.permutate(c, ib.reqs[0], ImportPermutation)
				}
				return err
			}
		}
	}
	return nil
}

// mutateChain drops, in perm, the current choice of the deepest requirement
// along b that still has an alternative. Requirements already mutated for
// another conflict in the same pass stop the walk.
func mutateChain(perm *store, b blame, mutated map[reqRef]bool) {
	for i := len(b.reqs) - 1; i >= 0; i-- {
		r := b.reqs[i]
		if mutated[r] {
			return
		}
		if len(perm.candidatesFor(r)) > 1 {
			mutated[r] = true
			perm.dropFirst(r)
			return
		}
	}
}

// permutate queues a copy of c without the current choice for r, if r has an
// alternative.
func (s *session) permutate(c *store, r reqRef, kind PermutationKind) {
	if len(c.candidatesFor(r)) < 2 {
		return
	}
	perm := c.clone()
	perm.dropFirst(r)
	s.queue(kind, perm)
}

// permutateIfNeeded is permutate for import permutations, skipped when a
// queued permutation already starts r with a different candidate. Only first
// candidates are compared, so distinct alternatives further down may be
// missed.
func (s *session) permutateIfNeeded(c *store, r reqRef) {
	list := c.candidatesFor(r)
	if len(list) < 2 {
		return
	}
	for _, p := range s.importPerms {
		if first, has := p.first(r); has && first != list[0] {
			return
		}
	}
	s.permutate(c, r, ImportPermutation)
}

// chain turns a blame into the hop list reported with a conflict.
func (s *session) chain(c *store, b blame) Chain {
	ch := Chain{
		Provider:   c.capOwner(b.cap).id,
		Capability: b.cap.id,
	}
	for _, r := range b.reqs {
		h := Hop{
			Module:      c.reqModule(r),
			Requirement: r.id,
			Provider:    NoModule,
			Capability:  NoCapability,
		}
		if cap, has := satisfying(c, r); has {
			h.Provider = c.capOwner(cap).id
			h.Capability = cap.id
		}
		ch.Hops = append(ch.Hops, h)
	}
	return ch
}

// satisfying returns the capability currently chosen for r: the first
// candidate if r is being resolved, the wired capability if it already is.
func satisfying(c *store, r reqRef) (capRef, bool) {
	if cap, has := c.first(r); has {
		return cap, true
	}
	m := c.u.Module(c.reqModule(r))
	for _, w := range m.Wires {
		if w.Requirement != r.id {
			continue
		}
		cap := plainCap(w.Capability)
		if c.u.Capability(w.Capability).Module != w.Exporter {
			cap.host = w.Exporter
		}
		return cap, true
	}
	return capRef{}, false
}
