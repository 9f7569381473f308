// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

type populateMode uint8

const (
	// populateMandatory modules must populate; failure fails the resolve.
	populateMandatory populateMode = iota
	// populateOptional modules are populated if possible.
	populateOptional
	// populateOnDemand fragments are only populated if one of their hosts
	// already is.
	populateOnDemand
)

// populateResult is the per-module outcome of candidate population. While a
// module is being populated, progress holds its partial state so that a
// dependency cycle leading back to it can pick up where it left off.
type populateResult struct {
	err      error
	done     bool
	progress *populateProgress
}

type populateProgress struct {
	// cycles counts re-entries through dependency cycles; results are only
	// recorded once the outermost visit completes.
	cycles    int
	remaining []ReqID
	local     []reqCandidates
}

type reqCandidates struct {
	r    reqRef
	caps []capRef
}

func (c *store) fail(m ModuleID, err error) {
	c.results[m] = &populateResult{err: err}
}

func (c *store) failed(m ModuleID) bool {
	r := c.results[m]
	return r != nil && r.err != nil
}

func (c *store) isPopulated(m ModuleID) bool {
	r := c.results[m]
	return r != nil && r.done
}

// populate computes candidates for m and, recursively, for every unresolved
// module that could satisfy them. Only mandatory failures are returned.
func (c *store) populate(st State, m ModuleID, mode populateMode) error {
	mod := c.u.Module(m)
	if mode == populateMandatory && mod.IsFragment() && mod.Resolved {
		// Already attached; it only needs wires if it can attach to another
		// host.
		mode = populateOptional
	}

	if r := c.results[m]; r != nil && (r.done || r.err != nil) {
		if mode == populateMandatory {
			c.roots[m] = true
			return r.err
		}
		return nil
	}

	if !mod.IsFragment() && mod.Resolved {
		return nil
	}
	if mode == populateOnDemand && (!mod.IsFragment() || !c.populateFragmentOnDemand(st, m)) {
		return nil
	}

	if mode == populateMandatory {
		c.roots[m] = true
	}
	err := c.populateModule(st, m)
	if err != nil && mode == populateMandatory {
		return err
	}
	return nil
}

func (c *store) populateModule(st State, m ModuleID) error {
	r := c.results[m]
	if r != nil {
		if r.err != nil {
			return r.err
		}
		if r.done {
			return nil
		}
	}

	mod := c.u.Module(m)
	if r == nil {
		if err := c.checkEnvironment(st, mod); err != nil {
			c.fail(m, err)
			return err
		}
		r = &populateResult{
			progress: &populateProgress{
				remaining: append([]ReqID(nil), mod.Requirements...),
			},
		}
		c.results[m] = r
	} else {
		r.progress.cycles++
	}

	p := r.progress
	for len(p.remaining) > 0 {
		rid := p.remaining[0]
		p.remaining = p.remaining[1:]

		req := c.u.Requirement(rid)
		if req.Resolution == Dynamic || !st.IsEffective(req) {
			continue
		}

		caps, cause := c.processCandidates(st, m, toCapRefs(st.CandidatesFor(req, true)))

		// A deeper visit through a cycle may already have failed m.
		if c.failed(m) {
			return c.results[m].err
		}
		if len(caps) == 0 && !req.Optional() {
			err := newMissingRequirementError(c.u, m, rid, cause)
			c.fail(m, err)
			return err
		}
		if len(caps) > 0 {
			p.local = append(p.local, reqCandidates{r: plainReq(rid), caps: caps})
		}
	}

	if p.cycles > 0 {
		p.cycles--
		return nil
	}

	r.done = true
	r.progress = nil
	for _, rc := range p.local {
		c.add(rc.r, rc.caps)
	}
	return nil
}

// populateFragmentOnDemand primes the population of fragment m with the
// hosts that are already populated. It reports false if there are none.
func (c *store) populateFragmentOnDemand(st State, m ModuleID) bool {
	mod := c.u.Module(m)
	hr := mod.HostRequirement()

	var hosts []capRef
	for _, id := range st.CandidatesFor(c.u.Requirement(hr), false) {
		if c.isPopulated(c.u.Capability(id).Module) {
			hosts = append(hosts, plainCap(id))
		}
	}
	if len(hosts) == 0 {
		return false
	}

	if err := c.checkEnvironment(st, mod); err != nil {
		c.fail(m, err)
		return false
	}

	var remaining []ReqID
	for _, rid := range mod.Requirements {
		if rid != hr {
			remaining = append(remaining, rid)
		}
	}
	// populateModule counts this as a re-entry, bringing cycles to zero.
	c.results[m] = &populateResult{
		progress: &populateProgress{
			cycles:    -1,
			remaining: remaining,
			local:     []reqCandidates{{r: plainReq(hr), caps: hosts}},
		},
	}
	return true
}

// populateDynamic seeds the store for a dynamic import of resolved module m.
func (c *store) populateDynamic(st State, m ModuleID, dyn ReqID, caps []capRef) error {
	c.roots[m] = true

	caps, cause := c.processCandidates(st, m, caps)
	if len(caps) == 0 {
		return newMissingRequirementError(c.u, m, dyn, cause)
	}

	c.add(plainReq(dyn), caps)
	c.results[m] = &populateResult{done: true}
	return nil
}

// processCandidates populates the modules behind caps, dropping candidates
// whose module cannot populate, and adds a hosted capability for every host
// a resolved fragment candidate is attached to. The first population failure
// is returned alongside.
func (c *store) processCandidates(st State, m ModuleID, caps []capRef) ([]capRef, error) {
	var cause error
	var fragCaps []capRef
	out := make([]capRef, 0, len(caps))
	for _, cap := range caps {
		owner := c.u.Module(c.u.Capability(cap.id).Module)
		if owner.IsFragment() {
			fragCaps = append(fragCaps, cap)
		}
		if (owner.IsFragment() || !owner.Resolved) && owner.ID != m {
			if err := c.populateModule(st, owner.ID); err != nil {
				if cause == nil {
					cause = err
				}
				continue
			}
		}
		out = append(out, cap)
	}

	for _, fc := range fragCaps {
		frag := c.u.Module(c.u.Capability(fc.id).Module)
		if !frag.Resolved {
			continue
		}
		isPkg := c.u.Capability(fc.id).Namespace == PackageNamespace
		for _, w := range frag.Wires {
			if w.Requirement != frag.HostRequirement() {
				continue
			}
			hosted := capRef{id: fc.id, host: w.Exporter}
			// A substituted fragment export is not offered by the host.
			if isPkg && indexCap(c.capabilities(plainMod(w.Exporter)), hosted) < 0 {
				continue
			}
			out = c.insertHosted(out, hosted)
		}
	}
	return out, cause
}

// insertHosted places a capability of a resolved host after the other
// resolved providers and ahead of unresolved ones.
func (c *store) insertHosted(list []capRef, cap capRef) []capRef {
	if indexCap(list, cap) >= 0 {
		return list
	}
	pos := len(list)
	for i, have := range list {
		if !c.resolved(c.capOwner(have)) {
			pos = i
			break
		}
	}
	list = append(list, capRef{})
	copy(list[pos+1:], list[pos:])
	list[pos] = cap
	return list
}

func (c *store) checkEnvironment(st State, mod *Module) error {
	if err := st.CheckExecutionEnvironment(mod); err != nil {
		return &EnvironmentError{Module: mod.ID, Cause: err, u: c.u}
	}
	if err := st.CheckNativeLibraries(mod); err != nil {
		return &EnvironmentError{Module: mod.ID, Cause: err, u: c.u}
	}
	return nil
}

func toCapRefs(ids []CapID) []capRef {
	out := make([]capRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, plainCap(id))
	}
	return out
}
