// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ResolveDynamic computes the wires for a dynamic import of pkg by the
// resolved module m. It returns nil and no error if m cannot import pkg
// dynamically: m is unresolved, already sees pkg through a wire, exports it
// itself, or has no dynamic requirement that matches a provider of it.
//
// The result holds at least the dynamic wire for pkg, keyed by m, plus the
// wires of any unresolved module that has to be resolved along with it.
func (r *Resolver) ResolveDynamic(ctx context.Context, st State, m ModuleID, pkg string, onDemand []ModuleID) (map[ModuleID][]Wire, error) {
	if st.Module(m) == nil {
		return nil, errors.Errorf("no module with id %d", m)
	}

	s := r.newSession(st)
	wires, err := s.resolveDynamic(ctx, m, pkg, onDemand)
	s.finish(wires, err)
	return wires, err
}

func (s *session) resolveDynamic(ctx context.Context, m ModuleID, pkg string, onDemand []ModuleID) (map[ModuleID][]Wire, error) {
	dyn, caps := s.dynamicCandidates(m, pkg)
	if dyn == NoRequirement {
		if s.r.l.Level >= logrus.DebugLevel {
			s.r.l.WithFields(logrus.Fields{
				"module":  modName(s.st, m),
				"package": pkg,
			}).Debug("No dynamic import possible")
		}
		return nil, nil
	}

	onDemand = append([]ModuleID(nil), onDemand...)
	for {
		c, err := s.prepareDynamic(m, dyn, caps, onDemand)
		if err == nil {
			s.traceStart([]ModuleID{m})
			var ok *store
			if ok, err = s.search(ctx, c, []ModuleID{m}, true); err == nil {
				s.mtr.push(phaseWires)
				wires := s.populateDynamicWireMap(ok, m, dyn, pkg)
				s.mtr.pop()
				return wires, nil
			}
		}

		faulty, retry := s.faulty(err)
		if !retry || !removeModule(&onDemand, faulty) {
			return nil, err
		}
		s.stats.Restarts++
		s.traceRestart(faulty, err)
	}
}

func (s *session) prepareDynamic(m ModuleID, dyn ReqID, caps []capRef, onDemand []ModuleID) (*store, error) {
	c := newStore(s.st)

	s.mtr.push(phasePopulate)
	err := c.populateDynamic(s.st, m, dyn, append([]capRef(nil), caps...))
	if err == nil {
		for _, f := range onDemand {
			c.populate(s.st, f, populateOnDemand)
		}
	}
	s.mtr.pop()
	if err != nil {
		return nil, err
	}

	s.mtr.push(phaseMerge)
	err = c.mergeFragments()
	s.mtr.pop()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// dynamicCandidates picks the dynamic requirement of m that admits a provider
// of pkg, and the providers it admits. It returns NoRequirement if a dynamic
// import of pkg is not possible.
func (s *session) dynamicCandidates(m ModuleID, pkg string) (ReqID, []capRef) {
	mod := s.st.Module(m)
	if !mod.Resolved || pkg == "" || len(mod.DynamicRequirements) == 0 {
		return NoRequirement, nil
	}

	c := newStore(s.st)
	for _, cap := range c.capabilities(plainMod(m)) {
		if cc := s.st.Capability(cap.id); cc.Namespace == PackageNamespace && cc.Name == pkg {
			return NoRequirement, nil
		}
	}
	for _, w := range mod.Wires {
		if w.HasPackage(pkg) {
			return NoRequirement, nil
		}
	}

	// The name is used as is, never as a pattern.
	probe := &Requirement{
		ID:         NoRequirement,
		Module:     m,
		Namespace:  PackageNamespace,
		Filter:     Filter{Namespace: PackageNamespace, Name: pkg},
		Resolution: Dynamic,
	}
	ids := s.st.CandidatesFor(probe, false)
	if len(ids) == 0 {
		return NoRequirement, nil
	}

	for _, rid := range mod.DynamicRequirements {
		dr := s.st.Requirement(rid)
		var matched []capRef
		for _, id := range ids {
			if dr.Filter.Matches(s.st.Capability(id), true) {
				matched = append(matched, plainCap(id))
			}
		}
		if len(matched) > 0 {
			return rid, matched
		}
	}
	return NoRequirement, nil
}
