// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolver wires modules together.
//
// Modules offer capabilities and declare requirements. Resolving a set of
// modules picks one capability for every requirement such that mandatory
// requirements are satisfied and no module can see two incompatible
// providers of the same package through the uses constraints of the packages
// it depends on. Fragments attach to a host and contribute packages to it.
//
// The search works on candidate stores. Each pass computes the package space
// of every module reachable from the targets using the currently preferred
// candidates, then checks it; a conflict queues copies of the store with the
// offending choice dropped, which later passes try in turn.
package resolver

import (
	"context"
	"io/ioutil"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is what a resolve needs from the environment it runs in.
type State interface {
	Universe
	// CandidatesFor returns the capabilities matching req, most preferred
	// first. The requirement may be synthetic, with ID NoRequirement.
	CandidatesFor(req *Requirement, obeyMandatory bool) []CapID
	// IsEffective reports whether req takes part in resolution at all.
	IsEffective(req *Requirement) bool
	CheckExecutionEnvironment(m *Module) error
	CheckNativeLibraries(m *Module) error
}

// Options configure a Resolver.
type Options struct {
	// Logger receives structured progress output. Defaults to a logger that
	// only reports warnings to stderr.
	Logger *logrus.Logger

	// Trace turns on trace output, written to TraceLogger.
	Trace bool

	// TraceLogger is the logger to use for generating trace output. If Trace
	// is true but no logger is provided, trace output goes to stderr.
	TraceLogger *log.Logger

	// MaxAttempts bounds the number of passes a single call makes. Zero means
	// no bound.
	MaxAttempts int

	// Observer, if set, is told about passes, permutations and outcomes.
	Observer Observer
}

// Resolver computes wirings. It holds no per-call state; concurrent calls are
// safe as long as the State they use is not being changed underneath them.
type Resolver struct {
	l     *logrus.Logger
	trace bool
	tl    *log.Logger
	max   int
	obs   Observer
}

// New returns a Resolver configured by opts.
func New(opts Options) *Resolver {
	r := &Resolver{
		l:     opts.Logger,
		trace: opts.Trace,
		tl:    opts.TraceLogger,
		max:   opts.MaxAttempts,
		obs:   opts.Observer,
	}
	if r.l == nil {
		r.l = logrus.New()
		r.l.Level = logrus.WarnLevel
	}
	if r.trace && r.tl == nil {
		r.tl = log.New(os.Stderr, "", 0)
	}
	if !r.trace {
		r.tl = log.New(ioutil.Discard, "", 0)
	}
	return r
}

// session is the state of one Resolve or ResolveDynamic call.
type session struct {
	r  *Resolver
	st State

	// Uses permutations are always tried before import permutations.
	usesPerms   []*store
	importPerms []*store

	// Rebuilt for every pass.
	spaces  map[modRef]*packages
	sources map[capRef][]capRef

	stats Stats
	mtr   *metrics
}

func (r *Resolver) newSession(st State) *session {
	return &session{
		r:   r,
		st:  st,
		mtr: newMetrics(),
	}
}

func (s *session) queue(kind PermutationKind, perm *store) {
	if kind == UsesPermutation {
		s.usesPerms = append(s.usesPerms, perm)
		s.stats.UsesPermutations++
	} else {
		s.importPerms = append(s.importPerms, perm)
		s.stats.ImportPermutations++
	}
	if s.r.obs != nil {
		s.r.obs.PermutationQueued(kind)
	}
	s.traceQueue(kind)
}

// next pops the next permutation to try.
func (s *session) next() (*store, bool) {
	switch {
	case len(s.usesPerms) > 0:
		c := s.usesPerms[0]
		s.usesPerms = s.usesPerms[1:]
		return c, true
	case len(s.importPerms) > 0:
		c := s.importPerms[0]
		s.importPerms = s.importPerms[1:]
		return c, true
	}
	return nil, false
}

// startPass resets per-pass state. It fails if the call was cancelled or
// used up its attempts.
func (s *session) startPass(ctx context.Context, last error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.r.max > 0 && s.stats.Attempts >= s.r.max {
		return errors.Wrapf(ErrAttemptsExhausted, "after %d passes: %v", s.stats.Attempts, last)
	}

	s.stats.Attempts++
	s.spaces = make(map[modRef]*packages)
	s.sources = make(map[capRef][]capRef)
	if s.r.obs != nil {
		s.r.obs.PassStarted()
	}
	s.tracePass(len(s.usesPerms) + len(s.importPerms))
	return nil
}

func (s *session) finish(wires map[ModuleID][]Wire, err error) {
	s.stats.Phases = s.mtr.snapshot()
	if s.r.obs != nil {
		s.r.obs.Finished(s.stats, err)
	}
	s.traceFinish(wires, err)

	if err != nil {
		if s.r.l.Level >= logrus.InfoLevel {
			s.r.l.WithFields(logrus.Fields{
				"attempts": s.stats.Attempts,
				"error":    err,
			}).Info("Resolve failed")
		}
		return
	}
	if s.r.l.Level >= logrus.DebugLevel {
		s.r.l.WithFields(logrus.Fields{
			"attempts": s.stats.Attempts,
			"modules":  len(wires),
			"uses":     s.stats.UsesPermutations,
			"import":   s.stats.ImportPermutations,
		}).Debug("Resolve succeeded")
	}
}

// Resolve computes the wires that resolve every module in mandatory, along
// with as many of optional as possible. Fragments in onDemand attach to hosts
// being resolved when they can. Mandatory modules that are already resolved
// get an empty entry.
//
// ctx is only consulted between passes.
func (r *Resolver) Resolve(ctx context.Context, st State, mandatory, optional, onDemand []ModuleID) (map[ModuleID][]Wire, error) {
	s := r.newSession(st)
	wires, err := s.resolve(ctx, mandatory, optional, onDemand)
	s.finish(wires, err)
	return wires, err
}

func (s *session) resolve(ctx context.Context, mandatory, optional, onDemand []ModuleID) (map[ModuleID][]Wire, error) {
	optional = append([]ModuleID(nil), optional...)
	onDemand = append([]ModuleID(nil), onDemand...)
	for _, m := range mandatory {
		if s.st.Module(m) == nil {
			return nil, errors.Errorf("no module with id %d", m)
		}
	}

	for {
		c, err := s.prepare(mandatory, optional, onDemand)
		if err == nil {
			var targets []ModuleID
			targets, err = s.targets(c, mandatory, optional)
			if err == nil {
				s.traceStart(targets)
				var ok *store
				if ok, err = s.search(ctx, c, targets, false); err == nil {
					return s.wireTargets(ok, mandatory, targets), nil
				}
			}
		}

		faulty, retry := s.faulty(err)
		if !retry {
			return nil, err
		}
		switch {
		case removeModule(&optional, faulty), removeModule(&onDemand, faulty):
			s.stats.Restarts++
			s.traceRestart(faulty, err)
			if s.r.l.Level >= logrus.DebugLevel {
				s.r.l.WithFields(logrus.Fields{
					"module": modName(s.st, faulty),
					"error":  err,
				}).Debug("Dropping optional module at fault and starting over")
			}
		default:
			return nil, err
		}
	}
}

// prepare populates a fresh candidate store and merges fragments into it.
func (s *session) prepare(mandatory, optional, onDemand []ModuleID) (*store, error) {
	c := newStore(s.st)

	s.mtr.push(phasePopulate)
	for _, m := range mandatory {
		if err := c.populate(s.st, m, populateMandatory); err != nil {
			s.mtr.pop()
			return nil, err
		}
	}
	for _, m := range optional {
		c.populate(s.st, m, populateOptional)
	}
	for _, m := range onDemand {
		c.populate(s.st, m, populateOnDemand)
	}
	s.mtr.pop()

	s.mtr.push(phaseMerge)
	err := c.mergeFragments()
	s.mtr.pop()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// targets lists the modules whose package spaces get checked. A fragment is
// checked through the host it currently attaches to.
func (s *session) targets(c *store, mandatory, optional []ModuleID) ([]ModuleID, error) {
	var out []ModuleID
	seen := make(map[ModuleID]bool)
	add := func(m ModuleID, required bool) error {
		mod := s.st.Module(m)
		if mod.Resolved && !mod.IsFragment() {
			return nil
		}
		if c.failed(m) || !c.isPopulated(m) {
			if required && !mod.Resolved {
				if r := c.results[m]; r != nil && r.err != nil {
					return r.err
				}
			}
			return nil
		}
		if mod.IsFragment() {
			host, has := c.first(plainReq(mod.HostRequirement()))
			if !has {
				if required && !mod.Resolved {
					return newMissingRequirementError(s.st, m, mod.HostRequirement(), nil)
				}
				return nil
			}
			m = s.st.Capability(host.id).Module
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
		return nil
	}

	for _, m := range mandatory {
		if err := add(m, true); err != nil {
			return nil, err
		}
	}
	for _, m := range optional {
		add(m, false)
	}
	return out, nil
}

// search runs passes over queued permutations, starting with c, until one
// is consistent for all targets. The store of that pass is returned.
func (s *session) search(ctx context.Context, c *store, targets []ModuleID, dynamic bool) (*store, error) {
	s.usesPerms = append(s.usesPerms[:0], c)
	s.importPerms = s.importPerms[:0]
	defer func() {
		s.usesPerms, s.importPerms = nil, nil
	}()

	var last error
	for {
		c, has := s.next()
		if !has {
			return nil, last
		}
		if err := s.startPass(ctx, last); err != nil {
			return nil, err
		}

		if s.r.l.Level >= logrus.DebugLevel {
			s.r.l.WithFields(logrus.Fields{
				"attempts": s.stats.Attempts,
				"uses":     len(s.usesPerms),
				"import":   len(s.importPerms),
			}).Debug("Beginning package space pass")
		}

		s.mtr.push(phasePackages)
		for _, t := range targets {
			s.calculatePackageSpaces(c, c.wrappedHost(t), make(map[capRef]map[modRef]bool), make(map[modRef]bool))
		}
		s.mtr.pop()

		// Every target is checked; the last conflict is the one reported if
		// the queues run dry.
		s.mtr.push(phaseConsistency)
		last = nil
		visited := make(map[modRef]bool)
		for _, t := range targets {
			if err := s.checkConsistency(c, dynamic, c.wrappedHost(t), visited); err != nil {
				last = err
			}
		}
		s.mtr.pop()

		if last == nil {
			return c, nil
		}
		if s.r.l.Level >= logrus.DebugLevel {
			s.r.l.WithFields(logrus.Fields{
				"attempts": s.stats.Attempts,
				"error":    last,
			}).Debug("Candidate permutation failed; will try another if possible")
		}
	}
}

func (s *session) wireTargets(c *store, mandatory, targets []ModuleID) map[ModuleID][]Wire {
	s.mtr.push(phaseWires)
	defer s.mtr.pop()

	wires := make(map[ModuleID][]Wire)
	for _, t := range targets {
		s.populateWireMap(c, c.wrappedHost(t), wires)
	}
	for _, m := range mandatory {
		if _, has := wires[m]; !has && s.st.Module(m).Resolved {
			wires[m] = []Wire{}
		}
	}
	return wires
}

// faulty names the module to blame for err and reports whether dropping it
// could help at all.
func (s *session) faulty(err error) (ModuleID, bool) {
	switch e := err.(type) {
	case *MissingRequirementError:
		return e.Module, true
	case *FragmentConflictError:
		return e.Fragment, true
	case *EnvironmentError:
		return e.Module, true
	case *UsesConflictError:
		// A requirement hosted on a wrapped host belongs to a fragment.
		if e.Requirement != NoRequirement {
			if decl := s.st.Requirement(e.Requirement).Module; decl != e.Module {
				return decl, true
			}
		}
		return e.Module, true
	}
	return NoModule, false
}

func removeModule(list *[]ModuleID, m ModuleID) bool {
	for i, have := range *list {
		if have == m {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
