// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Universe is read access to the installed modules, capabilities and
// requirements.
type Universe interface {
	Module(ModuleID) *Module
	Capability(CapID) *Capability
	Requirement(ReqID) *Requirement
	// Fragments returns the resolved fragments attached to a resolved host.
	Fragments(host ModuleID) []ModuleID
}

// CapabilitySpec declares a capability for Registry.Install.
type CapabilitySpec struct {
	Namespace  Namespace
	Name       string
	Version    string
	Attributes map[string]string
	Mandatory  []string
	Uses       []string
}

// RequirementSpec declares a requirement for Registry.Install.
type RequirementSpec struct {
	Namespace  Namespace
	Name       string
	Range      string
	Attributes map[string]string
	Resolution Resolution
	Reexport   bool
	Effective  string
}

// ModuleSpec declares a module for Registry.Install.
type ModuleSpec struct {
	SymbolicName          string
	Version               string
	Capabilities          []CapabilitySpec
	Requirements          []RequirementSpec
	DynamicRequirements   []RequirementSpec
	ExecutionEnvironments []string
	NativeLibraries       []NativeLibrary
	RemovalPending        bool
}

// Registry is an arena holding every installed module along with its
// capabilities and requirements. IDs are dense indices and never reused.
//
// A Registry is not safe for concurrent mutation; callers serialize Install
// and Commit against running resolves.
type Registry struct {
	mods      []*Module
	caps      []*Capability
	reqs      []*Requirement
	fragments map[ModuleID][]ModuleID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fragments: make(map[ModuleID][]ModuleID),
	}
}

// Install adds a module to the registry.
func (r *Registry) Install(spec ModuleSpec) (*Module, error) {
	if spec.SymbolicName == "" {
		return nil, errors.New("module has no symbolic name")
	}

	v, err := parseVersion(spec.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "module %s", spec.SymbolicName)
	}

	m := &Module{
		ID:                    ModuleID(len(r.mods)),
		SymbolicName:          spec.SymbolicName,
		Version:               v,
		ExecutionEnvironments: spec.ExecutionEnvironments,
		NativeLibraries:       spec.NativeLibraries,
		RemovalPending:        spec.RemovalPending,
		hostReq:               NoRequirement,
		hostCap:               NoCapability,
	}

	// Build everything before touching the arenas so a bad spec leaves the
	// registry unchanged.
	var caps []*Capability
	for i, cs := range spec.Capabilities {
		if cs.Namespace == "" {
			return nil, errors.Errorf("module %s: capability %d has no namespace", m, i)
		}
		cv := v
		if cs.Namespace == PackageNamespace {
			cv = zeroVersion
		}
		if cs.Version != "" {
			if cv, err = semver.NewVersion(cs.Version); err != nil {
				return nil, errors.Wrapf(err, "module %s: capability %s", m, cs.Name)
			}
		}
		name := cs.Name
		if name == "" && cs.Namespace != PackageNamespace {
			name = spec.SymbolicName
		}
		c := &Capability{
			ID:         CapID(len(r.caps) + len(caps)),
			Module:     m.ID,
			Namespace:  cs.Namespace,
			Name:       name,
			Version:    cv,
			Attributes: cs.Attributes,
			Mandatory:  cs.Mandatory,
			Uses:       cs.Uses,
		}
		if c.Namespace == HostNamespace && m.hostCap == NoCapability {
			m.hostCap = c.ID
		}
		m.Capabilities = append(m.Capabilities, c.ID)
		caps = append(caps, c)
	}

	var reqs []*Requirement
	mkreq := func(rs RequirementSpec, dynamic bool) (*Requirement, error) {
		if rs.Namespace == "" {
			return nil, errors.Errorf("module %s: requirement %q has no namespace", m, rs.Name)
		}
		if dynamic {
			if rs.Namespace != PackageNamespace {
				return nil, errors.Errorf("module %s: dynamic requirement %q must be a package requirement", m, rs.Name)
			}
			rs.Resolution = Dynamic
		}
		f, err := NewFilter(rs.Namespace, rs.Name, rs.Range, rs.Attributes)
		if err != nil {
			return nil, errors.Wrapf(err, "module %s", m)
		}
		return &Requirement{
			ID:         ReqID(len(r.reqs) + len(reqs)),
			Module:     m.ID,
			Namespace:  rs.Namespace,
			Filter:     f,
			Resolution: rs.Resolution,
			Reexport:   rs.Reexport,
			Effective:  rs.Effective,
		}, nil
	}

	for _, rs := range spec.Requirements {
		req, err := mkreq(rs, false)
		if err != nil {
			return nil, err
		}
		if req.Namespace == HostNamespace {
			if m.hostReq != NoRequirement {
				return nil, errors.Errorf("module %s: fragments attach to exactly one host", m)
			}
			m.hostReq = req.ID
		}
		m.Requirements = append(m.Requirements, req.ID)
		reqs = append(reqs, req)
	}
	for _, rs := range spec.DynamicRequirements {
		req, err := mkreq(rs, true)
		if err != nil {
			return nil, err
		}
		m.DynamicRequirements = append(m.DynamicRequirements, req.ID)
		reqs = append(reqs, req)
	}

	r.mods = append(r.mods, m)
	r.caps = append(r.caps, caps...)
	r.reqs = append(r.reqs, reqs...)
	return m, nil
}

// Module returns the module with the given id, or nil.
func (r *Registry) Module(id ModuleID) *Module {
	if id < 0 || int(id) >= len(r.mods) {
		return nil
	}
	return r.mods[id]
}

// Capability returns the capability with the given id, or nil.
func (r *Registry) Capability(id CapID) *Capability {
	if id < 0 || int(id) >= len(r.caps) {
		return nil
	}
	return r.caps[id]
}

// Requirement returns the requirement with the given id, or nil.
func (r *Registry) Requirement(id ReqID) *Requirement {
	if id < 0 || int(id) >= len(r.reqs) {
		return nil
	}
	return r.reqs[id]
}

// Fragments returns the fragments attached to host by earlier commits.
func (r *Registry) Fragments(host ModuleID) []ModuleID {
	return r.fragments[host]
}

// Modules returns all installed modules in installation order.
func (r *Registry) Modules() []*Module {
	return r.mods
}

// Capabilities returns all installed capabilities.
func (r *Registry) Capabilities() []*Capability {
	return r.caps
}

// Lookup returns the installed modules with the given symbolic name.
func (r *Registry) Lookup(name string) []*Module {
	var out []*Module
	for _, m := range r.mods {
		if m.SymbolicName == name {
			out = append(out, m)
		}
	}
	return out
}

// SetRemovalPending flags a module as about to be uninstalled. Such fragments
// lose fragment selection ties.
func (r *Registry) SetRemovalPending(id ModuleID, pending bool) error {
	m := r.Module(id)
	if m == nil {
		return errors.Errorf("no module with id %d", id)
	}
	m.RemovalPending = pending
	return nil
}

// Commit applies a wire map produced by a resolve. Unresolved modules become
// resolved with the given wires; dynamic wires are appended to modules that
// were already resolved. Anything else for a resolved module is ignored.
func (r *Registry) Commit(wires map[ModuleID][]Wire) error {
	ids := make([]ModuleID, 0, len(wires))
	for id := range wires {
		if r.Module(id) == nil {
			return errors.Errorf("no module with id %d", id)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m := r.mods[id]
		if m.Resolved {
			for _, w := range wires[id] {
				switch {
				case w.Dynamic:
					m.Wires = append(m.Wires, w)
				case m.IsFragment() && w.Requirement == m.hostReq && !r.attached(w.Exporter, id):
					// A resolved fragment attaching to another host.
					m.Wires = append(m.Wires, w)
					r.fragments[w.Exporter] = append(r.fragments[w.Exporter], id)
				}
			}
			continue
		}

		m.Wires = append([]Wire(nil), wires[id]...)
		m.Resolved = true
		if m.IsFragment() {
			for _, w := range m.Wires {
				if w.Requirement == m.hostReq && !r.attached(w.Exporter, id) {
					r.fragments[w.Exporter] = append(r.fragments[w.Exporter], id)
				}
			}
		}
	}
	return nil
}

func (r *Registry) attached(host, frag ModuleID) bool {
	for _, f := range r.fragments[host] {
		if f == frag {
			return true
		}
	}
	return false
}

func parseVersion(s string) (*semver.Version, error) {
	if s == "" {
		return zeroVersion, nil
	}
	return semver.NewVersion(s)
}
