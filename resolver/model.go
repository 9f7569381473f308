// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ModuleID, CapID and ReqID are indices into the arenas held by a Registry.
type (
	ModuleID int32
	CapID    int32
	ReqID    int32
)

const (
	NoModule      ModuleID = -1
	NoCapability  CapID    = -1
	NoRequirement ReqID    = -1
)

// Namespace identifies the kind of thing a capability offers or a requirement
// asks for.
type Namespace string

const (
	// PackageNamespace capabilities are exported packages; requirements in it
	// are package imports.
	PackageNamespace Namespace = "package"
	// ModuleNamespace capabilities identify a whole module; requirements in it
	// pull in every package the module exports.
	ModuleNamespace Namespace = "module"
	// HostNamespace capabilities allow fragments to attach; a fragment is a
	// module with a requirement in this namespace.
	HostNamespace Namespace = "host"
)

// Resolution says how hard the resolver must try to satisfy a requirement.
type Resolution uint8

const (
	Mandatory Resolution = iota
	Optional
	Dynamic
)

func (r Resolution) String() string {
	switch r {
	case Mandatory:
		return "mandatory"
	case Optional:
		return "optional"
	case Dynamic:
		return "dynamic"
	}
	return fmt.Sprintf("resolution(%d)", r)
}

// A Capability is something a module offers. Name holds the package name for
// package capabilities and the symbolic name of the module otherwise.
type Capability struct {
	ID         CapID
	Module     ModuleID
	Namespace  Namespace
	Name       string
	Version    *semver.Version
	Attributes map[string]string
	// Mandatory lists attributes a filter must mention to match when
	// mandatory attributes are being obeyed.
	Mandatory []string
	// Uses names the packages whose providers must stay consistent for any
	// consumer of this capability.
	Uses []string
}

// A Requirement is something a module needs.
type Requirement struct {
	ID         ReqID
	Module     ModuleID
	Namespace  Namespace
	Filter     Filter
	Resolution Resolution
	// Reexport marks a module requirement whose packages become visible to
	// anything requiring the declaring module.
	Reexport bool
	// Effective is the phase the requirement applies to. Empty means resolve.
	Effective string
}

// Optional reports whether failing to satisfy r is tolerated.
func (r *Requirement) Optional() bool {
	return r.Resolution != Mandatory
}

func (r *Requirement) String() string {
	return r.Filter.String()
}

// NativeLibrary is a platform specific library a module ships.
type NativeLibrary struct {
	Path string
	OS   string
	Arch string
}

// A Module is the unit of resolution.
type Module struct {
	ID                    ModuleID
	SymbolicName          string
	Version               *semver.Version
	Capabilities          []CapID
	Requirements          []ReqID
	DynamicRequirements   []ReqID
	ExecutionEnvironments []string
	NativeLibraries       []NativeLibrary

	// Wires holds the required wires of a resolved module.
	Wires          []Wire
	Resolved       bool
	RemovalPending bool

	hostReq ReqID
	hostCap CapID
}

// IsFragment reports whether the module attaches to a host instead of
// resolving on its own.
func (m *Module) IsFragment() bool {
	return m.hostReq != NoRequirement
}

// HostRequirement returns the fragment's host requirement, or NoRequirement.
func (m *Module) HostRequirement() ReqID {
	return m.hostReq
}

// HostCapability returns the capability fragments attach to, or
// NoCapability if the module cannot host fragments.
func (m *Module) HostCapability() CapID {
	return m.hostCap
}

func (m *Module) String() string {
	return fmt.Sprintf("%s@%s", m.SymbolicName, m.Version)
}

// A Wire binds one requirement of Importer to one capability of Exporter.
//
// Exporter is always the module that serves the capability at runtime; for a
// capability contributed by an attached fragment that is the host.
type Wire struct {
	Importer    ModuleID
	Requirement ReqID
	Exporter    ModuleID
	Capability  CapID
	// Package is the package carried by a package wire.
	Package string
	// Packages lists what becomes visible through a module wire: the
	// exporter's own packages plus everything it reexports.
	Packages []string
	// Dynamic marks a wire created by a dynamic import.
	Dynamic bool
}

// HasPackage reports whether the wire makes pkg visible to the importer.
func (w Wire) HasPackage(pkg string) bool {
	if w.Package == pkg {
		return true
	}
	for _, p := range w.Packages {
		if p == pkg {
			return true
		}
	}
	return false
}

// capRef is a capability as seen by the resolver. A non-negative host means
// the capability is served through that host, either because it comes from
// an attached fragment or because the host was wrapped together with its
// fragments.
type capRef struct {
	id   CapID
	host ModuleID
}

// reqRef is the requirement counterpart of capRef.
type reqRef struct {
	id   ReqID
	host ModuleID
}

// modRef names a module, or the composite of a host and its selected
// fragments when wrapped is set.
type modRef struct {
	id      ModuleID
	wrapped bool
}

func plainCap(id CapID) capRef {
	return capRef{id: id, host: NoModule}
}

func plainReq(id ReqID) reqRef {
	return reqRef{id: id, host: NoModule}
}

func plainMod(id ModuleID) modRef {
	return modRef{id: id}
}
