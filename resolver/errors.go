// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrFragmentNotSelected is the cause recorded for a fragment that lost
	// fragment selection on every host it could attach to.
	ErrFragmentNotSelected = errors.New("fragment was not selected for attachment")
	// ErrAttemptsExhausted is returned, wrapping the last conflict, when a
	// resolve hits its attempt limit.
	ErrAttemptsExhausted = errors.New("resolve attempt limit reached")
)

// traceError is implemented by failures that know how to render themselves
// compactly for trace output.
type traceError interface {
	traceString() string
}

// MissingRequirementError means a mandatory requirement has no candidates
// left.
type MissingRequirementError struct {
	Module      ModuleID
	Requirement ReqID
	// Cause is the deepest failure that eliminated the last candidate, if any.
	Cause error

	u Universe
}

func newMissingRequirementError(u Universe, m ModuleID, r ReqID, cause error) *MissingRequirementError {
	return &MissingRequirementError{Module: m, Requirement: r, Cause: cause, u: u}
}

func (e *MissingRequirementError) Error() string {
	msg := fmt.Sprintf("unable to resolve %s: missing requirement %s", modName(e.u, e.Module), reqName(e.u, e.Requirement))
	if e.Cause != nil {
		msg += fmt.Sprintf(" [caused by: %s]", e.Cause)
	}
	return msg
}

func (e *MissingRequirementError) Unwrap() error { return e.Cause }

func (e *MissingRequirementError) traceString() string {
	return fmt.Sprintf("%s has no candidates for %s", modName(e.u, e.Module), reqName(e.u, e.Requirement))
}

// FragmentConflictError means removing an unselected fragment left a module
// the resolve depends on without candidates.
type FragmentConflictError struct {
	Fragment    ModuleID
	Module      ModuleID
	Requirement ReqID
	Cause       error

	u Universe
}

func (e *FragmentConflictError) Error() string {
	if e.Requirement == NoRequirement {
		return fmt.Sprintf("fragment %s: %s", modName(e.u, e.Fragment), e.Cause)
	}
	return fmt.Sprintf("removing unselected fragment %s leaves %s without candidates for %s",
		modName(e.u, e.Fragment), modName(e.u, e.Module), reqName(e.u, e.Requirement))
}

func (e *FragmentConflictError) Unwrap() error { return e.Cause }

func (e *FragmentConflictError) traceString() string {
	return fmt.Sprintf("fragment %s conflicts with %s", modName(e.u, e.Fragment), modName(e.u, e.Module))
}

// EnvironmentError means a module cannot run on the current platform. It is
// never backtracked.
type EnvironmentError struct {
	Module ModuleID
	Cause  error

	u Universe
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("unable to resolve %s: %s", modName(e.u, e.Module), e.Cause)
}

func (e *EnvironmentError) Unwrap() error { return e.Cause }

func (e *EnvironmentError) traceString() string {
	return fmt.Sprintf("%s rejected by environment: %s", modName(e.u, e.Module), e.Cause)
}

// ConflictKind classifies uses constraint violations.
type ConflictKind uint8

const (
	// FragmentImportConflict: two imports of one package from different
	// modules, which only fragments can introduce.
	FragmentImportConflict ConflictKind = iota
	// ExportUsesConflict: a module exports a package and is exposed to an
	// incompatible provider of it through uses constraints.
	ExportUsesConflict
	// ImportUsesConflict: a module imports a package and is exposed to an
	// incompatible provider of it through uses constraints.
	ImportUsesConflict
)

func (k ConflictKind) String() string {
	switch k {
	case FragmentImportConflict:
		return "fragment import"
	case ExportUsesConflict:
		return "export/uses"
	case ImportUsesConflict:
		return "import/uses"
	}
	return fmt.Sprintf("conflict(%d)", k)
}

// A Hop is one step of a dependency chain: Module's Requirement is satisfied
// by Capability of Provider.
type Hop struct {
	Module      ModuleID
	Requirement ReqID
	Provider    ModuleID
	Capability  CapID
}

// A Chain explains how a module came to depend on Capability of Provider.
// An empty chain means the module provides it itself.
type Chain struct {
	Hops       []Hop
	Provider   ModuleID
	Capability CapID
}

// UsesConflictError is a uses constraint violation. Chains holds the two
// colliding provenances, or one for an export/uses conflict, where the
// module itself is the other side.
type UsesConflictError struct {
	Kind        ConflictKind
	Module      ModuleID
	Requirement ReqID
	Package     string
	Chains      []Chain

	u Universe
}

func (e *UsesConflictError) Error() string {
	var buf bytes.Buffer
	if e.Kind == ExportUsesConflict {
		fmt.Fprintf(&buf, "uses constraint violation: unable to resolve %s because it exports package %q and is also exposed to it from %s via the following dependency chain:\n\n",
			modName(e.u, e.Module), e.Package, modName(e.u, e.Chains[0].Provider))
		buf.WriteString(renderChain(e.u, e.Chains[0]))
		return buf.String()
	}

	fmt.Fprintf(&buf, "uses constraint violation: unable to resolve %s because it is exposed to package %q from %s and %s via two dependency chains.",
		modName(e.u, e.Module), e.Package, modName(e.u, e.Chains[0].Provider), modName(e.u, e.Chains[1].Provider))
	for i, ch := range e.Chains {
		fmt.Fprintf(&buf, "\n\nChain %d:\n%s", i+1, renderChain(e.u, ch))
	}
	return buf.String()
}

func (e *UsesConflictError) traceString() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s conflict on %q in %s", e.Kind, e.Package, modName(e.u, e.Module))
	for _, ch := range e.Chains {
		fmt.Fprintf(&buf, "\n  via %s", modName(e.u, ch.Provider))
		for _, h := range ch.Hops {
			fmt.Fprintf(&buf, " <- %s", modName(e.u, h.Module))
		}
	}
	return buf.String()
}

func renderChain(u Universe, ch Chain) string {
	if len(ch.Hops) == 0 {
		return "  " + modName(u, ch.Provider)
	}

	used := capName(u, ch.Capability)
	var buf bytes.Buffer
	for i, h := range ch.Hops {
		req := u.Requirement(h.Requirement)
		fmt.Fprintf(&buf, "  %s\n", modName(u, h.Module))
		if req.Namespace == PackageNamespace {
			fmt.Fprintf(&buf, "    import: %s\n     |\n    export: ", req.Filter)
		} else {
			fmt.Fprintf(&buf, "    require: %s\n     |\n    provide: ", req.Filter)
		}

		cap := u.Capability(h.Capability)
		if i+1 < len(ch.Hops) {
			if cap != nil && cap.Namespace == PackageNamespace {
				fmt.Fprintf(&buf, "%s=%s; uses:=%s\n", PackageNamespace, cap.Name, capName(u, ch.Hops[i+1].Capability))
			} else {
				fmt.Fprintf(&buf, "%s\n", capString(u, h.Capability))
			}
			continue
		}

		fmt.Fprintf(&buf, "%s", capString(u, h.Capability))
		if cap != nil && cap.Namespace == PackageNamespace && cap.Name != used {
			fmt.Fprintf(&buf, "; uses:=%s\n    export: %s=%s", used, PackageNamespace, used)
		}
		fmt.Fprintf(&buf, "\n  %s", modName(u, ch.Provider))
	}
	return buf.String()
}

func modName(u Universe, id ModuleID) string {
	if m := u.Module(id); m != nil {
		return m.String()
	}
	return fmt.Sprintf("<module %d>", id)
}

func reqName(u Universe, id ReqID) string {
	if r := u.Requirement(id); r != nil {
		return r.String()
	}
	return "<dynamic requirement>"
}

func capName(u Universe, id CapID) string {
	if c := u.Capability(id); c != nil {
		return c.Name
	}
	return "?"
}

func capString(u Universe, id CapID) string {
	if c := u.Capability(id); c != nil {
		return fmt.Sprintf("%s=%s", c.Namespace, c.Name)
	}
	return "?"
}
