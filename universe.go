// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package modwire

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modwire/modwire/catalog"
	"github.com/modwire/modwire/resolver"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a universe descriptor.
type Format int

const (
	TOML Format = iota
	YAML
)

func formatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return 0, errors.Errorf("%s: unknown universe format, want .toml, .yaml or .yml", path)
}

// A Universe is a loaded descriptor: every module it declares, installed in
// a catalog.
type Universe struct {
	Path    string
	Catalog *catalog.Catalog
	// Digest is the sha256 of the descriptor as read.
	Digest []byte
}

type rawUniverse struct {
	Environment rawEnvironment `toml:"environment" yaml:"environment"`
	Modules     []rawModule    `toml:"modules" yaml:"modules"`
}

type rawEnvironment struct {
	ExecutionEnvironments []string `toml:"execution-environments" yaml:"execution-environments"`
	OS                    string   `toml:"os" yaml:"os"`
	Arch                  string   `toml:"arch" yaml:"arch"`
}

type rawModule struct {
	Name           string           `toml:"name" yaml:"name"`
	Version        string           `toml:"version" yaml:"version"`
	Resolved       bool             `toml:"resolved" yaml:"resolved"`
	RemovalPending bool             `toml:"removal-pending" yaml:"removal-pending"`
	Host           rawRequirement   `toml:"host" yaml:"host"`
	Exports        []rawCapability  `toml:"exports" yaml:"exports"`
	Imports        []rawRequirement `toml:"imports" yaml:"imports"`
	Requires       []rawRequirement `toml:"requires" yaml:"requires"`
	DynamicImports []string         `toml:"dynamic-imports" yaml:"dynamic-imports"`
	Native         []rawNative      `toml:"native" yaml:"native"`
	Runtimes       []string         `toml:"runtimes" yaml:"runtimes"`
}

type rawCapability struct {
	Name       string            `toml:"name" yaml:"name"`
	Version    string            `toml:"version" yaml:"version"`
	Uses       []string          `toml:"uses" yaml:"uses"`
	Attributes map[string]string `toml:"attributes" yaml:"attributes"`
	Mandatory  []string          `toml:"mandatory" yaml:"mandatory"`
}

type rawRequirement struct {
	Name       string            `toml:"name" yaml:"name"`
	Range      string            `toml:"range" yaml:"range"`
	Optional   bool              `toml:"optional" yaml:"optional"`
	Reexport   bool              `toml:"reexport" yaml:"reexport"`
	Effective  string            `toml:"effective" yaml:"effective"`
	Attributes map[string]string `toml:"attributes" yaml:"attributes"`
}

type rawNative struct {
	Path string `toml:"path" yaml:"path"`
	OS   string `toml:"os" yaml:"os"`
	Arch string `toml:"arch" yaml:"arch"`
}

func decodeUniverse(raw []byte, format Format) (rawUniverse, error) {
	var ru rawUniverse
	var err error
	switch format {
	case TOML:
		err = toml.Unmarshal(raw, &ru)
	case YAML:
		err = yaml.Unmarshal(raw, &ru)
	default:
		err = errors.Errorf("unknown format %d", format)
	}
	if err != nil {
		return rawUniverse{}, errors.Wrap(err, "unable to parse universe")
	}
	return ru, nil
}

// ReadUniverse builds a universe from descriptor bytes. Modules marked as
// resolved are resolved with r, in the order they are declared.
func ReadUniverse(ctx context.Context, raw []byte, format Format, r *resolver.Resolver) (*Universe, error) {
	return readUniverse(ctx, raw, format, r)
}

func readUniverse(ctx context.Context, raw []byte, format Format, r *resolver.Resolver) (*Universe, error) {
	ru, err := decodeUniverse(raw, format)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(catalog.Config{
		ExecutionEnvironments: ru.Environment.ExecutionEnvironments,
		OS:                    ru.Environment.OS,
		Arch:                  ru.Environment.Arch,
	})

	var resolved []resolver.ModuleID
	for i, rm := range ru.Modules {
		spec, err := rm.toSpec()
		if err != nil {
			return nil, errors.Wrapf(err, "module %d", i)
		}
		m, err := cat.Install(spec)
		if err != nil {
			return nil, err
		}
		if rm.Resolved {
			resolved = append(resolved, m.ID)
		}
	}

	for _, id := range resolved {
		if cat.Module(id).Resolved {
			continue
		}
		wires, err := r.Resolve(ctx, cat, []resolver.ModuleID{id}, nil, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "%s is marked resolved but does not resolve", cat.Module(id))
		}
		if err := cat.Commit(wires); err != nil {
			return nil, err
		}
	}

	return &Universe{
		Catalog: cat,
		Digest:  HashInputs(raw),
	}, nil
}

func (rm rawModule) toSpec() (resolver.ModuleSpec, error) {
	if rm.Name == "" {
		return resolver.ModuleSpec{}, errors.New("module has no name")
	}

	spec := resolver.ModuleSpec{
		SymbolicName:          rm.Name,
		Version:               rm.Version,
		ExecutionEnvironments: rm.Runtimes,
		RemovalPending:        rm.RemovalPending,
	}

	// Fragments never resolve on their own, so only hosts get the implicit
	// module and host capabilities.
	if rm.Host.Name == "" {
		spec.Capabilities = append(spec.Capabilities,
			resolver.CapabilitySpec{Namespace: resolver.ModuleNamespace, Name: rm.Name},
			resolver.CapabilitySpec{Namespace: resolver.HostNamespace, Name: rm.Name},
		)
	} else {
		spec.Requirements = append(spec.Requirements, rm.Host.toSpec(resolver.HostNamespace))
	}

	for _, e := range rm.Exports {
		if e.Name == "" {
			return resolver.ModuleSpec{}, errors.Errorf("%s: export without a package name", rm.Name)
		}
		spec.Capabilities = append(spec.Capabilities, resolver.CapabilitySpec{
			Namespace:  resolver.PackageNamespace,
			Name:       e.Name,
			Version:    e.Version,
			Attributes: e.Attributes,
			Mandatory:  e.Mandatory,
			Uses:       e.Uses,
		})
	}
	for _, i := range rm.Imports {
		spec.Requirements = append(spec.Requirements, i.toSpec(resolver.PackageNamespace))
	}
	for _, rq := range rm.Requires {
		spec.Requirements = append(spec.Requirements, rq.toSpec(resolver.ModuleNamespace))
	}
	for _, d := range rm.DynamicImports {
		spec.DynamicRequirements = append(spec.DynamicRequirements, resolver.RequirementSpec{
			Namespace: resolver.PackageNamespace,
			Name:      d,
		})
	}
	for _, n := range rm.Native {
		spec.NativeLibraries = append(spec.NativeLibraries, resolver.NativeLibrary{
			Path: n.Path,
			OS:   n.OS,
			Arch: n.Arch,
		})
	}
	return spec, nil
}

func (rr rawRequirement) toSpec(ns resolver.Namespace) resolver.RequirementSpec {
	rs := resolver.RequirementSpec{
		Namespace:  ns,
		Name:       rr.Name,
		Range:      rr.Range,
		Attributes: rr.Attributes,
		Reexport:   rr.Reexport,
		Effective:  rr.Effective,
	}
	if rr.Optional {
		rs.Resolution = resolver.Optional
	}
	return rs
}

// Find looks a module up by "name" or "name@version". A bare name picks the
// highest installed version.
func (u *Universe) Find(ref string) (*resolver.Module, error) {
	name, version := ref, ""
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		name, version = ref[:i], ref[i+1:]
	}
	m := u.Catalog.Find(name, version)
	if m == nil {
		return nil, errors.Errorf("no module %s in %s", ref, u.Path)
	}
	return m, nil
}

// FindAll looks up every ref.
func (u *Universe) FindAll(refs []string) ([]resolver.ModuleID, error) {
	ids := make([]resolver.ModuleID, 0, len(refs))
	for _, ref := range refs {
		m, err := u.Find(ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Unresolved returns the modules that are not resolved yet, excluding
// fragments, in installation order.
func (u *Universe) Unresolved() []resolver.ModuleID {
	var ids []resolver.ModuleID
	for _, m := range u.Catalog.Modules() {
		if !m.Resolved && !m.IsFragment() {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Fragments returns the unresolved fragments, in installation order.
func (u *Universe) Fragments() []resolver.ModuleID {
	var ids []resolver.ModuleID
	for _, m := range u.Catalog.Modules() {
		if !m.Resolved && m.IsFragment() {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Describe renders a wire map as sorted lines, one per wire.
func (u *Universe) Describe(wires map[resolver.ModuleID][]resolver.Wire) []string {
	var lines []string
	for m, ws := range wires {
		for _, w := range ws {
			lines = append(lines, describeWire(u.Catalog, u.Catalog.Module(m), w))
		}
	}
	sort.Strings(lines)
	return lines
}

func describeWire(uv resolver.Universe, m *resolver.Module, w resolver.Wire) string {
	req := uv.Requirement(w.Requirement)
	cap := uv.Capability(w.Capability)
	kind := string(req.Namespace)
	if w.Dynamic {
		kind = "dynamic " + kind
	}
	s := fmt.Sprintf("%s: %s %s -> %s", m, kind, cap.Name, uv.Module(w.Exporter))
	if len(w.Packages) > 0 {
		s += " (" + strings.Join(w.Packages, ", ") + ")"
	}
	return s
}
