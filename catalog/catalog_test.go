// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/modwire/modwire/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkg(name, version string, attrs ...string) resolver.CapabilitySpec {
	cs := resolver.CapabilitySpec{Namespace: resolver.PackageNamespace, Name: name, Version: version}
	for i := 0; i+1 < len(attrs); i += 2 {
		if cs.Attributes == nil {
			cs.Attributes = make(map[string]string)
		}
		cs.Attributes[attrs[i]] = attrs[i+1]
	}
	return cs
}

func module(name, version string, caps ...resolver.CapabilitySpec) resolver.ModuleSpec {
	return resolver.ModuleSpec{
		SymbolicName: name,
		Version:      version,
		Capabilities: append([]resolver.CapabilitySpec{
			{Namespace: resolver.ModuleNamespace, Name: name},
			{Namespace: resolver.HostNamespace, Name: name},
		}, caps...),
	}
}

func mustInstall(t *testing.T, c *Catalog, spec resolver.ModuleSpec) *resolver.Module {
	t.Helper()
	m, err := c.Install(spec)
	require.NoError(t, err)
	return m
}

func probe(t *testing.T, ns resolver.Namespace, name, rng string) *resolver.Requirement {
	t.Helper()
	f, err := resolver.NewFilter(ns, name, rng, nil)
	require.NoError(t, err)
	return &resolver.Requirement{ID: resolver.NoRequirement, Module: resolver.NoModule, Namespace: ns, Filter: f}
}

func names(c *Catalog, ids []resolver.CapID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		cap := c.Capability(id)
		out = append(out, c.Module(cap.Module).String()+":"+cap.Name)
	}
	return out
}

func TestCandidatesForOrdering(t *testing.T) {
	c := New(Config{})
	mustInstall(t, c, module("a", "1.0.0", pkg("p", "1.0.0")))
	mustInstall(t, c, module("b", "1.0.0", pkg("p", "2.0.0")))
	cm := mustInstall(t, c, module("c", "1.0.0", pkg("p", "1.0.0")))

	req := probe(t, resolver.PackageNamespace, "p", "")
	assert.Equal(t, []string{"b@1.0.0:p", "a@1.0.0:p", "c@1.0.0:p"}, names(c, c.CandidatesFor(req, true)))

	// Resolved providers win regardless of version.
	require.NoError(t, c.Commit(map[resolver.ModuleID][]resolver.Wire{cm.ID: {}}))
	assert.Equal(t, []string{"c@1.0.0:p", "b@1.0.0:p", "a@1.0.0:p"}, names(c, c.CandidatesFor(req, true)))

	req = probe(t, resolver.PackageNamespace, "p", "<2.0.0")
	assert.Equal(t, []string{"c@1.0.0:p", "a@1.0.0:p"}, names(c, c.CandidatesFor(req, true)))
}

func TestCandidatesForPatterns(t *testing.T) {
	c := New(Config{})
	mustInstall(t, c, module("a", "1.0.0", pkg("com.acme.util", ""), pkg("com.acme.io", ""), pkg("org.other", "")))
	mustInstall(t, c, module("b", "1.0.0", pkg("com.acme", ""), pkg("com.zed.util", "")))

	lit := probe(t, resolver.PackageNamespace, "com.acme", "")
	assert.Equal(t, []string{"b@1.0.0:com.acme"}, names(c, c.CandidatesFor(lit, true)))

	prefix := probe(t, resolver.PackageNamespace, "com.acme.*", "")
	assert.Equal(t, []string{"a@1.0.0:com.acme.util", "a@1.0.0:com.acme.io"}, names(c, c.CandidatesFor(prefix, true)))

	inner := probe(t, resolver.PackageNamespace, "com.*.util", "")
	assert.Equal(t, []string{"a@1.0.0:com.acme.util", "b@1.0.0:com.zed.util"}, names(c, c.CandidatesFor(inner, true)))

	none := probe(t, resolver.PackageNamespace, "net.*", "")
	assert.Empty(t, c.CandidatesFor(none, true))

	modules := probe(t, resolver.ModuleNamespace, "", "")
	assert.Len(t, c.CandidatesFor(modules, true), 2)

	assert.Empty(t, c.CandidatesFor(probe(t, resolver.Namespace("service"), "x", ""), true))
}

func TestCandidatesForMandatoryAttributes(t *testing.T) {
	c := New(Config{})
	cs := pkg("p", "", "vendor", "acme")
	cs.Mandatory = []string{"vendor"}
	mustInstall(t, c, module("a", "1.0.0", cs))

	req := probe(t, resolver.PackageNamespace, "p", "")
	assert.Empty(t, c.CandidatesFor(req, true))
	assert.Len(t, c.CandidatesFor(req, false), 1)
}

func TestCandidatesForSkipsResolvedHosts(t *testing.T) {
	c := New(Config{})
	h1 := mustInstall(t, c, module("h", "1.0.0"))
	mustInstall(t, c, module("h", "2.0.0"))

	req := probe(t, resolver.HostNamespace, "h", "")
	require.Len(t, c.CandidatesFor(req, true), 2)

	require.NoError(t, c.Commit(map[resolver.ModuleID][]resolver.Wire{h1.ID: {}}))
	assert.Equal(t, []string{"h@2.0.0:h"}, names(c, c.CandidatesFor(req, true)))
}

func TestCandidatesCache(t *testing.T) {
	c := New(Config{CacheSize: 8})
	a := mustInstall(t, c, resolver.ModuleSpec{
		SymbolicName: "a",
		Version:      "1.0.0",
		Requirements: []resolver.RequirementSpec{{Namespace: resolver.PackageNamespace, Name: "p"}},
	})
	req := c.Requirement(a.Requirements[0])

	assert.Empty(t, c.CandidatesFor(req, true))
	assert.Equal(t, 1, c.cache.Len())

	// Installing a provider invalidates what was remembered.
	mustInstall(t, c, module("b", "1.0.0", pkg("p", "")))
	assert.Equal(t, 0, c.cache.Len())
	got := c.CandidatesFor(req, true)
	require.Len(t, got, 1)

	// Callers get their own copy.
	got[0] = 99
	assert.NotEqual(t, resolver.CapID(99), c.CandidatesFor(req, true)[0])

	// Synthetic requirements are never cached.
	c.cache.Purge()
	c.CandidatesFor(probe(t, resolver.PackageNamespace, "p", ""), true)
	assert.Equal(t, 0, c.cache.Len())

	uncached := New(Config{CacheSize: -1})
	assert.Nil(t, uncached.cache)
}

func TestEnvironmentChecks(t *testing.T) {
	c := New(Config{ExecutionEnvironments: []string{"JavaSE-17"}, OS: "linux", Arch: "amd64"})

	ok := &resolver.Module{ExecutionEnvironments: []string{"JavaSE-11", "JavaSE-17"}}
	assert.NoError(t, c.CheckExecutionEnvironment(ok))
	bad := &resolver.Module{ExecutionEnvironments: []string{"JavaSE-21"}}
	assert.Error(t, c.CheckExecutionEnvironment(bad))
	assert.NoError(t, c.CheckExecutionEnvironment(&resolver.Module{}))
	assert.NoError(t, New(Config{}).CheckExecutionEnvironment(bad))

	native := &resolver.Module{NativeLibraries: []resolver.NativeLibrary{
		{Path: "lib/a.dll", OS: "windows", Arch: "amd64"},
		{Path: "lib/a.so", OS: "Linux", Arch: "*"},
	}}
	assert.NoError(t, c.CheckNativeLibraries(native))
	assert.Error(t, New(Config{OS: "darwin", Arch: "arm64"}).CheckNativeLibraries(native))
	assert.NoError(t, c.CheckNativeLibraries(&resolver.Module{}))

	assert.True(t, c.IsEffective(&resolver.Requirement{}))
	assert.True(t, c.IsEffective(&resolver.Requirement{Effective: "resolve"}))
	assert.False(t, c.IsEffective(&resolver.Requirement{Effective: "active"}))
}

func TestFind(t *testing.T) {
	c := New(Config{})
	mustInstall(t, c, module("a", "1.0.0"))
	a2 := mustInstall(t, c, module("a", "2.0.0"))

	assert.Equal(t, a2, c.Find("a", ""))
	assert.Equal(t, "a@1.0.0", c.Find("a", "1.0.0").String())
	assert.Nil(t, c.Find("a", "3.0.0"))
	assert.Nil(t, c.Find("b", ""))
}

func TestResolveAgainstCatalog(t *testing.T) {
	c := New(Config{})
	a := mustInstall(t, c, resolver.ModuleSpec{
		SymbolicName: "a",
		Version:      "1.0.0",
		Requirements: []resolver.RequirementSpec{
			{Namespace: resolver.PackageNamespace, Name: "p", Range: ">=1.0.0"},
		},
	})
	mustInstall(t, c, module("b", "1.0.0", pkg("p", "1.5.0")))
	mustInstall(t, c, module("old", "1.0.0", pkg("p", "0.9.0")))

	r := resolver.New(resolver.Options{})
	wires, err := r.Resolve(context.Background(), c, []resolver.ModuleID{a.ID}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(wires))

	require.Len(t, c.Module(a.ID).Wires, 1)
	w := c.Module(a.ID).Wires[0]
	assert.Equal(t, "b@1.0.0", c.Module(w.Exporter).String())
	assert.Equal(t, "p", w.Package)
	assert.False(t, c.Find("old", "").Resolved)
}

func TestConcurrentQueries(t *testing.T) {
	c := New(Config{CacheSize: 4})
	var reqs []*resolver.Requirement
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		m := mustInstall(t, c, resolver.ModuleSpec{
			SymbolicName: n,
			Version:      "1.0.0",
			Capabilities: []resolver.CapabilitySpec{pkg(n+".api", "")},
			Requirements: []resolver.RequirementSpec{{Namespace: resolver.PackageNamespace, Name: "*.api"}},
		})
		reqs = append(reqs, c.Requirement(m.Requirements[0]))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got := c.CandidatesFor(reqs[(i+j)%len(reqs)], j%2 == 0)
				assert.Len(t, got, 6)
			}
		}(i)
	}
	wg.Wait()
}
