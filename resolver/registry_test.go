// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInstall(t *testing.T) {
	r := NewRegistry()

	a, err := r.Install(mkModule("a 1.2.0", "export p", "export q 3.0.0", "import r >=1.0.0", "dynamic com.*"))
	require.NoError(t, err)
	assert.Equal(t, ModuleID(0), a.ID)
	assert.Equal(t, "a@1.2.0", a.String())
	assert.False(t, a.IsFragment())
	assert.Len(t, a.Capabilities, 4)
	assert.Len(t, a.Requirements, 1)
	assert.Len(t, a.DynamicRequirements, 1)

	// Module and host capabilities carry the module version, packages
	// default to 0.0.0.
	mc := r.Capability(a.Capabilities[0])
	assert.Equal(t, ModuleNamespace, mc.Namespace)
	assert.Equal(t, "1.2.0", mc.Version.String())
	assert.Equal(t, a.Capabilities[1], a.HostCapability())
	assert.Equal(t, "0.0.0", r.Capability(a.Capabilities[2]).Version.String())
	assert.Equal(t, "3.0.0", r.Capability(a.Capabilities[3]).Version.String())

	dr := r.Requirement(a.DynamicRequirements[0])
	assert.Equal(t, Dynamic, dr.Resolution)
	assert.True(t, dr.Optional())

	f, err := r.Install(mkModule("f 1.0.0", "host a", "export x"))
	require.NoError(t, err)
	assert.True(t, f.IsFragment())
	assert.Equal(t, NoCapability, f.HostCapability())
	assert.Equal(t, f.Requirements[0], f.HostRequirement())
	assert.Equal(t, ModuleID(1), f.ID)
	assert.Equal(t, CapID(len(a.Capabilities)), f.Capabilities[0], "ids are dense")

	assert.Len(t, r.Lookup("a"), 1)
	assert.Empty(t, r.Lookup("nope"))
	assert.Nil(t, r.Module(7))
	assert.Nil(t, r.Capability(-1))
	assert.Nil(t, r.Requirement(99))
}

func TestRegistryInstallRejects(t *testing.T) {
	cases := map[string]ModuleSpec{
		"no name":     {Version: "1.0.0"},
		"bad version": {SymbolicName: "a", Version: "one"},
		"bad capability version": {SymbolicName: "a", Version: "1.0.0",
			Capabilities: []CapabilitySpec{{Namespace: PackageNamespace, Name: "p", Version: "x.y"}}},
		"capability without namespace": {SymbolicName: "a", Version: "1.0.0",
			Capabilities: []CapabilitySpec{{Name: "p"}}},
		"bad range": {SymbolicName: "a", Version: "1.0.0",
			Requirements: []RequirementSpec{{Namespace: PackageNamespace, Name: "p", Range: "nope"}}},
		"two hosts": {SymbolicName: "a", Version: "1.0.0",
			Requirements: []RequirementSpec{
				{Namespace: HostNamespace, Name: "h"},
				{Namespace: HostNamespace, Name: "g"},
			}},
		"dynamic module requirement": {SymbolicName: "a", Version: "1.0.0",
			DynamicRequirements: []RequirementSpec{{Namespace: ModuleNamespace, Name: "b"}}},
	}

	for n, spec := range cases {
		t.Run(n, func(t *testing.T) {
			r := NewRegistry()
			_, err := r.Install(spec)
			require.Error(t, err)
			assert.Empty(t, r.Modules())
			assert.Empty(t, r.Capabilities())
		})
	}
}

func TestRegistryCommit(t *testing.T) {
	st, ids := install([]ModuleSpec{
		mkModule("a 1.0.0", "import p"),
		mkModule("b 1.0.0", "export p"),
		mkModule("f 1.0.0", "host b"),
	})
	a, b, f := ids["a 1.0.0"], ids["b 1.0.0"], ids["f 1.0.0"]
	bp := pkgCap(st, b, "p")

	wires := map[ModuleID][]Wire{
		a: {{Importer: a, Requirement: st.Module(a).Requirements[0], Exporter: b, Capability: bp.id, Package: "p"}},
		b: {},
		f: {{Importer: f, Requirement: st.Module(f).HostRequirement(), Exporter: b, Capability: st.Module(b).HostCapability()}},
	}
	require.NoError(t, st.Commit(wires))

	assert.True(t, st.Module(a).Resolved)
	assert.True(t, st.Module(b).Resolved)
	assert.True(t, st.Module(f).Resolved)
	assert.Len(t, st.Module(a).Wires, 1)
	assert.Equal(t, []ModuleID{f}, st.Fragments(b))

	// A second commit of the same map changes nothing.
	require.NoError(t, st.Commit(wires))
	assert.Len(t, st.Module(a).Wires, 1)
	assert.Equal(t, []ModuleID{f}, st.Fragments(b))

	// Dynamic wires are appended to resolved modules.
	dyn := Wire{Importer: a, Requirement: st.Module(a).Requirements[0], Exporter: b, Capability: bp.id, Package: "p", Dynamic: true}
	require.NoError(t, st.Commit(map[ModuleID][]Wire{a: {dyn}}))
	assert.Len(t, st.Module(a).Wires, 2)

	assert.Error(t, st.Commit(map[ModuleID][]Wire{42: nil}))
}

func TestRegistryCommitFragmentToSecondHost(t *testing.T) {
	st, ids := install([]ModuleSpec{
		mkModule("h 1.0.0"),
		mkModule("h 2.0.0"),
		mkModule("f 1.0.0", "host h"),
	})
	h1, h2, f := ids["h 1.0.0"], ids["h 2.0.0"], ids["f 1.0.0"]
	hostWire := func(h ModuleID) Wire {
		return Wire{Importer: f, Requirement: st.Module(f).HostRequirement(), Exporter: h, Capability: st.Module(h).HostCapability()}
	}

	require.NoError(t, st.Commit(map[ModuleID][]Wire{h1: {}, f: {hostWire(h1)}}))
	require.NoError(t, st.Commit(map[ModuleID][]Wire{h2: {}, f: {hostWire(h1), hostWire(h2)}}))

	assert.Equal(t, []ModuleID{f}, st.Fragments(h1))
	assert.Equal(t, []ModuleID{f}, st.Fragments(h2))
	assert.Len(t, st.Module(f).Wires, 2)
}

func TestRegistrySetRemovalPending(t *testing.T) {
	st, ids := install([]ModuleSpec{mkModule("a 1.0.0")})

	require.NoError(t, st.SetRemovalPending(ids["a 1.0.0"], true))
	assert.True(t, st.Module(ids["a 1.0.0"]).RemovalPending)
	assert.Error(t, st.SetRemovalPending(5, true))
}
