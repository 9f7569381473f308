// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// nvSplit splits an "info" string on " " into the pair of name and version,
// and returns each individually.
//
// This is for narrow use - panics if there are less than two resulting items in
// the slice.
func nvSplit(info string) (name, version string) {
	s := strings.SplitN(info, " ", 2)
	if len(s) < 2 {
		panic(fmt.Sprintf("Malformed name/version info string '%s'", info))
	}
	return s[0], s[1]
}

// mkModule builds a module spec from a "name version" string and a list of
// declarations, one per string:
//
//  export p [version] [uses=q,r] [k=v]   package capability
//  import p [range] [k=v]                package requirement
//  import? p ...                         optional package requirement
//  require b [range] [reexport]          module requirement
//  require? b ...                        optional module requirement
//  host h [range]                        makes the module a fragment of h
//  dynamic pattern                       dynamic package requirement
//  runtime env                           required execution environment
//  native os/arch                        native library for os and arch
//  pending                               removal pending
//
// Modules that are not fragments get module and host capabilities named
// after themselves.
func mkModule(info string, decls ...string) ModuleSpec {
	name, version := nvSplit(info)
	spec := ModuleSpec{
		SymbolicName: name,
		Version:      version,
	}

	fragment := false
	for _, d := range decls {
		if strings.HasPrefix(d, "host ") {
			fragment = true
		}
	}
	if !fragment {
		spec.Capabilities = append(spec.Capabilities,
			CapabilitySpec{Namespace: ModuleNamespace, Name: name},
			CapabilitySpec{Namespace: HostNamespace, Name: name},
		)
	}

	for _, d := range decls {
		f := strings.Fields(d)
		switch f[0] {
		case "export":
			cs := CapabilitySpec{Namespace: PackageNamespace, Name: f[1]}
			for _, arg := range f[2:] {
				switch {
				case strings.HasPrefix(arg, "uses="):
					cs.Uses = strings.Split(strings.TrimPrefix(arg, "uses="), ",")
				case strings.HasPrefix(arg, "mandatory="):
					cs.Mandatory = strings.Split(strings.TrimPrefix(arg, "mandatory="), ",")
				case strings.Contains(arg, "="):
					if cs.Attributes == nil {
						cs.Attributes = make(map[string]string)
					}
					kv := strings.SplitN(arg, "=", 2)
					cs.Attributes[kv[0]] = kv[1]
				default:
					cs.Version = arg
				}
			}
			spec.Capabilities = append(spec.Capabilities, cs)

		case "import", "import?", "require", "require?", "host":
			rs := RequirementSpec{Name: f[1]}
			switch strings.TrimSuffix(f[0], "?") {
			case "import":
				rs.Namespace = PackageNamespace
			case "require":
				rs.Namespace = ModuleNamespace
			case "host":
				rs.Namespace = HostNamespace
			}
			if strings.HasSuffix(f[0], "?") {
				rs.Resolution = Optional
			}
			for _, arg := range f[2:] {
				switch {
				case arg == "reexport":
					rs.Reexport = true
				case strings.HasPrefix(arg, "effective="):
					rs.Effective = strings.TrimPrefix(arg, "effective=")
				case strings.Contains(arg, "=") && !strings.ContainsAny(arg[:1], "<>=!~^"):
					if rs.Attributes == nil {
						rs.Attributes = make(map[string]string)
					}
					kv := strings.SplitN(arg, "=", 2)
					rs.Attributes[kv[0]] = kv[1]
				default:
					rs.Range = arg
				}
			}
			spec.Requirements = append(spec.Requirements, rs)

		case "dynamic":
			spec.DynamicRequirements = append(spec.DynamicRequirements, RequirementSpec{
				Namespace: PackageNamespace,
				Name:      f[1],
			})

		case "runtime":
			spec.ExecutionEnvironments = append(spec.ExecutionEnvironments, f[1])

		case "native":
			osarch := strings.SplitN(f[1], "/", 2)
			spec.NativeLibraries = append(spec.NativeLibraries, NativeLibrary{
				Path: "lib/" + name + ".so",
				OS:   osarch[0],
				Arch: osarch[1],
			})

		case "pending":
			spec.RemovalPending = true

		default:
			panic(fmt.Sprintf("unknown declaration %q", d))
		}
	}
	return spec
}

// testState is a State backed directly by a Registry. Candidates are found
// by scanning every capability and ordered the way a framework would: already
// resolved providers first, then higher versions, then install order.
type testState struct {
	*Registry
	env      []string
	os, arch string
}

func newTestState(env ...string) *testState {
	return &testState{
		Registry: NewRegistry(),
		env:      env,
		os:       "linux",
		arch:     "amd64",
	}
}

func (s *testState) CandidatesFor(req *Requirement, obeyMandatory bool) []CapID {
	var out []*Capability
	for _, c := range s.Capabilities() {
		if !req.Filter.Matches(c, obeyMandatory) {
			continue
		}
		if req.Namespace == HostNamespace && s.Module(c.Module).Resolved {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := s.Module(out[i].Module).Resolved, s.Module(out[j].Module).Resolved
		if ri != rj {
			return ri
		}
		if !out[i].Version.Equal(out[j].Version) {
			return out[i].Version.GreaterThan(out[j].Version)
		}
		return out[i].Module < out[j].Module
	})

	ids := make([]CapID, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	return ids
}

func (s *testState) IsEffective(req *Requirement) bool {
	return req.Effective == "" || req.Effective == "resolve"
}

func (s *testState) CheckExecutionEnvironment(m *Module) error {
	if len(s.env) == 0 || len(m.ExecutionEnvironments) == 0 {
		return nil
	}
	for _, want := range m.ExecutionEnvironments {
		for _, have := range s.env {
			if want == have {
				return nil
			}
		}
	}
	return errors.Errorf("requires one of %v", m.ExecutionEnvironments)
}

func (s *testState) CheckNativeLibraries(m *Module) error {
	if len(m.NativeLibraries) == 0 {
		return nil
	}
	for _, lib := range m.NativeLibraries {
		if lib.OS == s.os && lib.Arch == s.arch {
			return nil
		}
	}
	return errors.Errorf("no native library for %s/%s", s.os, s.arch)
}

// install loads specs into a fresh test state and returns it along with a
// lookup from "name version" to module ID.
func install(ds []ModuleSpec, env ...string) (*testState, map[string]ModuleID) {
	st := newTestState(env...)
	ids := make(map[string]ModuleID)
	for _, spec := range ds {
		m, err := st.Install(spec)
		if err != nil {
			panic(fmt.Sprintf("bad fixture module %s: %s", spec.SymbolicName, err))
		}
		ids[spec.SymbolicName+" "+spec.Version] = m.ID
	}
	return st, ids
}

// wireString renders a wire from the importer's point of view.
func wireString(u Universe, w Wire) string {
	req := u.Requirement(w.Requirement)
	kind := string(req.Namespace)
	name := u.Capability(w.Capability).Name
	if w.Dynamic {
		kind = "dynamic"
	}
	s := fmt.Sprintf("%s %s -> %s", kind, name, modName(u, w.Exporter))
	if len(w.Packages) > 0 {
		s += " [" + strings.Join(w.Packages, " ") + "]"
	}
	return s
}

// wireStrings renders a whole wire map keyed by "name@version", with the
// wires of each module sorted.
func wireStrings(u Universe, wires map[ModuleID][]Wire) map[string][]string {
	out := make(map[string][]string, len(wires))
	for m, ws := range wires {
		list := make([]string, 0, len(ws))
		for _, w := range ws {
			list = append(list, wireString(u, w))
		}
		sort.Strings(list)
		out[modName(u, m)] = list
	}
	return out
}
