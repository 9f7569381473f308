// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import "sort"

// wrappedHost is an unresolved host together with the fragments selected to
// attach to it. Its capability and requirement lists are what the rest of
// the algorithm sees in place of the host's own.
type wrappedHost struct {
	host      ModuleID
	fragments []ModuleID
	caps      []capRef
	reqs      []reqRef
}

// mergeFragments attaches fragments to their hosts.
//
// For every host, one fragment per symbolic name is selected: the highest
// version that is not pending removal. A fragment that ends up with no host
// is removed, along with anything that depended on it alone. Surviving hosts
// are wrapped with their fragments, and every candidate list is rewritten to
// refer to the wrapped capabilities and requirements.
//
// Calling mergeFragments again on a merged store does nothing.
func (c *store) mergeFragments() error {
	if c.merged {
		return nil
	}
	c.merged = true

	hosts := make([]ModuleID, 0, len(c.frags))
	for h := range c.frags {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i] < hosts[j] })

	selected := make(map[ModuleID][]ModuleID, len(hosts))
	var unselected []ModuleID
	seen := make(map[ModuleID]bool)
	for _, h := range hosts {
		hf := c.frags[h]
		for _, name := range hf.names {
			chosen := false
			for _, e := range hf.byName[name] {
				if !chosen && !c.u.Module(e.module).RemovalPending {
					selected[h] = append(selected[h], e.module)
					chosen = true
					continue
				}

				// Not attaching here; the fragment may still attach elsewhere.
				c.removeDependent(e.host, e.req)
				list := c.cands[e.req]
				idx := indexCap(list, e.host)
				if idx < 0 {
					continue
				}
				list = append(list[:idx:idx], list[idx+1:]...)
				if len(list) > 0 {
					c.cands[e.req] = list
					continue
				}
				delete(c.cands, e.req)
				if !seen[e.module] {
					seen[e.module] = true
					unselected = append(unselected, e.module)
				}
			}
		}
	}

	for _, f := range unselected {
		c.fail(f, &FragmentConflictError{
			Fragment:    f,
			Module:      f,
			Requirement: NoRequirement,
			Cause:       ErrFragmentNotSelected,
			u:           c.u,
		})
		if err := c.removeModule(f); err != nil {
			fe := &FragmentConflictError{
				Fragment:    f,
				Module:      f,
				Requirement: NoRequirement,
				Cause:       err,
				u:           c.u,
			}
			if missing, ok := err.(*MissingRequirementError); ok {
				fe.Module, fe.Requirement = missing.Module, missing.Requirement
			}
			return fe
		}
	}

	var order []*wrappedHost
	for _, h := range hosts {
		if c.failed(h) {
			continue
		}
		var frs []ModuleID
		for _, f := range selected[h] {
			if !c.failed(f) {
				frs = append(frs, f)
			}
		}
		if len(frs) == 0 {
			continue
		}
		wh := c.wrap(h, frs)
		c.wrapped[h] = wh
		order = append(order, wh)
	}

	// Repoint capabilities for every host before copying any requirement's
	// candidates, so copied lists already refer to wrapped capabilities.
	for _, wh := range order {
		c.repointCapabilities(wh)
	}
	for _, wh := range order {
		c.copyRequirements(wh)
	}

	roots := make([]ModuleID, 0, len(c.roots))
	for m := range c.roots {
		roots = append(roots, m)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	for _, m := range roots {
		if r := c.results[m]; r != nil && r.err != nil {
			return r.err
		}
	}
	return nil
}

func (c *store) wrap(h ModuleID, fragments []ModuleID) *wrappedHost {
	host := c.u.Module(h)
	wh := &wrappedHost{host: h, fragments: fragments}

	for _, id := range host.Capabilities {
		if c.u.Capability(id).Namespace == HostNamespace {
			// Fragments attach to the real host, never to the wrapper.
			wh.caps = append(wh.caps, plainCap(id))
			continue
		}
		wh.caps = append(wh.caps, capRef{id: id, host: h})
	}
	for _, f := range fragments {
		for _, id := range c.u.Module(f).Capabilities {
			if c.u.Capability(id).Namespace == PackageNamespace {
				wh.caps = append(wh.caps, capRef{id: id, host: h})
			}
		}
	}

	for _, id := range host.Requirements {
		wh.reqs = append(wh.reqs, plainReq(id))
	}
	for _, f := range fragments {
		for _, id := range c.u.Module(f).Requirements {
			switch c.u.Requirement(id).Namespace {
			case PackageNamespace, ModuleNamespace:
				wh.reqs = append(wh.reqs, reqRef{id: id, host: h})
			}
		}
	}
	return wh
}

// repointCapabilities makes every requirement that depended on one of the
// host's or its fragments' capabilities depend on the wrapped one instead.
// A fragment attached to several hosts ends up with one wrapped capability
// per host, adjacent in each candidate list.
func (c *store) repointCapabilities(wh *wrappedHost) {
	for _, cap := range wh.caps {
		if cap.host == NoModule {
			continue
		}
		orig := plainCap(cap.id)
		dependents := c.deps[orig]
		if len(dependents) == 0 {
			continue
		}
		// The original entry stays: another host may still need it.
		c.deps[cap] = append([]reqRef(nil), dependents...)

		for _, r := range dependents {
			list := c.cands[r]
			if idx := indexCap(list, orig); idx >= 0 {
				list[idx] = cap
				continue
			}
			last := -1
			for i, have := range list {
				if have.id == cap.id {
					last = i
				}
			}
			if last < 0 {
				continue
			}
			list = append(list, capRef{})
			copy(list[last+2:], list[last+1:])
			list[last+1] = cap
			c.cands[r] = list
		}
	}
}

// copyRequirements gives each fragment requirement hosted by wh its own copy
// of the fragment's candidates.
func (c *store) copyRequirements(wh *wrappedHost) {
	for _, r := range wh.reqs {
		if r.host == NoModule {
			continue
		}
		orig := plainReq(r.id)
		list, has := c.cands[orig]
		if !has {
			continue
		}
		c.cands[r] = append([]capRef(nil), list...)
		for _, cap := range list {
			c.removeDependent(cap, orig)
			c.addDependent(cap, r)
		}
	}
}
