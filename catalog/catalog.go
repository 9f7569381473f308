// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package catalog is an in-memory module catalog the resolver can run
// against.
package catalog

import (
	"runtime"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/modwire/modwire/resolver"
	"github.com/pkg/errors"
)

// DefaultCacheSize is the number of candidate lists a catalog remembers when
// Config.CacheSize is zero.
const DefaultCacheSize = 4096

// Config describes the platform a catalog resolves for.
type Config struct {
	// ExecutionEnvironments the platform provides. Empty disables the check.
	ExecutionEnvironments []string
	// OS and Arch select native libraries. They default to the running
	// platform.
	OS, Arch string
	// CacheSize bounds the candidate cache. Negative disables it.
	CacheSize int
}

type cacheKey struct {
	req  resolver.ReqID
	obey bool
}

// Catalog holds installed modules and answers candidate queries for them.
// It implements resolver.State.
//
// Queries may run concurrently with each other. Install and Commit take an
// exclusive lock.
type Catalog struct {
	cfg Config

	mu    sync.RWMutex
	reg   *resolver.Registry
	tries map[resolver.Namespace]capTrie
	cache *lru.Cache[cacheKey, []resolver.CapID]
}

// New returns an empty catalog.
func New(cfg Config) *Catalog {
	if cfg.OS == "" {
		cfg.OS = runtime.GOOS
	}
	if cfg.Arch == "" {
		cfg.Arch = runtime.GOARCH
	}

	c := &Catalog{
		cfg:   cfg,
		reg:   resolver.NewRegistry(),
		tries: make(map[resolver.Namespace]capTrie),
	}

	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		// Only fails on a non-positive size.
		c.cache, _ = lru.New[cacheKey, []resolver.CapID](size)
	}
	return c
}

// Install adds a module and indexes its capabilities.
func (c *Catalog) Install(spec resolver.ModuleSpec) (*resolver.Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.reg.Install(spec)
	if err != nil {
		return nil, err
	}
	for _, id := range m.Capabilities {
		cap := c.reg.Capability(id)
		t, has := c.tries[cap.Namespace]
		if !has {
			t = newCapTrie()
			c.tries[cap.Namespace] = t
		}
		t.Add(cap.Name, id)
	}
	c.purge()
	return m, nil
}

// Commit records the outcome of a resolve. See resolver.Registry.Commit.
func (c *Catalog) Commit(wires map[resolver.ModuleID][]resolver.Wire) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.reg.Commit(wires)
	c.purge()
	return err
}

// SetRemovalPending flags a module as about to be uninstalled.
func (c *Catalog) SetRemovalPending(id resolver.ModuleID, pending bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.SetRemovalPending(id, pending)
}

func (c *Catalog) purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *Catalog) Module(id resolver.ModuleID) *resolver.Module {
	return c.reg.Module(id)
}

func (c *Catalog) Capability(id resolver.CapID) *resolver.Capability {
	return c.reg.Capability(id)
}

func (c *Catalog) Requirement(id resolver.ReqID) *resolver.Requirement {
	return c.reg.Requirement(id)
}

func (c *Catalog) Fragments(host resolver.ModuleID) []resolver.ModuleID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.Fragments(host)
}

// Modules returns every installed module in installation order.
func (c *Catalog) Modules() []*resolver.Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*resolver.Module(nil), c.reg.Modules()...)
}

// Lookup returns the installed modules with the given symbolic name.
func (c *Catalog) Lookup(name string) []*resolver.Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.Lookup(name)
}

// Find returns the module with the given symbolic name and version, or nil.
// An empty version picks the highest installed one.
func (c *Catalog) Find(name, version string) *resolver.Module {
	var best *resolver.Module
	for _, m := range c.Lookup(name) {
		if version != "" {
			if m.Version.Original() == version || m.Version.String() == version {
				return m
			}
			continue
		}
		if best == nil || m.Version.GreaterThan(best.Version) {
			best = m
		}
	}
	return best
}

// CandidatesFor returns the capabilities matching req. Providers that are
// already resolved come first, then higher versions, then earlier installs.
// Host capabilities of resolved modules are never offered.
func (c *Catalog) CandidatesFor(req *resolver.Requirement, obeyMandatory bool) []resolver.CapID {
	key := cacheKey{req: req.ID, obey: obeyMandatory}
	cacheable := c.cache != nil && req.ID != resolver.NoRequirement
	if cacheable {
		if ids, has := c.cache.Get(key); has {
			return append([]resolver.CapID(nil), ids...)
		}
	}

	c.mu.RLock()
	found := c.match(req, obeyMandatory)
	c.mu.RUnlock()

	if cacheable {
		c.cache.Add(key, found)
	}
	return append([]resolver.CapID(nil), found...)
}

func (c *Catalog) match(req *resolver.Requirement, obeyMandatory bool) []resolver.CapID {
	t, has := c.tries[req.Namespace]
	if !has {
		return nil
	}

	var caps []*resolver.Capability
	visit := func(_ string, ids []resolver.CapID) {
		for _, id := range ids {
			cap := c.reg.Capability(id)
			if !req.Filter.Matches(cap, obeyMandatory) {
				continue
			}
			if req.Namespace == resolver.HostNamespace && c.reg.Module(cap.Module).Resolved {
				continue
			}
			caps = append(caps, cap)
		}
	}

	if name, ok := req.Filter.Literal(); ok {
		if ids, has := t.Get(name); has {
			visit(name, ids)
		}
	} else if prefix, ok := req.Filter.Prefix(); ok {
		t.WalkPrefix(prefix, visit)
	} else {
		t.Walk(visit)
	}

	sort.Slice(caps, func(i, j int) bool {
		ri, rj := c.reg.Module(caps[i].Module).Resolved, c.reg.Module(caps[j].Module).Resolved
		if ri != rj {
			return ri
		}
		if !caps[i].Version.Equal(caps[j].Version) {
			return caps[i].Version.GreaterThan(caps[j].Version)
		}
		if caps[i].Module != caps[j].Module {
			return caps[i].Module < caps[j].Module
		}
		return caps[i].ID < caps[j].ID
	})

	ids := make([]resolver.CapID, len(caps))
	for i, cap := range caps {
		ids[i] = cap.ID
	}
	return ids
}

// IsEffective reports whether req applies at resolve time.
func (c *Catalog) IsEffective(req *resolver.Requirement) bool {
	return req.Effective == "" || req.Effective == "resolve"
}

// CheckExecutionEnvironment fails if m names execution environments and the
// platform provides none of them.
func (c *Catalog) CheckExecutionEnvironment(m *resolver.Module) error {
	if len(m.ExecutionEnvironments) == 0 || len(c.cfg.ExecutionEnvironments) == 0 {
		return nil
	}
	for _, want := range m.ExecutionEnvironments {
		for _, have := range c.cfg.ExecutionEnvironments {
			if want == have {
				return nil
			}
		}
	}
	return errors.Errorf("requires one of %s, platform provides %s",
		strings.Join(m.ExecutionEnvironments, ", "),
		strings.Join(c.cfg.ExecutionEnvironments, ", "))
}

// CheckNativeLibraries fails if m ships native libraries and none of them is
// built for the configured platform.
func (c *Catalog) CheckNativeLibraries(m *resolver.Module) error {
	if len(m.NativeLibraries) == 0 {
		return nil
	}
	for _, lib := range m.NativeLibraries {
		if matchPlatform(lib.OS, c.cfg.OS) && matchPlatform(lib.Arch, c.cfg.Arch) {
			return nil
		}
	}
	return errors.Errorf("no native library for %s/%s", c.cfg.OS, c.cfg.Arch)
}

// matchPlatform treats an empty or "*" library field as matching anything.
func matchPlatform(lib, have string) bool {
	return lib == "" || lib == "*" || strings.EqualFold(lib, have)
}
