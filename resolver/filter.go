// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// A Filter selects capabilities by name, version range and attributes.
//
// Names are glob patterns: "*" matches any run of characters, dots
// included, so "com.acme.*" admits every package below com.acme.
type Filter struct {
	Namespace  Namespace
	Name       string
	Range      string
	Attributes map[string]string

	g glob.Glob
	c *semver.Constraints
}

// NewFilter compiles a filter. An empty name matches any capability in the
// namespace; an empty rng matches any version.
func NewFilter(ns Namespace, name, rng string, attrs map[string]string) (Filter, error) {
	f := Filter{
		Namespace:  ns,
		Name:       name,
		Range:      rng,
		Attributes: attrs,
	}

	if name != "" && strings.ContainsAny(name, "*?[{") {
		g, err := glob.Compile(name)
		if err != nil {
			return Filter{}, errors.Wrapf(err, "invalid name pattern %q", name)
		}
		f.g = g
	}

	if rng != "" {
		c, err := semver.NewConstraint(rng)
		if err != nil {
			return Filter{}, errors.Wrapf(err, "invalid version range %q", rng)
		}
		f.c = c
	}

	return f, nil
}

// MustFilter is like NewFilter but panics on error.
func MustFilter(ns Namespace, name, rng string, attrs map[string]string) Filter {
	f, err := NewFilter(ns, name, rng, attrs)
	if err != nil {
		panic(err)
	}
	return f
}

// Literal returns the exact name the filter matches, if it matches only one.
func (f Filter) Literal() (string, bool) {
	if f.Name == "" || f.g != nil {
		return "", false
	}
	return f.Name, true
}

// Prefix returns the fixed prefix of a "prefix*" pattern.
func (f Filter) Prefix() (string, bool) {
	if f.g == nil || !strings.HasSuffix(f.Name, "*") {
		return "", false
	}
	p := strings.TrimSuffix(f.Name, "*")
	if strings.ContainsAny(p, "*?[{") {
		return "", false
	}
	return p, true
}

// Matches reports whether c satisfies the filter. With obeyMandatory set, a
// capability listing mandatory attributes only matches filters that name all
// of them.
func (f Filter) Matches(c *Capability, obeyMandatory bool) bool {
	if c.Namespace != f.Namespace {
		return false
	}

	switch {
	case f.g != nil:
		if !f.g.Match(c.Name) {
			return false
		}
	case f.Name != "":
		if f.Name != c.Name {
			return false
		}
	}

	if f.c != nil {
		v := c.Version
		if v == nil {
			v = zeroVersion
		}
		if !f.c.Check(v) {
			return false
		}
	}

	for k, want := range f.Attributes {
		if have, has := c.Attributes[k]; !has || have != want {
			return false
		}
	}

	if obeyMandatory {
		for _, k := range c.Mandatory {
			if _, has := f.Attributes[k]; !has {
				return false
			}
		}
	}

	return true
}

func (f Filter) String() string {
	name := f.Name
	if name == "" {
		name = "*"
	}

	parts := []string{fmt.Sprintf("(%s=%s)", f.Namespace, name)}
	if f.Range != "" {
		parts = append(parts, fmt.Sprintf("(version %s)", f.Range))
	}
	if len(f.Attributes) > 0 {
		keys := make([]string, 0, len(f.Attributes))
		for k := range f.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("(%s=%s)", k, f.Attributes[k]))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}

	var buf bytes.Buffer
	buf.WriteString("(&")
	for _, p := range parts {
		buf.WriteString(p)
	}
	buf.WriteString(")")
	return buf.String()
}

var zeroVersion = semver.MustParse("0.0.0")
