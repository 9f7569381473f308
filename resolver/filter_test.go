// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	cap := &Capability{
		Namespace:  PackageNamespace,
		Name:       "com.acme.util",
		Version:    semver.MustParse("1.4.0"),
		Attributes: map[string]string{"vendor": "acme"},
	}

	cases := map[string]struct {
		name, rng string
		attrs     map[string]string
		want      bool
	}{
		"exact name":            {name: "com.acme.util", want: true},
		"other name":            {name: "com.acme.io", want: false},
		"any name":              {want: true},
		"glob spans dots":       {name: "com.*", want: true},
		"glob prefix miss":      {name: "org.*", want: false},
		"range inside":          {name: "com.acme.util", rng: ">=1.0.0, <2.0.0", want: true},
		"range outside":         {name: "com.acme.util", rng: ">=2.0.0", want: false},
		"attribute equal":       {name: "com.acme.util", attrs: map[string]string{"vendor": "acme"}, want: true},
		"attribute differs":     {name: "com.acme.util", attrs: map[string]string{"vendor": "other"}, want: false},
		"attribute not offered": {name: "com.acme.util", attrs: map[string]string{"license": "bsd"}, want: false},
	}

	for n, c := range cases {
		t.Run(n, func(t *testing.T) {
			f, err := NewFilter(PackageNamespace, c.name, c.rng, c.attrs)
			require.NoError(t, err)
			assert.Equal(t, c.want, f.Matches(cap, true))
		})
	}
}

func TestFilterNamespaceAndMandatory(t *testing.T) {
	cap := &Capability{
		Namespace:  PackageNamespace,
		Name:       "p",
		Attributes: map[string]string{"vendor": "acme"},
		Mandatory:  []string{"vendor"},
	}

	f := MustFilter(ModuleNamespace, "p", "", nil)
	assert.False(t, f.Matches(cap, false), "namespaces must agree")

	f = MustFilter(PackageNamespace, "p", "", nil)
	assert.False(t, f.Matches(cap, true))
	assert.True(t, f.Matches(cap, false))

	f = MustFilter(PackageNamespace, "p", "", map[string]string{"vendor": "acme"})
	assert.True(t, f.Matches(cap, true))

	// No version at all counts as 0.0.0.
	f = MustFilter(PackageNamespace, "p", "<1.0.0", nil)
	assert.True(t, f.Matches(cap, false))
}

func TestFilterBadInput(t *testing.T) {
	_, err := NewFilter(PackageNamespace, "com.[acme", "", nil)
	assert.Error(t, err)

	_, err = NewFilter(PackageNamespace, "p", "not a range", nil)
	assert.Error(t, err)

	assert.Panics(t, func() { MustFilter(PackageNamespace, "p", "not a range", nil) })
}

func TestFilterLiteralAndPrefix(t *testing.T) {
	f := MustFilter(PackageNamespace, "com.acme", "", nil)
	lit, ok := f.Literal()
	assert.True(t, ok)
	assert.Equal(t, "com.acme", lit)
	_, ok = f.Prefix()
	assert.False(t, ok)

	f = MustFilter(PackageNamespace, "com.acme.*", "", nil)
	_, ok = f.Literal()
	assert.False(t, ok)
	pre, ok := f.Prefix()
	assert.True(t, ok)
	assert.Equal(t, "com.acme.", pre)

	f = MustFilter(PackageNamespace, "com.*.util", "", nil)
	_, ok = f.Prefix()
	assert.False(t, ok)

	f = MustFilter(PackageNamespace, "", "", nil)
	_, ok = f.Literal()
	assert.False(t, ok)
}

func TestFilterString(t *testing.T) {
	assert.Equal(t, "(package=p)", MustFilter(PackageNamespace, "p", "", nil).String())
	assert.Equal(t, "(module=*)", MustFilter(ModuleNamespace, "", "", nil).String())
	assert.Equal(t,
		"(&(package=p)(version >=1.0.0)(a=1)(b=2))",
		MustFilter(PackageNamespace, "p", ">=1.0.0", map[string]string{"b": "2", "a": "1"}).String(),
	)
}
