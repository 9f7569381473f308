// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modwire/modwire/catalog"
	"github.com/modwire/modwire/resolver"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.PassStarted()
	c.PassStarted()
	c.PermutationQueued(resolver.UsesPermutation)
	c.PermutationQueued(resolver.ImportPermutation)
	c.PermutationQueued(resolver.ImportPermutation)
	c.Finished(resolver.Stats{
		Attempts: 2,
		Restarts: 1,
		Phases: map[string]time.Duration{
			"populate": 10 * time.Millisecond,
			"packages": 20 * time.Millisecond,
		},
	}, nil)
	c.Finished(resolver.Stats{}, &resolver.MissingRequirementError{})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.passes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.permutations.WithLabelValues("uses")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.permutations.WithLabelValues("import")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resolves.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resolves.WithLabelValues("missing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.restarts))
	assert.Equal(t, 2, testutil.CollectAndCount(c.phases))

	_, err = NewCollector(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"resolved":          nil,
		"missing":           &resolver.MissingRequirementError{},
		"uses_conflict":     errors.Wrap(&resolver.UsesConflictError{}, "pass 3"),
		"fragment_conflict": &resolver.FragmentConflictError{},
		"environment":       &resolver.EnvironmentError{},
		"exhausted":         errors.Wrapf(resolver.ErrAttemptsExhausted, "after %d passes", 4),
		"cancelled":         context.Canceled,
		"error":             errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Outcome(err), "%v", err)
	}
}

func TestCollectorObservesResolve(t *testing.T) {
	reg := prometheus.NewRegistry()
	col, err := NewCollector(reg)
	require.NoError(t, err)

	cat := catalog.New(catalog.Config{})
	a, err := cat.Install(resolver.ModuleSpec{
		SymbolicName: "a",
		Version:      "1.0.0",
		Requirements: []resolver.RequirementSpec{{Namespace: resolver.PackageNamespace, Name: "p"}},
	})
	require.NoError(t, err)

	r := resolver.New(resolver.Options{Observer: col})
	_, err = r.Resolve(context.Background(), cat, []resolver.ModuleID{a.ID}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(col.resolves.WithLabelValues("missing")))

	path := filepath.Join(t.TempDir(), "modwire.prom")
	require.NoError(t, WriteTextfile(path, reg))
	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `modwire_resolves_total{outcome="missing"} 1`), string(b))
}
