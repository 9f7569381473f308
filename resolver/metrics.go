// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import "time"

// PermutationKind tells the two permutation queues apart.
type PermutationKind uint8

const (
	// UsesPermutation explores an alternative provider along a uses chain.
	UsesPermutation PermutationKind = iota
	// ImportPermutation backtracks an earlier import decision.
	ImportPermutation
)

func (k PermutationKind) String() string {
	if k == UsesPermutation {
		return "uses"
	}
	return "import"
}

// Stats summarizes one Resolve or ResolveDynamic call.
type Stats struct {
	// Attempts counts package space and consistency passes.
	Attempts int
	// Restarts counts resolves started over after dropping an optional
	// module at fault.
	Restarts           int
	UsesPermutations   int
	ImportPermutations int
	// Phases holds the time spent in each phase of the resolve.
	Phases map[string]time.Duration
}

// Observer is told about the progress of every resolve. Implementations must
// be safe for concurrent use if the Resolver is.
type Observer interface {
	PassStarted()
	PermutationQueued(PermutationKind)
	Finished(Stats, error)
}

// Phase names recorded in Stats.Phases.
const (
	phaseOther       = "other"
	phasePopulate    = "populate"
	phaseMerge       = "merge"
	phasePackages    = "packages"
	phaseConsistency = "consistency"
	phaseWires       = "wires"
)

// metrics accumulates the time spent in nested phases; time spent in an inner
// phase is not charged to the outer one.
type metrics struct {
	stack []string
	times map[string]time.Duration
	last  time.Time
}

func newMetrics() *metrics {
	return &metrics{
		stack: []string{phaseOther},
		times: map[string]time.Duration{
			phaseOther: 0,
		},
		last: time.Now(),
	}
}

func (m *metrics) push(name string) {
	cn := m.stack[len(m.stack)-1]
	m.times[cn] = m.times[cn] + time.Since(m.last)

	m.stack = append(m.stack, name)
	m.last = time.Now()
}

func (m *metrics) pop() {
	on := m.stack[len(m.stack)-1]
	m.times[on] = m.times[on] + time.Since(m.last)

	m.stack = m.stack[:len(m.stack)-1]
	m.last = time.Now()
}

// snapshot closes out the running phase and returns a copy of the totals.
func (m *metrics) snapshot() map[string]time.Duration {
	cn := m.stack[len(m.stack)-1]
	m.times[cn] = m.times[cn] + time.Since(m.last)
	m.last = time.Now()

	out := make(map[string]time.Duration, len(m.times))
	for k, v := range m.times {
		out[k] = v
	}
	return out
}
