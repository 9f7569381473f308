// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exports resolver statistics to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/modwire/modwire/resolver"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector turns resolver callbacks into Prometheus metrics. It is a
// resolver.Observer and safe for concurrent use.
type Collector struct {
	passes       prometheus.Counter
	permutations *prometheus.CounterVec
	resolves     *prometheus.CounterVec
	restarts     prometheus.Counter
	duration     prometheus.Histogram
	phases       *prometheus.HistogramVec
}

var _ resolver.Observer = (*Collector)(nil)

// NewCollector creates the resolver metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modwire_resolve_passes_total",
			Help: "Number of package space and consistency passes run.",
		}),
		permutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modwire_permutations_total",
			Help: "Number of candidate permutations queued, by kind.",
		}, []string{"kind"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modwire_resolves_total",
			Help: "Number of resolves finished, by outcome.",
		}, []string{"outcome"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modwire_resolve_restarts_total",
			Help: "Number of resolves started over after dropping a faulty optional module.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "modwire_resolve_duration_seconds",
			Help:    "Time taken by a whole resolve.",
			Buckets: prometheus.DefBuckets,
		}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modwire_resolve_phase_seconds",
			Help:    "Time spent in each phase of a resolve.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
	}

	for _, col := range []prometheus.Collector{c.passes, c.permutations, c.resolves, c.restarts, c.duration, c.phases} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "failed to register resolver metrics")
		}
	}
	return c, nil
}

func (c *Collector) PassStarted() {
	c.passes.Inc()
}

func (c *Collector) PermutationQueued(kind resolver.PermutationKind) {
	c.permutations.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) Finished(stats resolver.Stats, err error) {
	c.resolves.WithLabelValues(Outcome(err)).Inc()
	c.restarts.Add(float64(stats.Restarts))

	var total time.Duration
	for phase, d := range stats.Phases {
		total += d
		c.phases.WithLabelValues(phase).Observe(d.Seconds())
	}
	c.duration.Observe(total.Seconds())
}

// Outcome classifies the result of a resolve for the outcome label.
func Outcome(err error) string {
	cause := errors.Cause(err)
	switch cause {
	case resolver.ErrAttemptsExhausted:
		return "exhausted"
	case context.Canceled, context.DeadlineExceeded:
		return "cancelled"
	}
	switch cause.(type) {
	case nil:
		return "resolved"
	case *resolver.MissingRequirementError:
		return "missing"
	case *resolver.UsesConflictError:
		return "uses_conflict"
	case *resolver.FragmentConflictError:
		return "fragment_conflict"
	case *resolver.EnvironmentError:
		return "environment"
	}
	return "error"
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, g), "failed to write metrics to %s", path)
}
