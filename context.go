// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package modwire loads module universes, runs the resolver over them and
// records the outcome in a wiring lock.
package modwire

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/modwire/modwire/resolver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Ctx defines the supporting context of the tool.
type Ctx struct {
	WorkingDir string      // Where to execute.
	Out, Err   *log.Logger // Required loggers.
	Verbose    bool        // Enables more verbose logging.
	Trace      bool        // Enables resolver trace output on Err.
}

// Logger returns a structured logger writing to the error logger's output.
// It reports debug messages when the context is verbose.
func (c *Ctx) Logger() *logrus.Logger {
	l := logrus.New()
	l.Out = c.Err.Writer()
	l.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	if c.Verbose {
		l.Level = logrus.DebugLevel
	} else {
		l.Level = logrus.WarnLevel
	}
	return l
}

// Resolver returns a resolver set up according to the context. Zero values
// in opts are filled in from the context.
func (c *Ctx) Resolver(opts resolver.Options) *resolver.Resolver {
	if opts.Logger == nil {
		opts.Logger = c.Logger()
	}
	if c.Trace {
		opts.Trace = true
		if opts.TraceLogger == nil {
			opts.TraceLogger = c.Err
		}
	}
	return resolver.New(opts)
}

// AbsPath resolves path against the working directory.
func (c *Ctx) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkingDir, path)
}

// LoadUniverse reads the universe descriptor at path. Modules the descriptor
// marks as resolved are resolved while loading.
func (c *Ctx) LoadUniverse(ctx context.Context, path string) (*Universe, error) {
	path = c.AbsPath(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open universe %s", path)
	}
	defer f.Close()

	raw, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read universe %s", path)
	}

	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}

	u, err := readUniverse(ctx, raw, format, c.Resolver(resolver.Options{}))
	if err != nil {
		return nil, errors.Wrapf(err, "error while loading %s", path)
	}
	u.Path = path
	if c.Verbose {
		c.Err.Printf("modwire: loaded %d modules from %s\n", len(u.Catalog.Modules()), path)
	}
	return u, nil
}
