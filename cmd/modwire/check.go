// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"io/ioutil"
	"log"
	"runtime"

	"github.com/modwire/modwire"
	"github.com/modwire/modwire/resolver"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const checkShortHelp = `Check that every module in the universe resolves`
const checkLongHelp = `
Check resolves every unresolved module of the universe on its own, several at
a time, and prints a description of each one that fails. It exits 1 if any
module fails. Passing -q suppresses output for modules that resolve.

Fragments are offered to every resolve, as with resolve.
`

type checkCommand struct {
	universe universeFlag
	jobs     int
	quiet    bool
}

func (cmd *checkCommand) Name() string      { return "check" }
func (cmd *checkCommand) Args() string      { return "[-f universe] [-j N] [-q]" }
func (cmd *checkCommand) ShortHelp() string { return checkShortHelp }
func (cmd *checkCommand) LongHelp() string  { return checkLongHelp }
func (cmd *checkCommand) Hidden() bool      { return false }

func (cmd *checkCommand) Register(fs *flag.FlagSet) {
	cmd.universe.register(fs)
	fs.IntVar(&cmd.jobs, "j", runtime.NumCPU(), "number of modules to resolve at once")
	fs.BoolVar(&cmd.quiet, "q", false, "Suppress non-error output")
}

func (cmd *checkCommand) Run(ctx *modwire.Ctx, args []string) error {
	if len(args) > 0 {
		return errors.Errorf("check takes no arguments")
	}

	logger := ctx.Out
	if cmd.quiet {
		logger = log.New(ioutil.Discard, "", 0)
	}

	u, unlock, err := cmd.universe.load(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	targets := u.Unresolved()
	fragments := u.Fragments()
	results := make([]error, len(targets))

	// Nothing is committed while checking, so the catalog is only read and
	// the resolves can share it.
	r := ctx.Resolver(resolver.Options{})
	eg, egctx := errgroup.WithContext(context.Background())
	if cmd.jobs > 0 {
		eg.SetLimit(cmd.jobs)
	}
	for i, id := range targets {
		i, id := i, id
		eg.Go(func() error {
			_, err := r.Resolve(egctx, u.Catalog, []resolver.ModuleID{id}, nil, fragments)
			results[i] = err
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	var failed int
	for i, id := range targets {
		m := u.Catalog.Module(id)
		if results[i] != nil {
			failed++
			ctx.Err.Printf("%s: %v\n", m, results[i])
			continue
		}
		logger.Printf("%s: ok\n", m)
	}

	if failed > 0 {
		return errors.Errorf("%d of %d modules do not resolve", failed, len(targets))
	}
	return nil
}
