// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"

	"github.com/modwire/modwire"
	"github.com/modwire/modwire/resolver"
	"github.com/pkg/errors"
)

const dynamicShortHelp = `Wire a dynamic import into a resolved module`
const dynamicLongHelp = `
Dynamic finds a provider for a package that a resolved module imports
dynamically, and resolves whatever that provider needs. The module must be
marked resolved in the universe and have a dynamic import matching the
package.

Nothing is printed, and the command succeeds, if the module cannot import
the package dynamically: it already sees the package, exports it itself, or
none of its dynamic imports admit a provider.
`

type dynamicCommand struct {
	universe universeFlag
}

func (cmd *dynamicCommand) Name() string      { return "dynamic" }
func (cmd *dynamicCommand) Args() string      { return "[-f universe] <module> <package>" }
func (cmd *dynamicCommand) ShortHelp() string { return dynamicShortHelp }
func (cmd *dynamicCommand) LongHelp() string  { return dynamicLongHelp }
func (cmd *dynamicCommand) Hidden() bool      { return false }

func (cmd *dynamicCommand) Register(fs *flag.FlagSet) {
	cmd.universe.register(fs)
}

func (cmd *dynamicCommand) Run(ctx *modwire.Ctx, args []string) error {
	if len(args) != 2 {
		return errors.Errorf("dynamic takes exactly two arguments, a module and a package")
	}

	u, unlock, err := cmd.universe.load(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := u.Find(args[0])
	if err != nil {
		return err
	}
	if !m.Resolved {
		return errors.Errorf("%s is not resolved", m)
	}

	r := ctx.Resolver(resolver.Options{})
	wires, err := r.ResolveDynamic(context.Background(), u.Catalog, m.ID, args[1], u.Fragments())
	if err != nil {
		return errors.Wrapf(err, "dynamic import of %s failed", args[1])
	}
	if wires == nil {
		if ctx.Verbose {
			ctx.Err.Printf("modwire: %s cannot import %s dynamically\n", m, args[1])
		}
		return nil
	}

	for _, line := range u.Describe(wires) {
		ctx.Out.Println(line)
	}
	return nil
}
