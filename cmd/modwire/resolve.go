// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"path/filepath"
	"strings"

	"github.com/modwire/modwire"
	"github.com/modwire/modwire/internal/metrics"
	"github.com/modwire/modwire/internal/wirecache"
	"github.com/modwire/modwire/resolver"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const resolveShortHelp = `Resolve modules and print their wires`
const resolveLongHelp = `
Resolve computes wires for the named modules, given as name or name@version.
Without arguments, every unresolved module that is not a fragment is resolved.

Optional modules (-optional) are resolved if they can be, and dropped
otherwise. Fragments attach to the hosts being resolved when they can; by
default every unresolved fragment in the universe is offered.

With -write, the result is recorded in wiring.lock next to the universe. With
-cache, results are remembered in a cache file keyed by a digest of the
universe and the arguments, and reused while neither changes.
`

type resolveCommand struct {
	universe    universeFlag
	optional    listFlag
	fragments   listFlag
	write       bool
	cache       string
	metrics     string
	maxAttempts int
}

func (cmd *resolveCommand) Name() string { return "resolve" }
func (cmd *resolveCommand) Args() string {
	return "[-f universe] [-optional m,...] [-fragments m,...] [-write] [-cache file] [-metrics file] [module...]"
}
func (cmd *resolveCommand) ShortHelp() string { return resolveShortHelp }
func (cmd *resolveCommand) LongHelp() string  { return resolveLongHelp }
func (cmd *resolveCommand) Hidden() bool      { return false }

func (cmd *resolveCommand) Register(fs *flag.FlagSet) {
	cmd.universe.register(fs)
	fs.Var(&cmd.optional, "optional", "modules to resolve if possible (comma separated)")
	fs.Var(&cmd.fragments, "fragments", "fragments to offer for attachment (comma separated; default: all unresolved)")
	fs.BoolVar(&cmd.write, "write", false, "record the wiring in "+modwire.LockName)
	fs.StringVar(&cmd.cache, "cache", "", "wiring cache file")
	fs.StringVar(&cmd.metrics, "metrics", "", "write resolver metrics to this file in Prometheus text format")
	fs.IntVar(&cmd.maxAttempts, "max-attempts", 0, "give up after this many resolve passes (0 means no limit)")
}

func (cmd *resolveCommand) Run(ctx *modwire.Ctx, args []string) (err error) {
	u, unlock, err := cmd.universe.load(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	mandatory := u.Unresolved()
	if len(args) > 0 {
		if mandatory, err = u.FindAll(args); err != nil {
			return err
		}
	}
	optional, err := u.FindAll(cmd.optional)
	if err != nil {
		return err
	}
	onDemand := u.Fragments()
	if len(cmd.fragments) > 0 {
		if onDemand, err = u.FindAll(cmd.fragments); err != nil {
			return err
		}
	}
	memo := u.Memo(selectionArgs(args, cmd.optional, cmd.fragments)...)

	var obs resolver.Observer
	if cmd.metrics != "" {
		reg := prometheus.NewRegistry()
		var col *metrics.Collector
		if col, err = metrics.NewCollector(reg); err != nil {
			return err
		}
		obs = col
		defer func() {
			if merr := metrics.WriteTextfile(ctx.AbsPath(cmd.metrics), reg); merr != nil && err == nil {
				err = merr
			}
		}()
	}

	var cache *wirecache.Cache
	if cmd.cache != "" {
		if cache, err = wirecache.Open(ctx.AbsPath(cmd.cache), 0); err != nil {
			return err
		}
		defer cache.Close()
	}

	var lock *modwire.Lock
	if cache != nil {
		wires, ok, err := cache.Get(memo)
		if err != nil {
			ctx.Err.Printf("modwire: ignoring wiring cache: %v\n", err)
		} else if ok {
			if ctx.Verbose {
				ctx.Err.Println("modwire: using cached wiring")
			}
			lock = &modwire.Lock{Memo: memo, Wires: wires}
		}
	}

	if lock == nil {
		r := ctx.Resolver(resolver.Options{MaxAttempts: cmd.maxAttempts, Observer: obs})
		wires, err := r.Resolve(context.Background(), u.Catalog, mandatory, optional, onDemand)
		if err != nil {
			return errors.Wrap(err, "resolve failed")
		}
		lock = modwire.NewLock(u.Catalog, wires, memo)
		if cache != nil {
			if err := cache.Put(memo, lock.Wires); err != nil {
				ctx.Err.Printf("modwire: unable to cache wiring: %v\n", err)
			}
		}
	}

	for _, w := range lock.Wires {
		ctx.Out.Println(formatLockedWire(w))
	}

	if !cmd.write {
		return nil
	}
	lpath := filepath.Join(filepath.Dir(u.Path), modwire.LockName)
	old, err := modwire.LoadLock(lpath)
	if err != nil {
		return err
	}
	if old != nil && old.Equivalent(lock) {
		if ctx.Verbose {
			ctx.Err.Printf("modwire: %s is up to date\n", lpath)
		}
		return nil
	}
	return modwire.WriteLock(lpath, lock)
}

// selectionArgs flattens what was asked for into digest input. Each list is
// tagged so that moving a module between lists changes the digest.
func selectionArgs(mandatory, optional, fragments []string) []string {
	out := append([]string{"mandatory"}, mandatory...)
	out = append(out, "optional")
	out = append(out, optional...)
	out = append(out, "fragments")
	return append(out, fragments...)
}

func formatLockedWire(w modwire.LockedWire) string {
	if w.Namespace == "" {
		return w.Importer + ": no wires"
	}
	kind := w.Namespace
	if w.Dynamic {
		kind = "dynamic " + kind
	}
	s := w.Importer + ": " + kind + " " + w.Name + " -> " + w.Exporter
	if len(w.Packages) > 0 {
		s += " (" + strings.Join(w.Packages, ", ") + ")"
	}
	return s
}
