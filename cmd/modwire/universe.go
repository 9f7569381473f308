// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/modwire/modwire"
	"github.com/pkg/errors"
)

const (
	defaultUniverse = "universe.toml"
	lockTimeout     = 10 * time.Second
)

// universeFlag is the -f flag shared by every command that reads a universe.
type universeFlag struct {
	file string
}

func (f *universeFlag) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "f", defaultUniverse, "universe descriptor (.toml, .yaml or .yml)")
}

// load takes the universe lock and loads the universe. The returned func
// releases the lock.
func (f *universeFlag) load(ctx *modwire.Ctx) (*modwire.Universe, func(), error) {
	path := ctx.AbsPath(f.file)

	lk := flock.New(path + ".lock")
	lctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lk.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unable to lock %s", path)
	}
	if !locked {
		return nil, nil, errors.Errorf("%s is locked by another process", path)
	}

	u, err := ctx.LoadUniverse(context.Background(), path)
	if err != nil {
		lk.Unlock()
		return nil, nil, err
	}
	return u, func() { lk.Unlock() }, nil
}

// listFlag collects a comma separated flag value, which may be repeated.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}
