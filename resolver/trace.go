// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"fmt"
	"strings"
)

const (
	successChar   = "✓"
	successCharSp = successChar + " "
	failChar      = "✗"
	failCharSp    = failChar + " "
	backChar      = "←"
)

// traceStart is called once per resolve, after the targets are known.
func (s *session) traceStart(targets []ModuleID) {
	if !s.r.trace {
		return
	}

	names := make([]string, 0, len(targets))
	for _, m := range targets {
		names = append(names, modName(s.st, m))
	}
	s.r.tl.Printf("Resolving %s", strings.Join(names, ", "))
}

// tracePass is called as each package space pass begins.
func (s *session) tracePass(pending int) {
	if !s.r.trace {
		return
	}

	msg := fmt.Sprintf("? pass %d; %d permutations pending", s.stats.Attempts, pending)
	s.r.tl.Printf("%s\n", tracePrefix(msg, "| ", "| "))
}

// traceConflict is called whenever consistency checking fails.
func (s *session) traceConflict(err error) {
	if !s.r.trace {
		return
	}
	s.traceInfo(err)
}

// traceQueue is called for every queued permutation.
func (s *session) traceQueue(kind PermutationKind) {
	if !s.r.trace {
		return
	}

	msg := fmt.Sprintf("%s queue %s permutation (%d uses, %d import)", backChar, kind, len(s.usesPerms), len(s.importPerms))
	prefix := strings.Repeat("| ", 2)
	s.r.tl.Printf("%s\n", tracePrefix(msg, prefix, prefix))
}

// traceRestart is called when an optional module at fault is dropped and the
// resolve starts over.
func (s *session) traceRestart(faulty ModuleID, err error) {
	if !s.r.trace {
		return
	}

	s.traceInfo(err)
	msg := fmt.Sprintf("%s drop %s and start over", backChar, modName(s.st, faulty))
	s.r.tl.Printf("%s\n", tracePrefix(msg, "| ", "| "))
}

// traceFinish is called just once, whether the resolve succeeded or not.
func (s *session) traceFinish(wires map[ModuleID][]Wire, err error) {
	if !s.r.trace {
		return
	}

	if err != nil {
		s.r.tl.Printf("%s resolving failed after %d passes", failChar, s.stats.Attempts)
		return
	}

	var count int
	for _, ws := range wires {
		count += len(ws)
	}
	s.r.tl.Printf("%s resolved %d modules with %d wires in %d passes", successChar, len(wires), count, s.stats.Attempts)
}

func (s *session) traceInfo(args ...interface{}) {
	if !s.r.trace {
		return
	}

	if len(args) == 0 {
		panic("must pass at least one param to traceInfo")
	}

	preflen := 1
	var msg string
	switch data := args[0].(type) {
	case string:
		msg = tracePrefix(fmt.Sprintf(data, args[1:]...), "| ", "| ")
	case traceError:
		preflen++
		msg = tracePrefix(data.traceString(), "| ", failCharSp)
	case error:
		msg = tracePrefix(data.Error(), "| ", failCharSp)
	default:
		panic(fmt.Sprintf("canary - unknown type passed as first param to traceInfo %T", data))
	}

	prefix := strings.Repeat("| ", preflen)
	s.r.tl.Printf("%s\n", tracePrefix(msg, prefix, prefix))
}

func tracePrefix(msg, sep, fsep string) string {
	parts := strings.Split(strings.TrimSuffix(msg, "\n"), "\n")
	for k, str := range parts {
		if k == 0 {
			parts[k] = fsep + str
		} else {
			parts[k] = sep + str
		}
	}

	return strings.Join(parts, "\n")
}
