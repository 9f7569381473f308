// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Logln("a", 1)
	l.Logf("%s=%d\n", "b", 2)
	l.LogModwirefln("no such command %q", "x")

	want := "a 1\nb=2\nmodwire: no such command \"x\"\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestLoggerConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Logf("line %02d\n", i)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "line ") || len(line) != 7 {
			t.Errorf("mangled line %q", line)
		}
	}
}
