// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log writes user facing command output.
package log

import (
	"fmt"
	"io"
	"sync"
)

// Logger is a minimal wrapper around an io.Writer. Concurrent calls do not
// interleave within a line.
type Logger struct {
	mu sync.Mutex
	io.Writer
}

// New returns a new logger which writes to w.
func New(w io.Writer) *Logger {
	return &Logger{Writer: w}
}

// Logln logs a line.
func (l *Logger) Logln(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.Writer, args...)
}

// Logf logs a formatted string.
func (l *Logger) Logf(f string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.Writer, f, args...)
}

// LogModwirefln logs a formatted line, prefixed with `modwire: `.
func (l *Logger) LogModwirefln(format string, args ...interface{}) {
	l.Logf("modwire: "+format+"\n", args...)
}
