// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package modwire

import (
	"crypto/sha256"
)

// HashInputs computes a digest of everything a resolve depends on: the
// universe descriptor as read, plus the arguments that select what to
// resolve.
//
// If the digest matches the memo of an existing lock, the lock is still
// current and there is no need to resolve again.
func HashInputs(universe []byte, args ...string) []byte {
	h := sha256.New()
	h.Write(universe)
	for _, a := range args {
		// Separate arguments so ("ab", "c") and ("a", "bc") differ.
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	return h.Sum(nil)
}

// Memo combines the universe digest with selection arguments.
func (u *Universe) Memo(args ...string) []byte {
	return HashInputs(u.Digest, args...)
}
