// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package modwire

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteLock saves l to path.
//
// The new lock is written next to the destination first and only moved in
// place once it is complete; an existing lock is moved aside until then and
// put back if anything fails. This mostly guarantees that modwire cannot
// exit with a partial lock on disk.
func WriteLock(path string, l *Lock) error {
	if l == nil {
		return errors.New("cannot write a nil lock")
	}

	s, err := l.MarshalTOML()
	if err != nil {
		return err
	}

	// Same directory as the destination, so renames never cross devices.
	td, err := ioutil.TempDir(filepath.Dir(path), ".modwire")
	if err != nil {
		return errors.Wrap(err, "error while creating temp dir for writing lock")
	}
	defer os.RemoveAll(td)

	tmp := filepath.Join(td, LockName)
	if err := ioutil.WriteFile(tmp, s, 0644); err != nil {
		return errors.Wrap(err, "failed to write lock file to temp dir")
	}

	var restore string
	if _, err := os.Stat(path); err == nil {
		// Move out the old one.
		restore = filepath.Join(td, LockName+".orig")
		if err := os.Rename(path, restore); err != nil {
			return errors.Wrapf(err, "unable to move aside %s", path)
		}
	}

	// Move in the new one.
	if err := os.Rename(tmp, path); err != nil {
		if restore != "" {
			// Nothing we can do on err here, as we're already in recovery mode.
			os.Rename(restore, path)
		}
		return errors.Wrapf(err, "unable to write %s", path)
	}
	return nil
}

// LoadLock reads the lock at path. It returns nil and no error if there is
// no lock yet.
func LoadLock(path string) (*Lock, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	l, err := ReadLock(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error while parsing %s", path)
	}
	return l, nil
}
