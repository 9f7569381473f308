// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wirecache remembers the wires of earlier resolves, keyed by a
// digest of their inputs.
package wirecache

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/modwire/modwire"
	"github.com/pkg/errors"
)

var wiringsBucket = []byte("wirings")

// Cache is backed by a persistent BoltDB file. Stored values are
// timestamped, and the epoch limits the age of returned values.
// Methods are safe for concurrent use with each other (excluding Close).
//
// Layout:
//
//	Bucket: "wirings"
//	Keys: "<input digest>"
//	Values: "<8 byte unix timestamp><JSON list of locked wires>"
type Cache struct {
	db    *bolt.DB
	epoch int64 // Get will not return values older than this unix timestamp
}

// Open opens or creates the cache file at path, creating its directory if
// necessary. It gives up after a second if another process holds the file.
func Open(path string, epoch int64) (*Cache, error) {
	dir := filepath.Dir(path)
	if fi, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, os.ModeDir|os.ModePerm); err != nil {
			return nil, errors.Wrapf(err, "failed to create wiring cache directory: %s", dir)
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to check wiring cache directory: %s", dir)
	} else if !fi.IsDir() {
		return nil, errors.Errorf("wiring cache path is not directory: %s", dir)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open wiring cache %s", path)
	}
	return &Cache{db: db, epoch: epoch}, nil
}

// Close releases all database resources.
// Must not be called concurrently with any other methods.
func (c *Cache) Close() error {
	return errors.Wrapf(c.db.Close(), "error closing Bolt database %q", c.db.String())
}

// Put stores wires under key, replacing anything stored there before.
func (c *Cache) Put(key []byte, wires []modwire.LockedWire) error {
	return c.Store(key, wires, time.Now())
}

// Store is Put with an explicit timestamp.
func (c *Cache) Store(key []byte, wires []modwire.LockedWire, at time.Time) error {
	if len(key) == 0 {
		return errors.New("empty cache key")
	}
	v, err := encode(wires, at)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(wiringsBucket)
		if err != nil {
			return errors.Wrapf(err, "failed to create bucket: %s", wiringsBucket)
		}
		return b.Put(key, v)
	})
}

// Get returns the wires stored under key, if there are any newer than the
// epoch.
func (c *Cache) Get(key []byte) (wires []modwire.LockedWire, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(wiringsBucket)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		at, ws, err := decode(v)
		if err != nil {
			return errors.Wrapf(err, "corrupt entry %x", key)
		}
		if at < c.epoch {
			return nil
		}
		wires, ok = ws, true
		return nil
	})
	return wires, ok, err
}

// Prune deletes every entry older than the epoch and reports how many went.
func (c *Cache) Prune() (int, error) {
	var n int
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(wiringsBucket)
		if b == nil {
			return nil
		}
		var stale [][]byte
		cur := b.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			if len(v) < 8 || int64(binary.BigEndian.Uint64(v[:8])) < c.epoch {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return errors.Wrapf(err, "failed to delete %x", k)
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

func encode(wires []modwire.LockedWire, at time.Time) ([]byte, error) {
	js, err := json.Marshal(wires)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode wires")
	}
	v := make([]byte, 8+len(js))
	binary.BigEndian.PutUint64(v, uint64(at.Unix()))
	copy(v[8:], js)
	return v, nil
}

func decode(v []byte) (int64, []modwire.LockedWire, error) {
	if len(v) < 8 {
		return 0, nil, errors.New("value too short")
	}
	var wires []modwire.LockedWire
	if err := json.Unmarshal(v[8:], &wires); err != nil {
		return 0, nil, err
	}
	return int64(binary.BigEndian.Uint64(v[:8])), wires, nil
}
