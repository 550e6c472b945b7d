// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package addrcache remembers derived addresses per device and derivation
// path, so known accounts can be listed without a device round trip.
//
// Entries are kept in a LevelDB database with an LRU in front of it.
package addrcache // import "github.com/zeriontech/hardware-wallet-connection/addrcache"

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/zeriontech/hardware-wallet-connection/derivation"
	"github.com/zeriontech/hardware-wallet-connection/log"
)

// DefaultSize is the number of entries held in memory by default.
const DefaultSize = 1024

const keyPrefix = "addr:"

// Cache maps device ID and derivation path to an address.
type Cache struct {
	db     *leveldb.DB
	recent *lru.Cache
	log    log.Logger
}

// Open opens or creates the cache database in dir. If the database is
// corrupted, recovery is attempted.
func Open(dir string, size int) (*Cache, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{OpenFilesCacheCapacity: 5})
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening address cache %s", dir)
	}
	return newCache(db, size)
}

// NewMemory returns a cache that is not persisted.
func NewMemory(size int) (*Cache, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening memory address cache")
	}
	return newCache(db, size)
}

func newCache(db *leveldb.DB, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	recent, err := lru.New(size)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating lru")
	}
	return &Cache{db: db, recent: recent, log: log.WithField("component", "addrcache")}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	c.recent.Purge()
	return errors.WithStack(c.db.Close())
}

func devicePrefix(deviceID string) string {
	return keyPrefix + deviceID + "/"
}

func key(deviceID, path string) (string, error) {
	if deviceID == "" || strings.Contains(deviceID, "/") {
		return "", errors.Errorf("invalid device id %q", deviceID)
	}
	canonical, err := derivation.Canonical(path)
	if err != nil {
		return "", err
	}
	return devicePrefix(deviceID) + canonical, nil
}

// Get returns the address of path on device deviceID. ok is false if it is
// not cached.
func (c *Cache) Get(deviceID, path string) (addr string, ok bool, err error) {
	k, err := key(deviceID, path)
	if err != nil {
		return "", false, err
	}
	if v, ok := c.recent.Get(k); ok {
		return v.(string), true, nil
	}
	v, err := c.db.Get([]byte(k), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.Wrap(err, "reading address cache")
	}
	c.recent.Add(k, string(v))
	return string(v), true, nil
}

// Put stores the address of path on device deviceID.
func (c *Cache) Put(deviceID, path, addr string) error {
	if addr == "" {
		return errors.New("value must not be empty")
	}
	k, err := key(deviceID, path)
	if err != nil {
		return err
	}
	if err := c.db.Put([]byte(k), []byte(addr), nil); err != nil {
		return errors.Wrap(err, "writing address cache")
	}
	c.recent.Add(k, addr)
	return nil
}

// List returns all cached addresses of device deviceID by canonical path.
func (c *Cache) List(deviceID string) (map[string]string, error) {
	prefix := devicePrefix(deviceID)
	it := c.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	entries := make(map[string]string)
	for it.Next() {
		entries[strings.TrimPrefix(string(it.Key()), prefix)] = string(it.Value())
	}
	return entries, errors.WithStack(it.Error())
}

// Forget removes all entries of device deviceID.
func (c *Cache) Forget(deviceID string) error {
	it := c.db.NewIterator(util.BytesPrefix([]byte(devicePrefix(deviceID))), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		k := append([]byte(nil), it.Key()...)
		batch.Delete(k)
		c.recent.Remove(string(k))
	}
	if err := it.Error(); err != nil {
		return errors.WithStack(err)
	}
	c.log.WithField("device", deviceID).Debugf("forgetting %d addresses", batch.Len())
	return errors.WithStack(c.db.Write(batch, nil))
}

// Resolve returns the cached address of path or derives and caches it.
func (c *Cache) Resolve(ctx context.Context, deviceID, path string, derive func(context.Context, string) (string, error)) (string, error) {
	addr, ok, err := c.Get(deviceID, path)
	if err != nil || ok {
		return addr, err
	}
	if addr, err = derive(ctx, path); err != nil {
		return "", err
	}
	if err := c.Put(deviceID, path, addr); err != nil {
		c.log.WithError(err).Warn("caching address")
	}
	return addr, nil
}
