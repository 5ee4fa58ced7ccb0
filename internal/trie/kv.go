// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package trie implements the keyed Merkle-Patricia trie store of spec.md
// §4.1: one node KV shared by the world-state trie and every per-EVM-account
// storage trie, with versioned roots so historical heights stay queryable.
package trie

import (
	"github.com/VictoriaMetrics/fastcache"
	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/ethdb"
)

// cachingKV wraps a KV with a fastcache read-through cache for trie node
// lookups: go-ethereum's rawdb/triedb layer reads the same handful of
// hot upper-trie nodes on almost every Get, so a small in-memory cache in
// front of pebble's own block cache avoids a disk round-trip for them
// (spec.md §2.6 "Hot trie-node cache", grounded on luxfi-evm's own
// fastcache-backed trie node cache in its triedb wiring).
type cachingKV struct {
	KV
	cache *fastcache.Cache
}

// newCachingKV wraps kv with an n-byte fastcache.
func newCachingKV(kv KV, n int) *cachingKV {
	return &cachingKV{KV: kv, cache: fastcache.New(n)}
}

func (c *cachingKV) Get(key []byte) ([]byte, error) {
	if v, ok := c.cache.HasGet(nil, key); ok {
		return v, nil
	}
	v, err := c.KV.Get(key)
	if err != nil || v == nil {
		return v, err
	}
	c.cache.Set(key, v)
	return v, nil
}

func (c *cachingKV) Put(key, value []byte) error {
	c.cache.Set(key, value)
	return c.KV.Put(key, value)
}

func (c *cachingKV) Delete(key []byte) error {
	c.cache.Del(key)
	return c.KV.Delete(key)
}

// KV is the narrow ordered key-value contract the trie store needs from its
// backing engine: atomic multi-key writes via Batch, point reads, and range
// iteration for proof replay and pebble-backed Stat/Compact maintenance.
// Any backend satisfying this (and the three properties in spec.md §9 —
// atomic batch commit, append-only node keys, concurrent readability) is an
// acceptable substitute for the pebble-backed default.
type KV = ethdb.KeyValueStore

// PebbleKV adapts a *pebble.DB to ethdb.KeyValueStore, so it can back a
// go-ethereum trie.Database the way luxfi-evm's rawdb layer backs geth's.
type PebbleKV struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a pebble store at dir.
func OpenPebble(dir string) (*PebbleKV, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleKV{db: db}, nil
}

func (p *PebbleKV) Has(key []byte) (bool, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = v
	return true, closer.Close()
}

func (p *PebbleKV) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, closer.Close()
}

func (p *PebbleKV) Put(key []byte, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleKV) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleKV) Stat(property string) (string, error) {
	return p.db.Metrics().String(), nil
}

func (p *PebbleKV) Compact(start, limit []byte) error {
	return p.db.Compact(start, limit, true)
}

func (p *PebbleKV) NewBatch() ethdb.Batch {
	return &pebbleBatch{db: p.db, b: p.db.NewBatch()}
}

func (p *PebbleKV) NewBatchWithSize(size int) ethdb.Batch {
	return &pebbleBatch{db: p.db, b: p.db.NewBatchWithSize(size)}
}

func (p *PebbleKV) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	lower := append(append([]byte{}, prefix...), start...)
	upper := upperBound(prefix)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return &errIterator{err: err}
	}
	iter.First()
	return &pebbleIterator{iter: iter, started: false}
}

func (p *PebbleKV) Close() error { return p.db.Close() }

// upperBound returns the smallest byte string greater than every string
// with the given prefix, or nil (unbounded) if prefix is empty or all 0xff.
func upperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := append([]byte{}, prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

type pebbleBatch struct {
	db   *pebble.DB
	b    *pebble.Batch
	size int
}

func (b *pebbleBatch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.b.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	b.size += len(key)
	return b.b.Delete(key, nil)
}

func (b *pebbleBatch) ValueSize() int { return b.size }

func (b *pebbleBatch) Write() error {
	return b.db.Apply(b.b, pebble.Sync)
}

func (b *pebbleBatch) Reset() {
	b.b.Reset()
	b.size = 0
}

func (b *pebbleBatch) Replay(w ethdb.KeyValueWriter) error {
	reader := b.b.Reader()
	for {
		kind, key, value, ok, err := reader.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch kind {
		case pebble.InternalKeyKindSet:
			if err := w.Put(key, value); err != nil {
				return err
			}
		case pebble.InternalKeyKindDelete:
			if err := w.Delete(key); err != nil {
				return err
			}
		}
	}
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
	err     error
}

func (it *pebbleIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		return it.iter.Valid()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.iter.Error()
}

func (it *pebbleIterator) Key() []byte   { return it.iter.Key() }
func (it *pebbleIterator) Value() []byte { return it.iter.Value() }
func (it *pebbleIterator) Release()      { _ = it.iter.Close() }

type errIterator struct{ err error }

func (it *errIterator) Next() bool     { return false }
func (it *errIterator) Error() error   { return it.err }
func (it *errIterator) Key() []byte    { return nil }
func (it *errIterator) Value() []byte  { return nil }
func (it *errIterator) Release()       {}
