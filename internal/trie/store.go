// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
)

// trieNodeCacheBytes bounds the in-memory hot-node cache fastcache keeps in
// front of the pebble-backed node store. Sized for a single node process,
// not tuned per deployment (no config knob exists for it yet).
const trieNodeCacheBytes = 64 * 1024 * 1024

// rootCacheSize bounds the per-height root LRU: a committed root at a given
// height never changes, so this cache never needs invalidation, only a
// capacity bound.
const rootCacheSize = 4096

// Column-family key prefixes, per the logical "persisted column families"
// named in spec.md §6. A single pebble keyspace backs all of them; the
// prefix is the only thing standing in for real column families. Only the
// r and c prefixes are written by this package: trie nodes, world-state and
// EVM-storage alike, are stored by the trie database under its own node
// keys, so t, s and e are declared but not used.
var (
	prefixTrieNode       = []byte{'t'}
	prefixRootByHeight   = []byte{'r'}
	prefixHeightCounter  = []byte{'c'}
	prefixEvmStorageNode = []byte{'s'}
	prefixEvmStorageRoot = []byte{'e'}
)

// noopCommitLatency discards commit-duration observations for Stores
// opened without metrics attached.
var noopCommitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "opmove_trie_commit_latency_noop"})

// Store is the world-state trie plus the height-indexed root list. It owns
// one trie.Database (node KV) shared by the world-state trie and every
// per-EVM-account storage trie, as required by spec.md §4.1.
type Store struct {
	mu sync.RWMutex

	kv  KV
	db  *triedb.Database
	cur *gtrie.Trie // the trie as of the last committed root, opened lazily

	curRoot common.Hash
	height  uint64

	rootCache     *lru.Cache
	commitLatency prometheus.Histogram
}

// Open creates a Store over kv. If the height counter is already present
// (a restart), it resumes from the last persisted root/height; otherwise it
// starts empty at height 0 with the canonical empty-trie root. The node KV
// is wrapped in a fastcache read-through cache (trie nodes are content-
// addressed, so a cached value is never stale).
func Open(kv KV) (*Store, error) {
	cached := newCachingKV(kv, trieNodeCacheBytes)
	ethdb := rawdb.NewDatabase(cached)
	db := triedb.NewDatabase(ethdb, triedb.HashDefaults)

	rootCache, err := lru.New(rootCacheSize)
	if err != nil {
		return nil, NewStorageFailure(err)
	}

	s := &Store{kv: kv, db: db, rootCache: rootCache, commitLatency: noopCommitLatency}

	heightBytes, err := kv.Get(prefixHeightCounter)
	if err != nil {
		return nil, NewStorageFailure(err)
	}
	if heightBytes == nil {
		s.curRoot = gtrie.EmptyRootHash
		s.height = 0
	} else {
		s.height = binary.BigEndian.Uint64(heightBytes)
		root, err := s.rootAtHeight(s.height)
		if err != nil {
			return nil, err
		}
		s.curRoot = root
	}

	t, err := gtrie.New(gtrie.StateTrieID(s.curRoot), db)
	if err != nil {
		return nil, NewStorageFailure(err)
	}
	s.cur = t
	return s, nil
}

// WithMetrics attaches a commit-latency histogram and returns s for
// chaining onto Open, mirroring actor.Actor.WithMetrics.
func (s *Store) WithMetrics(commitLatency prometheus.Histogram) *Store {
	s.commitLatency = commitLatency
	return s
}

// Get looks up the value stored at the (already tagged) key. A nil, nil
// result means the key is absent.
func (s *Store) Get(taggedKey []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.cur.Get(taggedKey)
	if err != nil {
		return nil, NewStorageFailure(err)
	}
	return v, nil
}

// Insert writes value at the (already tagged) key. Per spec.md §4.1, zero
// values on EVM storage slots must be removed rather than written; callers
// of the storage-trie variant enforce that before calling Insert.
func (s *Store) Insert(taggedKey, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cur.Update(taggedKey, value); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

// Remove deletes the (already tagged) key.
func (s *Store) Remove(taggedKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cur.Delete(taggedKey); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

// Root returns the 32-byte root after applying the batch of changes
// accumulated since the last Commit, without persisting anything.
func (s *Store) Root() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Hash()
}

// Proof returns the ordered list of RLP-encoded nodes from root to leaf for
// key. Replaying the proof against the node RLPs reproduces Root().
func (s *Store) Proof(taggedKey []byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var proofDB memProofDB
	if err := s.cur.Prove(taggedKey, &proofDB); err != nil {
		return nil, NewStorageFailure(err)
	}
	return proofDB.nodes, nil
}

// Commit persists the pending change batch. The new trie nodes are written
// to the node store through the trie database right away, before the batch
// is touched; the new root (appended to the height-indexed list) and the
// incremented height counter are then put into the write batch handed in,
// so they become visible together when the caller writes it, and never
// before their nodes are stored.
func (s *Store) Commit(batch ethdb.Batch) (common.Hash, uint64, error) {
	start := time.Now()
	defer func() { s.commitLatency.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	root, nodes := s.cur.Commit(false)
	if nodes != nil {
		if err := s.db.Update(root, s.curRoot, s.height+1, trienode.NewWithNodeSet(nodes), nil); err != nil {
			return common.Hash{}, 0, NewStorageFailure(err)
		}
	}
	if err := s.db.Commit(root, false); err != nil {
		return common.Hash{}, 0, NewStorageFailure(err)
	}

	newHeight := s.height + 1
	heightKey := rootHeightKey(newHeight)
	if err := batch.Put(heightKey, root[:]); err != nil {
		return common.Hash{}, 0, NewStorageFailure(err)
	}
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], newHeight)
	if err := batch.Put(prefixHeightCounter, heightBytes[:]); err != nil {
		return common.Hash{}, 0, NewStorageFailure(err)
	}

	s.curRoot = root
	s.height = newHeight
	s.rootCache.Add(newHeight, root)

	t, err := gtrie.New(gtrie.StateTrieID(root), s.db)
	if err != nil {
		return common.Hash{}, 0, NewStorageFailure(err)
	}
	s.cur = t
	return root, newHeight, nil
}

// Height returns the current (last-committed) block height.
func (s *Store) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// RootAt resolves the state root that was current at the end of the given
// height. Readers may address any historical height <= Height().
func (s *Store) RootAt(height uint64) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rootAtHeight(height)
}

// OpenAt opens a read-only trie view rooted at the state as of height.
func (s *Store) OpenAt(height uint64) (*ReadView, error) {
	root, err := s.RootAt(height)
	if err != nil {
		return nil, err
	}
	t, err := gtrie.New(gtrie.StateTrieID(root), s.db)
	if err != nil {
		return nil, NewStorageFailure(err)
	}
	return &ReadView{t: t}, nil
}

// rootAtHeight resolves the state root committed at height. A committed
// root never changes once written, so cached entries never need
// invalidation — only the capacity bound of s.rootCache.
func (s *Store) rootAtHeight(height uint64) (common.Hash, error) {
	if height == 0 {
		return gtrie.EmptyRootHash, nil
	}
	if cached, ok := s.rootCache.Get(height); ok {
		return cached.(common.Hash), nil
	}
	v, err := s.kv.Get(rootHeightKey(height))
	if err != nil {
		return common.Hash{}, NewStorageFailure(err)
	}
	if v == nil {
		return common.Hash{}, fmt.Errorf("no state root recorded at height %d", height)
	}
	root := common.BytesToHash(v)
	s.rootCache.Add(height, root)
	return root, nil
}

func rootHeightKey(height uint64) []byte {
	key := make([]byte, len(prefixRootByHeight)+8)
	copy(key, prefixRootByHeight)
	binary.BigEndian.PutUint64(key[len(prefixRootByHeight):], height)
	return key
}

// ReadView is a read-only handle on a historical (or current) trie root,
// used by the state-queries façade (C8) so readers never share the
// actor-owned mutable trie.
type ReadView struct {
	t *gtrie.Trie
}

func (r *ReadView) Get(taggedKey []byte) ([]byte, error) {
	v, err := r.t.Get(taggedKey)
	if err != nil {
		return nil, NewStorageFailure(err)
	}
	return v, nil
}

func (r *ReadView) Proof(taggedKey []byte) ([][]byte, error) {
	var proofDB memProofDB
	if err := r.t.Prove(taggedKey, &proofDB); err != nil {
		return nil, NewStorageFailure(err)
	}
	return proofDB.nodes, nil
}

func (r *ReadView) Root() common.Hash { return r.t.Hash() }

// memProofDB collects the RLP node values Prove writes, in insertion order
// (root to leaf), satisfying ethdb.KeyValueWriter.
type memProofDB struct {
	nodes [][]byte
}

func (m *memProofDB) Put(key []byte, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.nodes = append(m.nodes, v)
	return nil
}

func (m *memProofDB) Delete(key []byte) error { return nil }
