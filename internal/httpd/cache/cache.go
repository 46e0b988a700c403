// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/dgryski/go-rendezvous"
)

// Logger is the minimal logging surface the cache needs. *logging.Logger
// satisfies it; tests pass a stub.
type Logger interface {
	Errorf(format string, args ...any)
	Infof(format string, args ...any)
}

// ReloadObserver receives the outcome of a Load call, for metrics. It is
// optional; a nil ReloadObserver is simply not called.
type ReloadObserver interface {
	ObserveReload(ok bool, took time.Duration, entryCount int)
}

// shard owns one independent Snapshot behind its own readers/writer lock.
// Splitting the published table across shards means Find only ever
// contends with Load (and other Finds) for the one shard a path's
// rendezvous-selected owner falls in, not the whole content tree.
type shard struct {
	mu   sync.RWMutex
	snap *snapshot
}

func (s *shard) find(path string, hash uint64) (CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return CacheEntry{}, false
	}
	e, ok := s.snap.find(path, hash)
	if !ok {
		return CacheEntry{}, false
	}
	return e.clone(), true
}

// swap publishes next in place of the previously published Snapshot; in Go
// the old Snapshot is simply left for the garbage collector once the last reader holding it returns, which
// is the language's equivalent of "freed only after the writer lock
// guarantees no reader holds a reference" — RUnlock for every in-flight
// Find already happened-before this Lock is granted.
func (s *shard) swap(next *snapshot) {
	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
}

// Cache is the published content cache. New has no Snapshot yet; Load
// builds one from disk and atomically publishes it; Find resolves a request
// path against whatever was most recently published.
type Cache struct {
	shards  []*shard
	rv      *rendezvous.Rendezvous
	nodeIdx map[string]int

	logger   Logger
	observer ReloadObserver
}

// New constructs an unpopulated Cache sharded across shardCount independent
// tables. shardCount <= 0 defaults to GOMAXPROCS, since that is the
// dimension along which concurrent Find calls actually contend.
func New(shardCount int, logger Logger, observer ReloadObserver) *Cache {
	if shardCount <= 0 {
		shardCount = runtime.GOMAXPROCS(0)
	}
	nodes := make([]string, shardCount)
	nodeIdx := make(map[string]int, shardCount)
	for i := range nodes {
		name := "shard-" + strconv.Itoa(i)
		nodes[i] = name
		nodeIdx[name] = i
	}
	c := &Cache{
		shards:   make([]*shard, shardCount),
		rv:       rendezvous.New(nodes, rendezvousHash),
		nodeIdx:  nodeIdx,
		logger:   logger,
		observer: observer,
	}
	for i := range c.shards {
		c.shards[i] = &shard{}
	}
	return c
}

// rendezvousHash adapts the package's djb2 hash to the Hasher signature
// go-rendezvous expects, so shard ownership and entry lookup both derive
// from the same hash family.
func rendezvousHash(s string) uint64 { return hashPath(s) }

func (c *Cache) shardFor(path string) *shard {
	node := c.rv.Lookup(path)
	return c.shards[c.nodeIdx[node]]
}

// Load walks root, builds a fresh Snapshot (partitioned across shards by
// rendezvous hashing), and atomically swaps it in. On any error — I/O
// failure during the walk, or the walk exceeding the file-count cap — the
// previously published Snapshot in every shard is left untouched.
func (c *Cache) Load(root string) error {
	start := time.Now()
	entries, err := walkRoot(root)
	if err != nil {
		c.observeReload(false, time.Since(start), 0)
		if c.logger != nil {
			c.logger.Errorf("cache: walk of %s failed: %v", root, err)
		}
		return err
	}
	if len(entries) > maxEntries {
		err := fmt.Errorf("cache: walk of %s produced %d files, exceeding the %d-file cap", root, len(entries), maxEntries)
		c.observeReload(false, time.Since(start), 0)
		if c.logger != nil {
			c.logger.Errorf("%v", err)
		}
		return err
	}

	perShard := make([][]*CacheEntry, len(c.shards))
	for _, e := range entries {
		node := c.rv.Lookup(e.Path)
		idx := c.nodeIdx[node]
		perShard[idx] = append(perShard[idx], e)
	}

	built := make([]*snapshot, len(c.shards))
	for i, es := range perShard {
		snap, err := newSnapshot(es)
		if err != nil {
			c.observeReload(false, time.Since(start), 0)
			if c.logger != nil {
				c.logger.Errorf("cache: %v", err)
			}
			return err
		}
		built[i] = snap
	}

	for i, snap := range built {
		c.shards[i].swap(snap)
	}

	took := time.Since(start)
	c.observeReload(true, took, len(entries))
	if c.logger != nil {
		c.logger.Infof("cache: loaded %d files from %s in %s", len(entries), root, took)
	}
	return nil
}

func (c *Cache) observeReload(ok bool, took time.Duration, count int) {
	if c.observer != nil {
		c.observer.ObserveReload(ok, took, count)
	}
}

// Find returns a caller-owned copy of the entry published under path, or
// (CacheEntry{}, false) if the currently published Snapshot does not
// contain it.
func (c *Cache) Find(path string) (CacheEntry, bool) {
	hash := hashPath(path)
	return c.shardFor(path).find(path, hash)
}
