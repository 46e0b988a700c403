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
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestHashDjb2RoundTrip(t *testing.T) {
	if h := hashPath(""); h != 0 {
		t.Errorf("hash(\"\") = %d, want 0", h)
	}
	s := "/a/b"
	for _, c := range []byte("c/d.html") {
		want := hashPath(s)*31 + uint64(c)
		got := hashPath(s + string(c))
		if got != want {
			t.Errorf("hash(%q) = %d, want %d", s+string(c), got, want)
		}
		s += string(c)
	}
}

func TestMimeTable(t *testing.T) {
	cases := map[string]string{
		"/a.css":         "text/css",
		"/a.DOCX":        "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"/a.html":        "text/html; charset=UTF-8",
		"/a.ICO":         "image/x-icon",
		"/a.jpg":         "image/jpeg",
		"/a.jpeg":        "image/jpeg",
		"/a.JS":          "application/javascript",
		"/a.md":          "text/markdown",
		"/a.png":         "image/png",
		"/a.svg":         "image/svg+xml",
		"/a.webmanifest": "application/manifest+json",
		"/a.xml":         "text/xml",
		"/a.unknownext":  "application/octet-stream",
		"/noext":         "application/octet-stream",
	}
	for path, want := range cases {
		if got := mimeFor(path); got != want {
			t.Errorf("mimeFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSnapshotSizingAndProbing(t *testing.T) {
	var entries []*CacheEntry
	for i := 0; i < 5; i++ {
		p := "/f" + string(rune('a'+i))
		entries = append(entries, &CacheEntry{Path: p, Hash: hashPath(p), Bytes: []byte("x"), Length: 1, MIME: defaultMIME})
	}
	snap, err := newSnapshot(entries)
	if err != nil {
		t.Fatal(err)
	}
	if snap.capacity&(snap.capacity-1) != 0 {
		t.Errorf("capacity %d is not a power of two", snap.capacity)
	}
	if snap.capacity <= uint64(len(entries)) {
		t.Errorf("capacity %d must be > count %d", snap.capacity, len(entries))
	}
	for _, e := range entries {
		got, ok := snap.find(e.Path, e.Hash)
		if !ok || got.Path != e.Path {
			t.Errorf("find(%q) missed a published entry", e.Path)
		}
	}
	if _, ok := snap.find("/nope", hashPath("/nope")); ok {
		t.Errorf("find(/nope) unexpectedly hit")
	}
}

func TestSnapshotDistinctPaths(t *testing.T) {
	entries := []*CacheEntry{
		{Path: "/a", Hash: hashPath("/a")},
		{Path: "/b", Hash: hashPath("/b")},
		{Path: "/c", Hash: hashPath("/c")},
	}
	snap, err := newSnapshot(entries)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, slot := range snap.slots {
		if slot == nil {
			continue
		}
		if seen[slot.Path] {
			t.Fatalf("duplicate path %q occupies two slots", slot.Path)
		}
		seen[slot.Path] = true
	}
}

func TestWalkSkipsDotfilesAndStripsRoot(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html":      "<body>",
		".hidden":         "secret",
		"sub/style.css":   "body{}",
		"sub/.git/config": "ignored",
	})
	entries, err := walkRoot(root)
	if err != nil {
		t.Fatal(err)
	}
	byPath := map[string]*CacheEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	if _, ok := byPath["/.hidden"]; ok {
		t.Error("dotfile .hidden was not skipped")
	}
	if _, ok := byPath["/sub/.git/config"]; ok {
		t.Error("file under a dot-directory was not skipped")
	}
	if e, ok := byPath["/index.html"]; !ok || e.Length != len("<body>") {
		t.Error("expected /index.html to be present with correct length")
	}
	if _, ok := byPath["/sub/style.css"]; !ok {
		t.Error("expected /sub/style.css to be present")
	}
}

func TestCacheLoadAndFind(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html": "hello",
		"a/b.png":    "\x89PNG",
	})
	c := New(4, nil, nil)
	if err := c.Load(root); err != nil {
		t.Fatal(err)
	}
	e, ok := c.Find("/index.html")
	if !ok || string(e.Bytes) != "hello" || e.Length != 5 {
		t.Fatalf("Find(/index.html) = %+v, %v", e, ok)
	}
	if _, ok := c.Find("/missing"); ok {
		t.Error("Find(/missing) unexpectedly hit")
	}
}

func TestCacheLoadOverCapPreservesPriorSnapshot(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "v1"})
	c := New(1, nil, nil)
	if err := c.Load(root); err != nil {
		t.Fatal(err)
	}

	big := t.TempDir()
	for i := 0; i < maxEntries+1; i++ {
		p := filepath.Join(big, "f"+strconv.Itoa(i))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Load(big); err == nil {
		t.Fatal("expected Load to fail when walk exceeds the cap")
	}
	e, ok := c.Find("/index.html")
	if !ok || string(e.Bytes) != "v1" {
		t.Fatal("prior snapshot was not preserved after a failed reload")
	}
}

// TestConcurrentFindDuringLoad: under concurrent Find calls racing a Load,
// every Find must return a valid entry from either Snapshot, or a genuine
// miss, never a torn read. The race detector (run via `go test -race`) is
// the actual enforcement mechanism; this test just creates the contention.
func TestConcurrentFindDuringLoad(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "v1", "a.txt": "a"})
	c := New(4, nil, nil)
	if err := c.Load(root); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if e, ok := c.Find("/index.html"); ok && len(e.Bytes) == 0 {
					t.Error("observed a zero-length hit for a non-empty file")
				}
			}
		}()
	}

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := c.Load(root); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
}
