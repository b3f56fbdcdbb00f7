// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCache_GetAdd(t *testing.T) {
	c := NewLRUCache(4, time.Minute)

	if _, ok := c.Get("uri-a"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Add("uri-a", "doc-1")
	got, ok := c.Get("uri-a")
	if !ok || got != "doc-1" {
		t.Errorf("Get(uri-a) = %q, %v; want doc-1, true", got, ok)
	}

	c.Add("uri-a", "doc-2")
	if got, _ := c.Get("uri-a"); got != "doc-2" {
		t.Errorf("Get after update = %q; want doc-2", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d; want 1", c.Len())
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Add(fmt.Sprintf("uri-%d", i), fmt.Sprintf("doc-%d", i))
	}

	// Touch uri-0 so uri-1 becomes the eviction candidate.
	if _, ok := c.Get("uri-0"); !ok {
		t.Fatal("uri-0 should be cached")
	}

	c.Add("uri-3", "doc-3")

	if c.Contains("uri-1") {
		t.Error("uri-1 should have been evicted")
	}
	for _, key := range []string{"uri-0", "uri-2", "uri-3"} {
		if !c.Contains(key) {
			t.Errorf("%s should still be cached", key)
		}
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	c := NewLRUCache(10, 10*time.Millisecond)
	c.Add("uri-a", "doc-1")

	time.Sleep(25 * time.Millisecond)

	if c.Contains("uri-a") {
		t.Error("entry should be expired")
	}
	if _, ok := c.Get("uri-a"); ok {
		t.Error("Get should miss on expired entry")
	}
}

func TestLRUCache_RemoveClear(t *testing.T) {
	c := NewLRUCache(10, time.Minute)
	c.Add("uri-a", "doc-1")
	c.Add("uri-b", "doc-2")

	if !c.Remove("uri-a") {
		t.Error("Remove(uri-a) = false; want true")
	}
	if c.Remove("uri-a") {
		t.Error("second Remove(uri-a) = true; want false")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d; want 0", c.Len())
	}
}
