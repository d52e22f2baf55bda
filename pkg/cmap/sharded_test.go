package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	m := New[int]()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if len(m.shards) != DefaultShardCount {
		t.Errorf("shard count = %d, want %d", len(m.shards), DefaultShardCount)
	}
}

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{2, 2},
		{8, 8},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestShardIndex_Stable(t *testing.T) {
	a := New[int]()
	b := New[int]()
	for _, key := range []string{"foo", "bar", "listL", ""} {
		if a.ShardIndex(key) != b.ShardIndex(key) {
			t.Errorf("ShardIndex(%q) differs between maps", key)
		}
		if idx := a.ShardIndex(key); idx < 0 || idx >= DefaultShardCount {
			t.Errorf("ShardIndex(%q) = %d, out of range", key, idx)
		}
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[int]()

	m.Set("key1", 100)
	m.Set("key2", 200)

	if val, ok := m.Get("key1"); !ok || val != 100 {
		t.Errorf("Get(key1) = (%d, %v), want (100, true)", val, ok)
	}
	if !m.Has("key2") {
		t.Error("Has(key2) should return true")
	}

	m.Delete("key1")
	if _, ok := m.Get("key1"); ok {
		t.Error("key1 should not exist after deletion")
	}
	m.Delete("nonexistent")

	if val, ok := m.Pop("key2"); !ok || val != 200 {
		t.Errorf("Pop(key2) = (%d, %v), want (200, true)", val, ok)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestDo(t *testing.T) {
	m := New[int]()

	m.Do("counter", func(items map[string]int) {
		items["counter"] = items["counter"] + 1
	})
	m.Do("counter", func(items map[string]int) {
		items["counter"] = items["counter"] + 1
	})

	if val, _ := m.Get("counter"); val != 2 {
		t.Errorf("counter = %d, want 2", val)
	}
}

func TestFreeze(t *testing.T) {
	m := NewWithShards[int](4)
	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}

	total := 0
	m.Freeze(func(shards []map[string]int) {
		if len(shards) != 4 {
			t.Fatalf("len(shards) = %d, want 4", len(shards))
		}
		for _, items := range shards {
			total += len(items)
		}
	})
	if total != 50 {
		t.Errorf("frozen total = %d, want 50", total)
	}

	// Locks are released afterwards.
	m.Set("after", 1)
	if !m.Has("after") {
		t.Error("Set after Freeze did not take effect")
	}
}

func TestClearAndKeys(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	if keys := m.Keys(); len(keys) != 2 {
		t.Errorf("Keys() = %v, want 2 keys", keys)
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear() = %d, want 0", m.Count())
	}
}

func TestRange_Stop(t *testing.T) {
	m := New[int]()
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}

	visited := 0
	m.Range(func(string, int) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Errorf("visited = %d, want 3", visited)
	}
}

func TestStats(t *testing.T) {
	m := NewWithShards[int](4)
	for i := 0; i < 100; i++ {
		m.Set(fmt.Sprintf("key-%d", i), i)
	}

	stats := m.Stats()
	if len(stats) != 4 {
		t.Fatalf("Stats() length = %d, want 4", len(stats))
	}
	total := 0
	for _, s := range stats {
		total += s.Count
	}
	if total != 100 {
		t.Errorf("Total count from stats = %d, want 100", total)
	}
}

func TestConcurrentDo(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	numGoroutines := 50
	numOps := 200

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("k%d", j%10)
				m.Do(key, func(items map[string]int) {
					items[key]++
				})
			}
		}()
	}
	wg.Wait()

	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	if sum != numGoroutines*numOps {
		t.Errorf("sum = %d, want %d", sum, numGoroutines*numOps)
	}
}
