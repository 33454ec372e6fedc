package huffman

import (
	"bytes"
	"sync"
	"testing"
)

func TestCacheReturnsCompressedPayload(t *testing.T) {
	c := NewCache(8)
	payload := []byte{0xB9, 0x00, 0x00}

	first, hit := c.Compress(payload)
	if hit {
		t.Fatal("first lookup reported a hit")
	}
	if !bytes.Equal(first, Compress(payload)) {
		t.Fatalf("cached output %x differs from Compress", first)
	}

	second, hit := c.Compress(payload)
	if !hit {
		t.Fatal("second lookup missed")
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("hit returned %x, want %x", second, first)
	}

	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("stats = %+v, want 1 hit 1 miss", s)
	}
}

func TestNilCacheCompresses(t *testing.T) {
	var c *Cache
	out, hit := c.Compress([]byte{0x00})
	if hit || !bytes.Equal(out, []byte{0x34}) {
		t.Fatalf("nil cache: %x hit=%v", out, hit)
	}
	if s := c.Stats(); s != (CacheStats{}) {
		t.Fatalf("nil cache stats = %+v", s)
	}
}

func TestCacheConcurrentUse(t *testing.T) {
	c := NewCache(0)
	payloads := [][]byte{
		{0xB9, 0x00, 0x00},
		{0xA9, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		[]byte("My Shard"),
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				p := payloads[i%len(payloads)]
				out, _ := c.Compress(p)
				if !bytes.Equal(out, Compress(p)) {
					t.Errorf("wrong output for %x", p)
					return
				}
			}
		}()
	}
	wg.Wait()

	s := c.Stats()
	if s.Hits+s.Misses != 800 {
		t.Fatalf("lookups = %d, want 800", s.Hits+s.Misses)
	}
}
