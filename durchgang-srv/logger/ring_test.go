package logger

import (
	"fmt"
	"sync"
	"testing"
)

func TestRingPartialFill(t *testing.T) {
	r := NewRing(4)
	r.Append("a")
	r.Append("b")

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	lines := r.Lines()
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("Lines() = %v, want [a b]", lines)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		r.Append(s)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	lines := r.Lines()
	want := []string{"c", "d", "e"}
	for i, s := range want {
		if lines[i] != s {
			t.Errorf("Lines()[%d] = %q, want %q", i, lines[i], s)
		}
	}
}

func TestRingZeroSizeClamped(t *testing.T) {
	r := NewRing(0)
	r.Append("only")
	lines := r.Lines()
	if len(lines) != 1 || lines[0] != "only" {
		t.Errorf("Lines() = %v, want [only]", lines)
	}
}

func TestRingConcurrentAppend(t *testing.T) {
	r := NewRing(64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Append(fmt.Sprintf("writer-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 64 {
		t.Errorf("Len() = %d, want 64 after overflow", r.Len())
	}
}
