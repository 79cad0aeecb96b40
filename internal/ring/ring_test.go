package ring

import (
	"sync"
	"testing"
)

func TestRingCapacityRounding(t *testing.T) {
	r := New[int](3)
	if r.Capacity() != 3 {
		t.Fatalf("want usable capacity 3, got %d", r.Capacity())
	}
}

func TestRingFullReservesOneSlot(t *testing.T) {
	r := New[int](2) // backing array of 4 slots, 3 usable
	if !r.TryPush(1) || !r.TryPush(2) || !r.TryPush(3) {
		t.Fatal("expected first three pushes to succeed")
	}
	if !r.Full() {
		t.Fatal("expected ring to report full with N-1 items queued")
	}
	if r.TryPush(4) {
		t.Fatal("expected push onto a full ring to fail")
	}
}

func TestRingAlternatingPushPopCapacityTwo(t *testing.T) {
	r := New[int](2)
	for i := 0; i < 1000; i++ {
		if !r.TryPush(i) {
			t.Fatalf("push %d failed on alternating workload", i)
		}
		v, ok := r.TryPop()
		if !ok || v != i {
			t.Fatalf("pop %d: got (%d, %v)", i, v, ok)
		}
	}
}

func TestRingEmptyPopReturnsFalse(t *testing.T) {
	r := New[int](4)
	if _, ok := r.TryPop(); ok {
		t.Fatal("expected pop on empty ring to fail")
	}
	if !r.Empty() {
		t.Fatal("expected Empty() true on fresh ring")
	}
}

func TestRingSPSCConservesCount(t *testing.T) {
	r := New[int](64)
	const n = 100000

	var wg sync.WaitGroup
	wg.Add(2)

	pushed := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.TryPush(i) {
			}
			pushed++
		}
	}()

	seen := make([]bool, n)
	popped := 0
	go func() {
		defer wg.Done()
		for popped < n {
			v, ok := r.TryPop()
			if !ok {
				continue
			}
			if seen[v] {
				t.Errorf("item %d observed twice", v)
			}
			seen[v] = true
			popped++
		}
	}()

	wg.Wait()
	if pushed != n || popped != n {
		t.Fatalf("pushed=%d popped=%d want=%d", pushed, popped, n)
	}
}

func TestRingClearEmptiesRing(t *testing.T) {
	r := New[int](8)
	r.TryPush(1)
	r.TryPush(2)
	r.Clear()
	if !r.Empty() {
		t.Fatal("expected ring to be empty after Clear")
	}
}

func TestSlotRingBasic(t *testing.T) {
	r := NewSlotRing[[]byte](4)
	for i := 0; i < 3; i++ {
		slot := r.BeginWrite()
		if slot == nil {
			t.Fatalf("iteration %d: expected free slot", i)
		}
		*slot = []byte{byte(i)}
		r.CommitWrite()
	}

	for i := 0; i < 3; i++ {
		got := r.TryPop()
		if got == nil {
			t.Fatalf("iteration %d: expected ready slot", i)
		}
		if (*got)[0] != byte(i) {
			t.Fatalf("iteration %d: got %v", i, *got)
		}
	}
	if r.TryPop() != nil {
		t.Fatal("expected no more ready slots")
	}
}

func TestSlotRingFullReturnsNil(t *testing.T) {
	r := NewSlotRing[int](2)
	s1 := r.BeginWrite()
	if s1 == nil {
		t.Fatal("expected first BeginWrite to succeed")
	}
	*s1 = 1
	r.CommitWrite()

	// NewSlotRing(2) has 4 slots, 3 usable.
	for i := 2; i <= 3; i++ {
		s := r.BeginWrite()
		if s == nil {
			t.Fatalf("write %d should still be accepted", i)
		}
		*s = i
		r.CommitWrite()
	}

	if r.BeginWrite() != nil {
		t.Fatal("expected BeginWrite on a full ring to return nil")
	}
}
