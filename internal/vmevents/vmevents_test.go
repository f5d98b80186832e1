package vmevents

import "testing"

func TestRingOverwritesOldestOnceFull(t *testing.T) {
	r := New(2)
	r.Record(Fault, 1)
	r.Record(Eviction, 2)
	r.Record(SwapIn, 3)

	recent := r.Recent()
	if len(recent) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(recent))
	}
	if recent[0].Kind != Eviction || recent[0].VA != 2 {
		t.Fatalf("oldest surviving event = %+v, want Eviction@2", recent[0])
	}
	if recent[1].Kind != SwapIn || recent[1].VA != 3 {
		t.Fatalf("newest event = %+v, want SwapIn@3", recent[1])
	}
}

func TestRingBelowCapacity(t *testing.T) {
	r := New(4)
	r.Record(Fault, 0x10)
	recent := r.Recent()
	if len(recent) != 1 || recent[0].VA != 0x10 {
		t.Fatalf("Recent() = %+v, want one event at 0x10", recent)
	}
}
