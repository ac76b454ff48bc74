package memory

import (
	"testing"

	"github.com/ph4ge/greed-go/smt"
)

func TestLambdaDefaultRead(t *testing.T) {
	m := NewLambda("MEMORY_1", smt.Width8, smt.BVV(0, smt.Width8))
	got := m.Read(smt.BVV(42, smt.Width256))
	if v, ok := got.AsConcrete(); !ok || v.Uint64() != 0 {
		t.Fatalf("unwritten index should read default 0, got %v", got)
	}
}

func TestLambdaWriteRead(t *testing.T) {
	m := NewLambda("MEMORY_1", smt.Width8, smt.BVV(0, smt.Width8))
	m.Write(smt.BVV(5, smt.Width256), smt.BVV(0xAB, smt.Width8))
	got := m.Read(smt.BVV(5, smt.Width256))
	v, ok := got.AsConcrete()
	if !ok || v.Uint64() != 0xAB {
		t.Fatalf("read after write = %v, want 0xAB", got)
	}
}

func TestLambdaCopyIndependence(t *testing.T) {
	parent := NewLambda("MEMORY_1", smt.Width8, smt.BVV(0, smt.Width8))
	parent.Write(smt.BVV(1, smt.Width256), smt.BVV(10, smt.Width8))

	child := parent.Copy()

	// Child sees the parent's pre-copy state.
	if v, _ := child.Read(smt.BVV(1, smt.Width256)).AsConcrete(); v.Uint64() != 10 {
		t.Fatalf("child should inherit parent's writes at copy time")
	}

	// Diverging writes on either side are invisible to the other.
	child.Write(smt.BVV(2, smt.Width256), smt.BVV(20, smt.Width8))
	parent.Write(smt.BVV(3, smt.Width256), smt.BVV(30, smt.Width8))

	if v, ok := parent.Read(smt.BVV(2, smt.Width256)).AsConcrete(); !ok || v.Uint64() != 0 {
		t.Fatalf("parent should not observe child's write, got %v", v)
	}
	if v, ok := child.Read(smt.BVV(3, smt.Width256)).AsConcrete(); !ok || v.Uint64() != 0 {
		t.Fatalf("child should not observe parent's post-copy write, got %v", v)
	}

	// Both still see the pre-copy write.
	if v, _ := parent.Read(smt.BVV(1, smt.Width256)).AsConcrete(); v.Uint64() != 10 {
		t.Fatalf("parent lost pre-copy write")
	}
	if v, _ := child.Read(smt.BVV(1, smt.Width256)).AsConcrete(); v.Uint64() != 10 {
		t.Fatalf("child lost pre-copy write")
	}
}

func TestPartialConcreteStorageFallback(t *testing.T) {
	snap := map[string]*smt.BV{
		"c:0x2a": smt.BVV(99, smt.Width256),
	}
	s := NewPartialConcreteStorage("STORAGE_1", snap)

	got := s.Read(smt.BVV(0x2a, smt.Width256))
	if v, ok := got.AsConcrete(); !ok || v.Uint64() != 99 {
		t.Fatalf("unwritten slot should fall back to concrete snapshot, got %v", got)
	}

	s.Write(smt.BVV(0x2a, smt.Width256), smt.BVV(7, smt.Width256))
	got = s.Read(smt.BVV(0x2a, smt.Width256))
	if v, ok := got.AsConcrete(); !ok || v.Uint64() != 7 {
		t.Fatalf("write should shadow the concrete snapshot, got %v", got)
	}

	clone := s.Copy()
	clone.Write(smt.BVV(0x2a, smt.Width256), smt.BVV(123, smt.Width256))
	if v, _ := s.Read(smt.BVV(0x2a, smt.Width256)).AsConcrete(); v.Uint64() != 7 {
		t.Fatalf("clone's write leaked into parent")
	}
}

func TestPartialConcreteStorageWriteZeroOverNonzeroSnapshot(t *testing.T) {
	snap := map[string]*smt.BV{
		"c:0x2a": smt.BVV(99, smt.Width256),
	}
	s := NewPartialConcreteStorage("STORAGE_1", snap)

	s.Write(smt.BVV(0x2a, smt.Width256), smt.BVV(0, smt.Width256))
	got := s.Read(smt.BVV(0x2a, smt.Width256))
	if v, ok := got.AsConcrete(); !ok || v.Uint64() != 0 {
		t.Fatalf("write of concrete 0 should shadow a nonzero snapshot, got %v", got)
	}
}
