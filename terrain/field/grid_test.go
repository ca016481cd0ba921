package field

import "testing"

func TestFromValuesRecordsBounds(t *testing.T) {
	g := FromValues(3, 2, []float64{0.5, -1, 2, 0, 0.25, 1.5})
	lo, hi := g.Bounds()
	if lo != -1 || hi != 2 {
		t.Fatalf("expected bounds (-1, 2), got (%v, %v)", lo, hi)
	}
	if got := g.At(2, 0); got != 2 {
		t.Fatalf("expected At(2, 0) = 2, got %v", got)
	}
	if got := g.At(1, 1); got != 0.25 {
		t.Fatalf("expected At(1, 1) = 0.25, got %v", got)
	}
}

func TestEmptyGridBounds(t *testing.T) {
	g := FromValues(0, 0, nil)
	if lo, hi := g.Bounds(); lo != 0 || hi != 0 {
		t.Fatalf("expected empty bounds (0, 0), got (%v, %v)", lo, hi)
	}
}

func TestValuesReturnsCopy(t *testing.T) {
	g := FromValues(2, 1, []float64{1, 2})
	v := g.Values()
	v[0] = 100
	if g.At(0, 0) != 1 {
		t.Fatalf("modifying Values() result changed the grid")
	}
}

func TestDigest(t *testing.T) {
	a := FromValues(2, 2, []float64{0, 0.1, 0.2, 0.3})
	b := FromValues(2, 2, []float64{0, 0.1, 0.2, 0.3})
	if a.Digest() != b.Digest() {
		t.Fatalf("expected equal grids to have equal digests")
	}
	c := FromValues(4, 1, []float64{0, 0.1, 0.2, 0.3})
	if a.Digest() == c.Digest() {
		t.Fatalf("expected digest to depend on dimensions")
	}
	d := FromValues(2, 2, []float64{0, 0.1, 0.2, 0.30000000000000004})
	if a.Digest() == d.Digest() {
		t.Fatalf("expected digest to depend on exact sample bits")
	}
}

func TestFromValuesPanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for mismatched value count")
		}
	}()
	FromValues(2, 2, []float64{1})
}
