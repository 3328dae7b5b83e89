package series

import (
	"errors"
	"math"
	"testing"
)

func TestIsMissing(t *testing.T) {
	if !IsMissing(Missing) {
		t.Error("Missing should be missing")
	}
	if !IsMissing(math.Inf(1)) || !IsMissing(math.Inf(-1)) {
		t.Error("infinities should be missing")
	}
	if IsMissing(0) || IsMissing(-3.5) {
		t.Error("finite values should not be missing")
	}
}

func TestSeriesAtOutOfRange(t *testing.T) {
	s := Series{1, 2, 3}
	if got := s.At(1); got != 2 {
		t.Errorf("At(1) = %v, want 2", got)
	}
	if !IsMissing(s.At(-1)) || !IsMissing(s.At(3)) {
		t.Error("out of range At should return Missing")
	}
}

func TestOperandScalarBroadcast(t *testing.T) {
	op := Scalar(7)
	if !op.IsScalar() {
		t.Fatal("Scalar operand should report IsScalar")
	}
	if op.Len() != -1 {
		t.Errorf("scalar Len = %d, want -1", op.Len())
	}
	for _, i := range []int{0, 5, 1000} {
		if got := op.At(i); got != 7 {
			t.Errorf("At(%d) = %v, want 7", i, got)
		}
	}
}

func TestAlign(t *testing.T) {
	n, err := Align(Of(Series{1, 2, 3}), Scalar(2), Of(Series{4, 5, 6}))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if n != 3 {
		t.Errorf("Align = %d, want 3", n)
	}

	_, err = Align(Of(Series{1, 2, 3}), Of(Series{1, 2}))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Align mismatched: got %v, want ErrDimensionMismatch", err)
	}

	_, err = Align(Scalar(1), Scalar(2))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Align scalars only: got %v, want ErrDimensionMismatch", err)
	}

	n, err = Align(Of(Series{}))
	if err != nil || n != 0 {
		t.Errorf("Align empty = %d, %v; want 0, nil", n, err)
	}
}

func TestCheckLengths(t *testing.T) {
	if err := CheckLengths(3, 3, 3); err != nil {
		t.Errorf("CheckLengths equal: %v", err)
	}
	if err := CheckLengths(3, 3, 2); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("CheckLengths unequal: got %v, want ErrDimensionMismatch", err)
	}
}

func TestBoolsHelpers(t *testing.T) {
	b := Bools{true, false, true, true}
	if b.Count() != 3 {
		t.Errorf("Count = %d, want 3", b.Count())
	}
	idx := b.Indices()
	want := []int{0, 2, 3}
	if len(idx) != len(want) {
		t.Fatalf("Indices = %v, want %v", idx, want)
	}
	for i := range want {
		if idx[i] != want[i] {
			t.Errorf("Indices[%d] = %d, want %d", i, idx[i], want[i])
		}
	}
}

func TestFilled(t *testing.T) {
	s := Filled(4, 2.5)
	if len(s) != 4 {
		t.Fatalf("len = %d, want 4", len(s))
	}
	for i, v := range s {
		if v != 2.5 {
			t.Errorf("s[%d] = %v, want 2.5", i, v)
		}
	}
}
