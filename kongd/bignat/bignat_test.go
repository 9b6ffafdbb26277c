package bignat

import "testing"

func TestSubtractSaturates(t *testing.T) {
	a := FromUint64(5)
	b := FromUint64(10)
	got := a.Subtract(b)
	if !got.IsZero() {
		t.Fatalf("expected saturating subtraction to zero, got %s", got)
	}
}

func TestDivideByZero(t *testing.T) {
	a := FromUint64(10)
	if got := a.Divide(Zero()); got != nil {
		t.Fatalf("expected nil on division by zero, got %s", got)
	}
}

func TestDivideFloors(t *testing.T) {
	a := FromUint64(7)
	b := FromUint64(2)
	got := a.Divide(b)
	if got.Uint64() != 3 {
		t.Fatalf("expected floor(7/2)=3, got %s", got)
	}
}

func TestSqrtMonotone(t *testing.T) {
	prev := uint64(0)
	for n := uint64(0); n < 10000; n += 37 {
		got := FromUint64(n).Sqrt().Uint64()
		if got < prev {
			t.Fatalf("sqrt not monotone at n=%d: got %d < prev %d", n, got, prev)
		}
		prev = got
	}
}

func TestSqrtExact(t *testing.T) {
	cases := map[uint64]uint64{0: 0, 1: 1, 4: 2, 10000: 100, 99: 9}
	for n, want := range cases {
		if got := FromUint64(n).Sqrt().Uint64(); got != want {
			t.Fatalf("sqrt(%d): got %d, want %d", n, got, want)
		}
	}
}

func TestToDecimalPrecisionUpscale(t *testing.T) {
	a := FromUint64(5) // 5 units at 2dp
	got := a.ToDecimalPrecision(2, 8)
	want := FromUint64(5 * 1_000_000)
	if got.Cmp(want) != 0 {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestToDecimalPrecisionDownscaleFloors(t *testing.T) {
	a := FromUint64(12345)
	got := a.ToDecimalPrecision(8, 6) // divide by 100
	if got.Uint64() != 123 {
		t.Fatalf("expected floor division, got %s", got)
	}
}

func TestAddMultiply(t *testing.T) {
	a := FromUint64(3)
	b := FromUint64(4)
	if a.Add(b).Uint64() != 7 {
		t.Fatalf("add failed")
	}
	if a.Multiply(b).Uint64() != 12 {
		t.Fatalf("multiply failed")
	}
}
