package seqnum

import "testing"

func TestWrap(t *testing.T) {
	cases := []struct {
		n    uint64
		zero Wrap32
		want Wrap32
	}{
		{3*(1<<32) + 17, Wrap32(15), Wrap32(32)},
		{7*(1<<32) - 2, Wrap32(15), Wrap32(13)},
	}
	for _, c := range cases {
		if got := Wrap(c.n, c.zero); got != c.want {
			t.Errorf("Wrap(%d, %d) = %d, want %d", c.n, c.zero, got, c.want)
		}
	}
}

func TestUnwrapRoundTrip(t *testing.T) {
	zero := Wrap32(19)
	if got := Wrap(0, zero).Unwrap(zero, 0); got != 0 {
		t.Errorf("Unwrap = %d, want 0", got)
	}

	for _, n := range []uint64{0, 1, 17, 1 << 16, 1 << 31, (1 << 32) - 1, 1 << 32, 5*(1<<32) + 99} {
		w := Wrap(n, zero)
		if got := w.Unwrap(zero, n); got != n {
			t.Errorf("Wrap(%d).Unwrap(checkpoint=%d) = %d, want %d", n, n, got, n)
		}
	}
}

func TestUnwrapNearestCheckpoint(t *testing.T) {
	zero := Wrap32(0)
	w := Wrap(10, zero)
	// Checkpoint far in the future: nearest absolute index with this wrap
	// value should still be close to the checkpoint, not near 0.
	ckpt := uint64(1) << 33
	got := w.Unwrap(zero, ckpt)
	var diff uint64
	if got > ckpt {
		diff = got - ckpt
	} else {
		diff = ckpt - got
	}
	if diff > 1<<31 {
		t.Errorf("Unwrap did not choose nearest candidate: got %d, checkpoint %d", got, ckpt)
	}
}

func TestLess(t *testing.T) {
	if !Wrap32(5).Less(Wrap32(10)) {
		t.Error("5 should be less than 10")
	}
	if Wrap32(10).Less(Wrap32(5)) {
		t.Error("10 should not be less than 5")
	}
	// wraparound: a value just before 0 is "less than" a value just after.
	if !Wrap32(0xFFFFFFFF).Less(Wrap32(1)) {
		t.Error("wraparound comparison failed")
	}
}

func TestInWindow(t *testing.T) {
	if !InWindow(Wrap32(5), Wrap32(0), 10) {
		t.Error("5 should be in [0,10)")
	}
	if InWindow(Wrap32(10), Wrap32(0), 10) {
		t.Error("10 should not be in [0,10)")
	}
}
