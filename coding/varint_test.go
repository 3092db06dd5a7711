package coding

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	t.Parallel()
	values := []uint64{0, 1, 63, 64, 16383, 16384, 1 << 30, MaxVarint}
	for _, v := range values {
		buf := AppendVarint(nil, v)
		b := NewBuffer(buf)
		got, err := b.ReadVarint("v")
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("ReadVarint(%d) = %d", v, got)
		}
		if b.Remaining() != 0 {
			t.Fatalf("expected buffer fully consumed for %d", v)
		}
	}
}

func TestZigZagRoundTrip(t *testing.T) {
	t.Parallel()
	values := []int64{0, 1, -1, 127, -128, 1000, -1000}
	for _, v := range values {
		buf := AppendZigZag(nil, v)
		b := NewBuffer(buf)
		got, err := b.ReadZigZag("v")
		if err != nil {
			t.Fatalf("ReadZigZag(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("ReadZigZag(%d) = %d", v, got)
		}
	}
}

func TestReadInt8RoundTrip(t *testing.T) {
	t.Parallel()
	for _, v := range []int8{-128, -1, 0, 1, 127} {
		buf := AppendZigZag(nil, int64(v))
		b := NewBuffer(buf)
		got, err := b.ReadInt8("priority")
		if err != nil {
			t.Fatalf("ReadInt8(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("ReadInt8(%d) = %d", v, got)
		}
	}
}

func TestReadVarintMore(t *testing.T) {
	t.Parallel()
	// A 4-byte varint prefix with only the first byte present.
	buf := AppendVarint(nil, 16384)
	b := NewBuffer(buf[:1])
	_, err := b.ReadVarint("v")
	if !IsMore(err) {
		t.Fatalf("expected More error, got %v", err)
	}
}

func TestReadVarintEmptyBuffer(t *testing.T) {
	t.Parallel()
	b := NewBuffer(nil)
	_, err := b.ReadVarint("v")
	if !IsMore(err) {
		t.Fatalf("expected More error, got %v", err)
	}
}
