package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestGroupHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	h := GroupHeader{Type: DataStreamGroup, SubscribeID: 5, GroupSeq: 12, Priority: -3}
	var buf bytes.Buffer
	if err := WriteGroupHeader(&buf, h); err != nil {
		t.Fatal(err)
	}
	got, err := ReadGroupHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if _, err := WriteFrame(&buf, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteFrame(&buf, []byte("world")); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(&buf)
	f1, err := ReadFrame(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(f1) != "hello" {
		t.Fatalf("got %q", f1)
	}
	f2, err := ReadFrame(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(f2) != "world" {
		t.Fatalf("got %q", f2)
	}

	if _, err := ReadFrame(r); err != io.EOF {
		t.Fatalf("expected io.EOF at group end, got %v", err)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if _, err := WriteFrame(&buf, nil); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(&buf)
	got, err := ReadFrame(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestDatagramRoundTrip(t *testing.T) {
	t.Parallel()
	h := DatagramHeader{Type: DataStreamGroup, SubscribeID: 2, GroupSeq: 9, FrameSeq: 0}
	payload := []byte("frame-bytes")
	data := EncodeDatagram(h, payload)

	gotHeader, gotPayload, err := DecodeDatagram(data)
	if err != nil {
		t.Fatal(err)
	}
	if gotHeader != h {
		t.Fatalf("got %+v, want %+v", gotHeader, h)
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("got %q, want %q", gotPayload, payload)
	}
}

func TestDatagramTruncated(t *testing.T) {
	t.Parallel()
	_, _, err := DecodeDatagram([]byte{0})
	if err == nil {
		t.Fatal("expected error on truncated datagram")
	}
}
