package wire

import (
	"bytes"
	"testing"

	"github.com/zsiec/moqlite/coding"
)

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	payload := SessionClient{Versions: []uint64{Version}, Extensions: Extensions{}}.Encode()
	if err := WriteMessage(&buf, TagSessionClient, payload); err != nil {
		t.Fatal(err)
	}

	tag, body, err := ReadMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagSessionClient {
		t.Fatalf("tag = %#x, want %#x", tag, TagSessionClient)
	}
	got, err := DecodeSessionClient(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Versions) != 1 || got.Versions[0] != Version {
		t.Fatalf("versions = %v", got.Versions)
	}
}

func TestAnnounceRoundTrip(t *testing.T) {
	t.Parallel()
	m := Announce{Path: coding.Path{"live", "room1"}, Active: true}
	got, err := DecodeAnnounce(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Path.Equal(m.Path) || got.Active != m.Active {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	m := Subscribe{
		ID:        7,
		Path:      coding.Path{"live", "room1"},
		TrackName: "video",
		Priority:  -5,
		Order:     OrderDescending,
		HasMin:    true,
		GroupMin:  10,
	}
	got, err := DecodeSubscribe(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID || !got.Path.Equal(m.Path) || got.TrackName != m.TrackName ||
		got.Priority != m.Priority || got.Order != m.Order ||
		got.HasMin != m.HasMin || got.GroupMin != m.GroupMin || got.HasMax {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestSubscribeOkRoundTrip(t *testing.T) {
	t.Parallel()
	m := SubscribeOk{ID: 3, HasLatest: true, Latest: 42}
	got, err := DecodeSubscribeOk(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}

	none := SubscribeOk{ID: 4}
	got2, err := DecodeSubscribeOk(none.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got2.HasLatest {
		t.Fatalf("expected no latest, got %+v", got2)
	}
}

func TestSubscribeDoneRoundTrip(t *testing.T) {
	t.Parallel()
	m := SubscribeDone{ID: 9, Code: 404}
	got, err := DecodeSubscribeDone(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestFetchRoundTrip(t *testing.T) {
	t.Parallel()
	m := Fetch{Path: coding.Path{"live", "x"}, Priority: 2, Group: 5, Offset: 3}
	got, err := DecodeFetch(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Path.Equal(m.Path) || got.Priority != m.Priority || got.Group != m.Group || got.Offset != m.Offset {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestAnnounceInterestRoundTrip(t *testing.T) {
	t.Parallel()
	m := AnnounceInterest{Prefix: coding.Path{"live"}}
	got, err := DecodeAnnounceInterest(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Prefix.Equal(m.Prefix) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	m := Unsubscribe{ID: 11}
	got, err := DecodeUnsubscribe(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestMessageTruncated(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_, _, err := ReadMessage(&buf)
	if err == nil {
		t.Fatal("expected error on empty input")
	}
}
