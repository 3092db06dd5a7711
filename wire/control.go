package wire

import (
	"bufio"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/moqlite/coding"
)

// Version is the protocol version this package implements.
const Version uint64 = 0xff0bad01

// Tag identifies a control message type. Tags are stable across the
// lifetime of a session and never reused for a different shape.
type Tag uint64

// Control message tags (§4.2).
const (
	TagSessionClient     Tag = 0x40
	TagSessionServer     Tag = 0x41
	TagSessionInfo       Tag = 0x02
	TagAnnounce          Tag = 0x10
	TagAnnounceInterest  Tag = 0x11
	TagSubscribe         Tag = 0x20
	TagSubscribeUpdate   Tag = 0x21
	TagSubscribeOk       Tag = 0x22
	TagUnsubscribe       Tag = 0x23
	TagSubscribeDone     Tag = 0x24
	TagFetch             Tag = 0x30
)

// GroupOrder describes the order in which a track consumer prefers to
// observe groups that are buffered concurrently.
type GroupOrder uint8

const (
	OrderAscending GroupOrder = iota
	OrderDescending
)

func (o GroupOrder) String() string {
	if o == OrderDescending {
		return "descending"
	}
	return "ascending"
}

// Extensions is a forward-compatible key/value parameter map, carried on
// SessionClient and SessionServer. Unknown keys are preserved on decode
// so a relay can pass them through without understanding them.
type Extensions map[uint64][]byte

func appendExtensions(buf []byte, ext Extensions) []byte {
	buf = coding.AppendVarint(buf, uint64(len(ext)))
	for k, v := range ext {
		buf = coding.AppendVarint(buf, k)
		buf = coding.AppendBytes(buf, v)
	}
	return buf
}

func readExtensions(b *coding.Buffer, field string) (Extensions, error) {
	count, err := b.ReadVarint(field + ".count")
	if err != nil {
		return nil, err
	}
	if count > coding.MaxTupleLen {
		return nil, coding.Bounds(field)
	}
	ext := make(Extensions, count)
	for i := uint64(0); i < count; i++ {
		k, err := b.ReadVarint(field + ".key")
		if err != nil {
			return nil, err
		}
		v, err := b.ReadBytes(field + ".value")
		if err != nil {
			return nil, err
		}
		ext[k] = append([]byte(nil), v...)
	}
	return ext, nil
}

// SessionClient is the first message sent by the connecting endpoint,
// offering the versions it speaks.
type SessionClient struct {
	Versions   []uint64
	Extensions Extensions
}

func (m SessionClient) Encode() []byte {
	var buf []byte
	buf = coding.AppendVarint(buf, uint64(len(m.Versions)))
	for _, v := range m.Versions {
		buf = coding.AppendVarint(buf, v)
	}
	buf = appendExtensions(buf, m.Extensions)
	return buf
}

func DecodeSessionClient(body []byte) (SessionClient, error) {
	b := coding.NewBuffer(body)
	var m SessionClient
	n, err := b.ReadVarint("versions.count")
	if err != nil {
		return m, err
	}
	if n > coding.MaxTupleLen {
		return m, coding.Bounds("versions")
	}
	m.Versions = make([]uint64, n)
	for i := range m.Versions {
		v, err := b.ReadVarint("version")
		if err != nil {
			return m, err
		}
		m.Versions[i] = v
	}
	m.Extensions, err = readExtensions(b, "extensions")
	return m, err
}

// SessionServer is the reply to SessionClient, selecting one version.
type SessionServer struct {
	Version    uint64
	Extensions Extensions
}

func (m SessionServer) Encode() []byte {
	buf := coding.AppendVarint(nil, m.Version)
	return appendExtensions(buf, m.Extensions)
}

func DecodeSessionServer(body []byte) (SessionServer, error) {
	b := coding.NewBuffer(body)
	var m SessionServer
	var err error
	m.Version, err = b.ReadVarint("version")
	if err != nil {
		return m, err
	}
	m.Extensions, err = readExtensions(b, "extensions")
	return m, err
}

// SessionInfo carries an optional advisory bitrate, sent by either
// endpoint at any time after setup.
type SessionInfo struct {
	Bitrate    uint64
	HasBitrate bool
}

func (m SessionInfo) Encode() []byte {
	var buf []byte
	buf = append(buf, boolByte(m.HasBitrate))
	if m.HasBitrate {
		buf = coding.AppendVarint(buf, m.Bitrate)
	}
	return buf
}

func DecodeSessionInfo(body []byte) (SessionInfo, error) {
	b := coding.NewBuffer(body)
	var m SessionInfo
	has, err := b.ReadBool("has_bitrate")
	if err != nil {
		return m, err
	}
	m.HasBitrate = has
	if has {
		m.Bitrate, err = b.ReadVarint("bitrate")
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

// Announce reports a broadcast path becoming live or departing.
type Announce struct {
	Path   coding.Path
	Active bool
}

func (m Announce) Encode() []byte {
	buf := coding.AppendPath(nil, m.Path)
	return append(buf, boolByte(m.Active))
}

func DecodeAnnounce(body []byte) (Announce, error) {
	b := coding.NewBuffer(body)
	var m Announce
	var err error
	m.Path, err = b.ReadPath("path")
	if err != nil {
		return m, err
	}
	m.Active, err = b.ReadBool("active")
	return m, err
}

// AnnounceInterest registers interest in every broadcast path under a
// prefix, present and future.
type AnnounceInterest struct {
	Prefix coding.Path
}

func (m AnnounceInterest) Encode() []byte {
	return coding.AppendPath(nil, m.Prefix)
}

func DecodeAnnounceInterest(body []byte) (AnnounceInterest, error) {
	b := coding.NewBuffer(body)
	var m AnnounceInterest
	var err error
	m.Prefix, err = b.ReadPath("prefix")
	return m, err
}

// Subscribe requests delivery of a track's groups.
type Subscribe struct {
	ID         uint64
	Path       coding.Path
	TrackName  string
	Priority   int8
	Order      GroupOrder
	GroupMin   uint64
	HasMin     bool
	GroupMax   uint64
	HasMax     bool
}

func (m Subscribe) Encode() []byte {
	var buf []byte
	buf = coding.AppendVarint(buf, m.ID)
	buf = coding.AppendPath(buf, m.Path)
	buf = coding.AppendString(buf, m.TrackName)
	buf = coding.AppendZigZag(buf, int64(m.Priority))
	buf = append(buf, byte(m.Order))
	buf = append(buf, boolByte(m.HasMin))
	if m.HasMin {
		buf = coding.AppendVarint(buf, m.GroupMin)
	}
	buf = append(buf, boolByte(m.HasMax))
	if m.HasMax {
		buf = coding.AppendVarint(buf, m.GroupMax)
	}
	return buf
}

func DecodeSubscribe(body []byte) (Subscribe, error) {
	b := coding.NewBuffer(body)
	var m Subscribe
	var err error
	if m.ID, err = b.ReadVarint("id"); err != nil {
		return m, err
	}
	if m.Path, err = b.ReadPath("path"); err != nil {
		return m, err
	}
	if m.TrackName, err = b.ReadString("track_name"); err != nil {
		return m, err
	}
	if m.Priority, err = b.ReadInt8("priority"); err != nil {
		return m, err
	}
	order, err := b.ReadByte("order")
	if err != nil {
		return m, err
	}
	m.Order = GroupOrder(order)
	if m.HasMin, err = b.ReadBool("has_min"); err != nil {
		return m, err
	}
	if m.HasMin {
		if m.GroupMin, err = b.ReadVarint("group_min"); err != nil {
			return m, err
		}
	}
	if m.HasMax, err = b.ReadBool("has_max"); err != nil {
		return m, err
	}
	if m.HasMax {
		if m.GroupMax, err = b.ReadVarint("group_max"); err != nil {
			return m, err
		}
	}
	return m, nil
}

// SubscribeUpdate narrows or widens an existing subscription in place,
// without a new id.
type SubscribeUpdate struct {
	ID       uint64
	Priority int8
	Order    GroupOrder
	GroupMin uint64
	HasMin   bool
	GroupMax uint64
	HasMax   bool
}

func (m SubscribeUpdate) Encode() []byte {
	var buf []byte
	buf = coding.AppendVarint(buf, m.ID)
	buf = coding.AppendZigZag(buf, int64(m.Priority))
	buf = append(buf, byte(m.Order))
	buf = append(buf, boolByte(m.HasMin))
	if m.HasMin {
		buf = coding.AppendVarint(buf, m.GroupMin)
	}
	buf = append(buf, boolByte(m.HasMax))
	if m.HasMax {
		buf = coding.AppendVarint(buf, m.GroupMax)
	}
	return buf
}

func DecodeSubscribeUpdate(body []byte) (SubscribeUpdate, error) {
	b := coding.NewBuffer(body)
	var m SubscribeUpdate
	var err error
	if m.ID, err = b.ReadVarint("id"); err != nil {
		return m, err
	}
	if m.Priority, err = b.ReadInt8("priority"); err != nil {
		return m, err
	}
	order, err := b.ReadByte("order")
	if err != nil {
		return m, err
	}
	m.Order = GroupOrder(order)
	if m.HasMin, err = b.ReadBool("has_min"); err != nil {
		return m, err
	}
	if m.HasMin {
		if m.GroupMin, err = b.ReadVarint("group_min"); err != nil {
			return m, err
		}
	}
	if m.HasMax, err = b.ReadBool("has_max"); err != nil {
		return m, err
	}
	if m.HasMax {
		if m.GroupMax, err = b.ReadVarint("group_max"); err != nil {
			return m, err
		}
	}
	return m, nil
}

// SubscribeOk confirms a subscription and optionally reports the latest
// known group sequence at the time of confirmation.
type SubscribeOk struct {
	ID        uint64
	Latest    uint64
	HasLatest bool
}

func (m SubscribeOk) Encode() []byte {
	buf := coding.AppendVarint(nil, m.ID)
	buf = append(buf, boolByte(m.HasLatest))
	if m.HasLatest {
		buf = coding.AppendVarint(buf, m.Latest)
	}
	return buf
}

func DecodeSubscribeOk(body []byte) (SubscribeOk, error) {
	b := coding.NewBuffer(body)
	var m SubscribeOk
	var err error
	if m.ID, err = b.ReadVarint("id"); err != nil {
		return m, err
	}
	if m.HasLatest, err = b.ReadBool("has_latest"); err != nil {
		return m, err
	}
	if m.HasLatest {
		if m.Latest, err = b.ReadVarint("latest"); err != nil {
			return m, err
		}
	}
	return m, nil
}

// Unsubscribe cancels a subscription by id.
type Unsubscribe struct {
	ID uint64
}

func (m Unsubscribe) Encode() []byte {
	return coding.AppendVarint(nil, m.ID)
}

func DecodeUnsubscribe(body []byte) (Unsubscribe, error) {
	b := coding.NewBuffer(body)
	var m Unsubscribe
	var err error
	m.ID, err = b.ReadVarint("id")
	return m, err
}

// SubscribeDone reports that a subscription has reached a terminal
// state, carrying the close code that explains why (§4.3, §7).
type SubscribeDone struct {
	ID   uint64
	Code uint32
}

func (m SubscribeDone) Encode() []byte {
	buf := coding.AppendVarint(nil, m.ID)
	return coding.AppendVarint(buf, uint64(m.Code))
}

func DecodeSubscribeDone(body []byte) (SubscribeDone, error) {
	b := coding.NewBuffer(body)
	var m SubscribeDone
	var err error
	if m.ID, err = b.ReadVarint("id"); err != nil {
		return m, err
	}
	code, err := b.ReadVarint("code")
	if err != nil {
		return m, err
	}
	m.Code = uint32(code)
	return m, nil
}

// Fetch requests a single group/offset range from the publisher,
// outside of the live subscribe/group-stream flow.
type Fetch struct {
	Path     coding.Path
	Priority int8
	Group    uint64
	Offset   uint64
}

func (m Fetch) Encode() []byte {
	buf := coding.AppendPath(nil, m.Path)
	buf = coding.AppendZigZag(buf, int64(m.Priority))
	buf = coding.AppendVarint(buf, m.Group)
	buf = coding.AppendVarint(buf, m.Offset)
	return buf
}

func DecodeFetch(body []byte) (Fetch, error) {
	b := coding.NewBuffer(body)
	var m Fetch
	var err error
	if m.Path, err = b.ReadPath("path"); err != nil {
		return m, err
	}
	if m.Priority, err = b.ReadInt8("priority"); err != nil {
		return m, err
	}
	if m.Group, err = b.ReadVarint("group"); err != nil {
		return m, err
	}
	if m.Offset, err = b.ReadVarint("offset"); err != nil {
		return m, err
	}
	return m, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// byteReader is satisfied by both a raw io.Reader wrapped in a
// bufio.Reader and by anything that already implements io.ByteReader
// (such as a *bufio.Reader handed in by the caller).
type byteReader interface {
	io.Reader
	io.ByteReader
}

// ReadMessage reads one framed control message: tag:varint,
// length:varint, body. It blocks until a full message has arrived.
func ReadMessage(r io.Reader) (Tag, []byte, error) {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	tag, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: read tag: %w", err)
	}
	length, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: read length: %w", err)
	}
	if length > coding.MaxStringLen {
		return 0, nil, fmt.Errorf("wire: message length %d exceeds maximum", length)
	}

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(br, body); err != nil {
			return 0, nil, fmt.Errorf("wire: read body: %w", err)
		}
	}
	return Tag(tag), body, nil
}

// WriteMessage writes one framed control message as a single Write
// call, so concurrent writers serialize whole messages rather than
// interleaving partial frames.
func WriteMessage(w io.Writer, tag Tag, body []byte) error {
	var buf []byte
	buf = coding.AppendVarint(buf, uint64(tag))
	buf = coding.AppendVarint(buf, uint64(len(body)))
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}
