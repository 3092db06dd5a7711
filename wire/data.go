package wire

import (
	"bufio"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/moqlite/coding"
)

// DataStreamType identifies the kind of payload a unidirectional data
// stream carries. Group is the only type defined today; the field
// exists so a future stream shape can be introduced without breaking
// readers that only understand Group.
type DataStreamType uint64

const DataStreamGroup DataStreamType = 0

// GroupHeader is the header written once at the start of every
// unidirectional data stream, identifying which subscription and which
// group sequence the stream's frames belong to.
type GroupHeader struct {
	Type         DataStreamType
	SubscribeID  uint64
	GroupSeq     uint64
	Priority     int8
}

// Encode appends the wire encoding of the header to buf.
func (h GroupHeader) Encode(buf []byte) []byte {
	buf = coding.AppendVarint(buf, uint64(h.Type))
	buf = coding.AppendVarint(buf, h.SubscribeID)
	buf = coding.AppendVarint(buf, h.GroupSeq)
	buf = coding.AppendZigZag(buf, int64(h.Priority))
	return buf
}

// WriteGroupHeader writes h to w as a single Write call.
func WriteGroupHeader(w io.Writer, h GroupHeader) error {
	buf := h.Encode(nil)
	_, err := w.Write(buf)
	return err
}

// ReadGroupHeader reads a GroupHeader from the start of a newly
// accepted unidirectional stream. It blocks until the header has
// arrived in full.
func ReadGroupHeader(r io.Reader) (GroupHeader, error) {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	var h GroupHeader
	typ, err := quicvarint.Read(br)
	if err != nil {
		return h, fmt.Errorf("wire: read stream type: %w", err)
	}
	h.Type = DataStreamType(typ)

	h.SubscribeID, err = quicvarint.Read(br)
	if err != nil {
		return h, fmt.Errorf("wire: read subscribe id: %w", err)
	}

	h.GroupSeq, err = quicvarint.Read(br)
	if err != nil {
		return h, fmt.Errorf("wire: read group sequence: %w", err)
	}

	rawPriority, err := quicvarint.Read(br)
	if err != nil {
		return h, fmt.Errorf("wire: read priority: %w", err)
	}
	priority := int64(rawPriority>>1) ^ -int64(rawPriority&1)
	if priority < -128 || priority > 127 {
		return h, fmt.Errorf("wire: priority %d out of range", priority)
	}
	h.Priority = int8(priority)

	return h, nil
}

// WriteFrame writes a single varint-length-prefixed frame payload to w
// as one Write call.
func WriteFrame(w io.Writer, payload []byte) (int64, error) {
	buf := coding.AppendVarint(nil, uint64(len(payload)))
	buf = append(buf, payload...)
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrame reads the next varint-length-prefixed frame from r. It
// blocks until either a full frame has arrived or the stream ends,
// returning io.EOF exactly when r is exhausted at a frame boundary
// (the normal, non-error end of a group).
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	length, err := quicvarint.Read(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: read frame payload: %w", err)
		}
	}
	return payload, nil
}

// DatagramHeader precedes the single frame carried by an unreliable
// datagram.
type DatagramHeader struct {
	Type        DataStreamType
	SubscribeID uint64
	GroupSeq    uint64
	FrameSeq    uint64
}

// EncodeDatagram appends the header followed by the frame payload,
// producing a complete datagram ready to send.
func EncodeDatagram(h DatagramHeader, payload []byte) []byte {
	buf := coding.AppendVarint(nil, uint64(h.Type))
	buf = coding.AppendVarint(buf, h.SubscribeID)
	buf = coding.AppendVarint(buf, h.GroupSeq)
	buf = coding.AppendVarint(buf, h.FrameSeq)
	buf = append(buf, payload...)
	return buf
}

// DecodeDatagram splits a received datagram into its header and frame
// payload. Unlike control messages and group streams, a datagram
// arrives as a single atomic unit, so decoding operates on the whole
// buffer rather than an incremental reader.
func DecodeDatagram(data []byte) (DatagramHeader, []byte, error) {
	b := coding.NewBuffer(data)
	var h DatagramHeader
	typ, err := b.ReadVarint("type")
	if err != nil {
		return h, nil, err
	}
	h.Type = DataStreamType(typ)
	if h.SubscribeID, err = b.ReadVarint("subscribe_id"); err != nil {
		return h, nil, err
	}
	if h.GroupSeq, err = b.ReadVarint("group_seq"); err != nil {
		return h, nil, err
	}
	if h.FrameSeq, err = b.ReadVarint("frame_seq"); err != nil {
		return h, nil, err
	}
	return h, b.Bytes(), nil
}
