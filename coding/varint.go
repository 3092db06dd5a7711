package coding

import (
	"github.com/quic-go/quic-go/quicvarint"
)

// MaxVarint is the largest value representable by a QUIC variable-length
// integer (62 usable bits).
const MaxVarint = quicvarint.Max

// AppendVarint appends the QUIC varint encoding of v to buf.
func AppendVarint(buf []byte, v uint64) []byte {
	return quicvarint.Append(buf, v)
}

// AppendZigZag appends the zig-zag varint encoding of a signed value,
// used for fields such as track priority that are signed 8-bit on the
// wire but carried as varints for forward compatibility.
func AppendZigZag(buf []byte, v int64) []byte {
	return quicvarint.Append(buf, zigzagEncode(v))
}

// Buffer is a cursor over an already-fully-received byte slice (for
// example the body of a length-prefixed control message). ReadVarint
// and ReadByte advance the cursor only on success; the compound reads
// (ReadBytes, ReadString, ReadPath, ReadInt8) can leave it
// past the parts of a value they consumed before failing.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer wraps data for sequential decoding.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Remaining reports how many bytes are left to consume.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// Bytes returns the unconsumed tail of the buffer without advancing it.
func (b *Buffer) Bytes() []byte {
	return b.data[b.pos:]
}

// ReadVarint decodes a QUIC varint from the buffer.
func (b *Buffer) ReadVarint(field string) (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, More(field, 1)
	}
	v, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		// quicvarint.Parse only fails when the buffer is too short to
		// hold the length the first byte advertises.
		need := varintLen(b.data[b.pos]) - (len(b.data) - b.pos)
		if need < 1 {
			need = 1
		}
		return 0, More(field, need)
	}
	b.pos += n
	return v, nil
}

// ReadZigZag decodes a zig-zag varint into a signed value.
func (b *Buffer) ReadZigZag(field string) (int64, error) {
	v, err := b.ReadVarint(field)
	if err != nil {
		return 0, err
	}
	return zigzagDecode(v), nil
}

// ReadInt8 decodes a zig-zag varint and narrows it to int8, used for the
// track priority field. Values outside [-128, 127] are InvalidValue.
func (b *Buffer) ReadInt8(field string) (int8, error) {
	v, err := b.ReadZigZag(field)
	if err != nil {
		return 0, err
	}
	if v < -128 || v > 127 {
		return 0, Invalid(field)
	}
	return int8(v), nil
}

// ReadByte decodes a single raw byte (used for small enumerations such
// as group order, where a full varint would be wasteful).
func (b *Buffer) ReadByte(field string) (byte, error) {
	if b.pos >= len(b.data) {
		return 0, More(field, 1)
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// ReadBool decodes a single byte as a boolean: 0 is false, anything
// else is true.
func (b *Buffer) ReadBool(field string) (bool, error) {
	v, err := b.ReadByte(field)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// varintLen returns the total encoded length implied by a varint's
// first byte, per the two-bit length prefix.
func varintLen(first byte) int {
	switch first >> 6 {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}
