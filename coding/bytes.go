package coding

import "unicode/utf8"

// MaxStringLen bounds any single length-prefixed string or byte string,
// and MaxTupleLen bounds the component count of a path or parameter
// map, protecting a decoder from a peer advertising an enormous length
// that would otherwise force an unbounded allocation.
const (
	MaxStringLen = 64 << 10 // 64 KiB
	MaxTupleLen  = 4096
)

// AppendBytes appends a varint length prefix followed by data.
func AppendBytes(buf []byte, data []byte) []byte {
	buf = AppendVarint(buf, uint64(len(data)))
	return append(buf, data...)
}

// AppendString appends a varint length prefix followed by the UTF-8
// bytes of s.
func AppendString(buf []byte, s string) []byte {
	return AppendBytes(buf, []byte(s))
}

// ReadBytes decodes a varint-length-prefixed byte string. The returned
// slice aliases the buffer's backing array; callers that retain it
// beyond the lifetime of the source buffer must copy it.
func (b *Buffer) ReadBytes(field string) ([]byte, error) {
	length, err := b.ReadVarint(field)
	if err != nil {
		return nil, err
	}
	if length > MaxStringLen {
		return nil, Bounds(field)
	}
	end := b.pos + int(length)
	if end > len(b.data) {
		return nil, More(field, end-len(b.data))
	}
	v := b.data[b.pos:end]
	b.pos = end
	return v, nil
}

// ReadString decodes a varint-length-prefixed UTF-8 string.
func (b *Buffer) ReadString(field string) (string, error) {
	raw, err := b.ReadBytes(field)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", InvalidString(field)
	}
	return string(raw), nil
}

// Path is an ordered sequence of UTF-8 path components, compared
// lexicographically component by component.
type Path []string

// AppendPath appends a varint component count followed by each
// length-prefixed component.
func AppendPath(buf []byte, p Path) []byte {
	buf = AppendVarint(buf, uint64(len(p)))
	for _, part := range p {
		buf = AppendString(buf, part)
	}
	return buf
}

// ReadPath decodes a path tuple: count:varint followed by that many
// length-prefixed strings.
func (b *Buffer) ReadPath(field string) (Path, error) {
	count, err := b.ReadVarint(field)
	if err != nil {
		return nil, err
	}
	if count > MaxTupleLen {
		return nil, Bounds(field)
	}
	path := make(Path, count)
	for i := range path {
		s, err := b.ReadString(field)
		if err != nil {
			return nil, err
		}
		path[i] = s
	}
	return path, nil
}

// Compare returns -1, 0, or 1 as p sorts before, equal to, or after
// other, comparing components lexicographically and treating a
// shorter path that is a prefix of the longer one as sorting first.
func (p Path) Compare(other Path) int {
	for i := 0; i < len(p) && i < len(other); i++ {
		if p[i] < other[i] {
			return -1
		}
		if p[i] > other[i] {
			return 1
		}
	}
	switch {
	case len(p) < len(other):
		return -1
	case len(p) > len(other):
		return 1
	default:
		return 0
	}
}

// Equal reports whether p and other have identical components.
func (p Path) Equal(other Path) bool {
	return p.Compare(other) == 0
}

// HasPrefix reports whether prefix equals the first len(prefix)
// components of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, part := range prefix {
		if p[i] != part {
			return false
		}
	}
	return true
}

// String renders the path as a slash-joined string for logging.
func (p Path) String() string {
	s := ""
	for i, part := range p {
		if i > 0 {
			s += "/"
		}
		s += part
	}
	return s
}

// Clone returns a copy of p so the caller can retain it independently
// of the buffer it was decoded from.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}
