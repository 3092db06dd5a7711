// Package coding implements the low-level wire encoding shared by every
// higher layer of moqlite: QUIC-style variable-length integers, zig-zag
// signed integers, length-prefixed byte strings, and path tuples.
//
// Every decode function reports failures through [DecodeError], which
// distinguishes a message that is merely incomplete (more bytes are
// needed before retrying) from one that is actually malformed. The
// wire package's body decoders build on [Buffer] and surface this
// error type; its stream readers read varints directly from the
// stream and return plain errors instead.
package coding
