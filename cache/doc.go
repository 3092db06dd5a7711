// Package cache implements the in-memory broadcast/track/group/frame
// model: the publish/subscribe tree that backs every live subscription
// with zero-copy fan-out and bounded buffering. Readers and writers
// take short per-group and per-track mutexes, never held while waiting.
//
// Every entity in the tree has an exclusively-owned producer half and a
// freely cloneable consumer half. Frame payloads are shared, immutable
// byte slices; fan-out never copies them. This package has no knowledge
// of the wire protocol or the substrate transport; it is driven by the
// session state machine in [github.com/zsiec/moqlite/session].
package cache
