// Package mapbuffer implements a compact, immutable container mapping
// uint64 keys to variable-length byte values, laid out so a single value
// can be recovered from a serialized buffer in O(log N) time with no
// upfront parse of the container.
//
// A buffer is three regions back to back: a fixed 16-byte header, an
// Eytzinger-ordered binary-search index, and a data region holding the
// (optionally compressed) values in sorted-key order. Build turns a
// key/value mapping into one such buffer; Open/OpenAt attach a read-only
// Reader to one, either fully in memory or over any io.ReaderAt (a memory
// map, an open file, or a ranged object-store fetch).
package mapbuffer
