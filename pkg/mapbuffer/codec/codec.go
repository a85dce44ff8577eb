// Package codec implements the per-value compression schemes a mapbuffer
// header can name. Compression is applied per value, never across values,
// so a point read never forces decompression of unrelated entries.
package codec

import (
	"bytes"
	"fmt"
)

// Tag is the 4-byte ASCII identifier stored in a buffer's header.
type Tag [4]byte

// The five recognized codec tags. Not all have a linked-in
// implementation; see Lookup.
var (
	TagNone   = Tag{'n', 'o', 'n', 'e'}
	TagGzip   = Tag{'g', 'z', 'i', 'p'}
	TagBrotli = Tag{'0', '0', 'b', 'r'}
	TagZstd   = Tag{'z', 's', 't', 'd'}
	TagLZMA   = Tag{'l', 'z', 'm', 'a'}
)

// Codec encodes and decodes a single value buffer under one compression
// scheme.
type Codec interface {
	Tag() Tag
	Encode(p []byte) ([]byte, error)
	Decode(p []byte) ([]byte, error)
}

// EncodeTag right-pads s with NUL bytes to reach the fixed 4-byte on-disk
// width.
func EncodeTag(s string) Tag {
	var t Tag
	copy(t[:], s)
	return t
}

// DecodeTag returns the ASCII name of t with trailing NUL bytes trimmed.
func DecodeTag(t Tag) string {
	return string(bytes.TrimRight(t[:], "\x00"))
}

func (t Tag) String() string { return DecodeTag(t) }

var recognized = map[Tag]bool{
	TagNone:   true,
	TagGzip:   true,
	TagBrotli: true,
	TagZstd:   true,
	TagLZMA:   true,
}

// Recognized reports whether tag is one of the five known codec tags,
// regardless of whether an implementation is linked in.
func Recognized(tag Tag) bool {
	return recognized[tag]
}

// unsupportedCodec is a stub Codec for tags that are structurally
// recognized (a validator or header decode accepts them) but whose
// compression library is not present in this build. Encoding or decoding
// through it always fails with ErrUnsupported.
type unsupportedCodec struct {
	tag  Tag
	why  string
}

func (u unsupportedCodec) Tag() Tag { return u.tag }

func (u unsupportedCodec) Encode(p []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, u.tag, u.why)
}

func (u unsupportedCodec) Decode(p []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, u.tag, u.why)
}

var registry = map[Tag]Codec{
	TagNone: noneCodec{},
	TagGzip: gzipCodec{},
	TagZstd: newZstdCodec(),
	TagBrotli: unsupportedCodec{tag: TagBrotli, why: "no brotli library linked in"},
	TagLZMA:   unsupportedCodec{tag: TagLZMA, why: "no lzma library linked in"},
}

// Lookup returns the Codec registered for tag. It returns ErrUnsupported if
// tag is not one of the five recognized tags at all; a recognized tag with
// no linked implementation (brotli, lzma) still returns a Codec value whose
// Encode/Decode fail with ErrUnsupported when actually invoked.
func Lookup(tag Tag) (Codec, error) {
	c, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("%w: tag %q", ErrUnsupported, DecodeTag(tag))
	}
	return c, nil
}
