package mapbuffer

import (
	"encoding/binary"
	"fmt"

	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
)

const (
	// HeaderSize is the fixed size of the header in bytes.
	HeaderSize = 16

	// IndexEntrySize is the size in bytes of one (label, offset) index pair.
	IndexEntrySize = 16

	// CRCTrailerSize is the size in bytes of the version-1 CRC32C trailer.
	CRCTrailerSize = 4

	// VersionUncompressedIndex is the base format, no trailer.
	VersionUncompressedIndex = uint8(0)

	// VersionChecksummed appends a CRC32C trailer over everything before it.
	VersionChecksummed = uint8(1)
)

// magicBytes is the required 7-byte prefix of every buffer.
var magicBytes = [7]byte{'m', 'a', 'p', 'b', 'u', 'f', 'r'}

// Header is the decoded form of a buffer's fixed 16-byte header.
type Header struct {
	Version   uint8
	Codec     codec.Tag
	IndexSize uint32 // N, the number of entries
}

// Encode writes h into dst, which must be at least HeaderSize bytes long.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1] // bounds check hint
	copy(dst[0:7], magicBytes[:])
	dst[7] = h.Version
	copy(dst[8:12], h.Codec[:])
	binary.LittleEndian.PutUint32(dst[12:16], h.IndexSize)
}

// DecodeHeader parses and validates the fixed header at the start of buf.
// It checks the magic prefix, that the version is recognized, and that the
// codec tag is structurally recognized; it does not require the codec's
// implementation to be linked in.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncatedBuffer, HeaderSize, len(buf))
	}
	var magic [7]byte
	copy(magic[:], buf[0:7])
	if magic != magicBytes {
		return Header{}, fmt.Errorf("%w: got %q", ErrBadMagic, magic[:])
	}
	version := buf[7]
	if version != VersionUncompressedIndex && version != VersionChecksummed {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	var tag codec.Tag
	copy(tag[:], buf[8:12])
	if !codec.Recognized(tag) {
		return Header{}, fmt.Errorf("%w: tag %q", ErrUnsupportedCodec, codec.DecodeTag(tag))
	}
	n := binary.LittleEndian.Uint32(buf[12:16])
	return Header{Version: version, Codec: tag, IndexSize: n}, nil
}
