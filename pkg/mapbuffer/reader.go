package mapbuffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mapbufr/mapbuffer/pkg/common/log"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/eytzinger"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

// Reader is a cheap, non-owning view over a serialized buffer. It performs
// no I/O beyond what a lookup or iteration step requires, and it never
// mutates or bulk-copies the underlying bytes. The state a Reader loads
// lazily (index, sorted view, checksum result) is guarded by an internal
// mutex, so one Reader may serve lookups and iteration from several
// goroutines; many Readers may also independently view the same immutable
// bytes concurrently.
type Reader struct {
	src    io.ReaderAt
	size   int64
	header Header
	codec  codec.Codec

	dataOff int64
	dataEnd int64

	cfg *readerConfig

	mu       sync.Mutex
	index    []byte // lazily loaded, HeaderSize.. HeaderSize+16N
	sorted   []entryRef
	crcOK    *bool
}

type entryRef struct {
	label uint64
	pos   int
}

// Open attaches a Reader to an in-memory buffer.
func Open(buf []byte, opts ...ReaderOption) (*Reader, error) {
	return OpenAt(bytes.NewReader(buf), int64(len(buf)), opts...)
}

// OpenAt attaches a Reader to any io.ReaderAt of known size: an open file,
// a memory map (pkg/mapbuffer/mmapfile), or a ranged remote fetch
// (pkg/mapbuffer/remote). Only the fixed 16-byte header is read here; the
// index and data region are fetched lazily on first use. With
// WithVerifyOnOpen on a version-1 buffer, the whole buffer is also read
// here to verify its checksum.
func OpenAt(src io.ReaderAt, size int64, opts ...ReaderOption) (*Reader, error) {
	cfg := newReaderConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.logger = log.Component(cfg.logger, "reader")

	hbuf := make([]byte, HeaderSize)
	if _, err := src.ReadAt(hbuf, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrTruncatedBuffer, err)
	}
	h, err := DecodeHeader(hbuf)
	if err != nil {
		return nil, err
	}
	cfg.logger = log.WithCodec(cfg.logger, h.Codec.String())

	cd, err := codec.Lookup(h.Codec)
	if err != nil {
		return nil, err
	}

	n := int64(h.IndexSize)
	dataOff := int64(HeaderSize) + n*IndexEntrySize
	trailer := int64(0)
	if h.Version == VersionChecksummed {
		trailer = CRCTrailerSize
	}
	dataEnd := size - trailer
	if dataOff > dataEnd {
		return nil, fmt.Errorf("%w: index of %d entries needs %d bytes, buffer has %d", ErrTruncatedBuffer, n, dataOff-HeaderSize, dataEnd-HeaderSize)
	}

	r := &Reader{
		src:     src,
		size:    size,
		header:  h,
		codec:   cd,
		dataOff: dataOff,
		dataEnd: dataEnd,
		cfg:     cfg,
	}

	if cfg.verifyOnOpen && h.Version == VersionChecksummed {
		if _, err := r.VerifyChecksum(); err != nil {
			return nil, err
		}
	}

	cfg.logger.Debug("opened buffer: %d entries, codec=%s, version=%d", h.IndexSize, h.Codec, h.Version)
	return r, nil
}

// Len returns N, the number of entries.
func (r *Reader) Len() int { return int(r.header.IndexSize) }

// Version returns the buffer's format version.
func (r *Reader) Version() uint8 { return r.header.Version }

// CodecTag returns the buffer's compression codec tag.
func (r *Reader) CodecTag() codec.Tag { return r.header.Codec }

// Close releases the underlying source if it implements io.Closer.
// Releasing the borrow before the backing bytes disappear is the caller's
// responsibility.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Reader) ensureIndex() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil || r.header.IndexSize == 0 {
		return nil
	}
	buf := make([]byte, int64(r.header.IndexSize)*IndexEntrySize)
	if _, err := r.src.ReadAt(buf, HeaderSize); err != nil {
		return fmt.Errorf("%w: reading index: %v", ErrTruncatedBuffer, err)
	}
	r.index = buf
	return nil
}

func (r *Reader) label(pos int) uint64 {
	return binary.LittleEndian.Uint64(r.index[pos*IndexEntrySize:])
}

func (r *Reader) offset(pos int) uint64 {
	return binary.LittleEndian.Uint64(r.index[pos*IndexEntrySize+8:])
}

// VerifyChecksum computes (once, then caches) whether a version-1 buffer's
// trailing CRC32C matches its contents. Version-0 buffers have no trailer
// and always report true.
func (r *Reader) VerifyChecksum() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.crcOK != nil {
		if !*r.crcOK {
			return false, fmt.Errorf("%w: cached result of an earlier verification", ErrChecksumMismatch)
		}
		return true, nil
	}
	if r.header.Version != VersionChecksummed {
		ok := true
		r.crcOK = &ok
		return true, nil
	}
	body := make([]byte, r.dataEnd)
	if _, err := r.src.ReadAt(body, 0); err != nil {
		return false, fmt.Errorf("%w: reading buffer for checksum: %v", ErrTruncatedBuffer, err)
	}
	trailer := make([]byte, CRCTrailerSize)
	if _, err := r.src.ReadAt(trailer, r.dataEnd); err != nil {
		return false, fmt.Errorf("%w: reading trailer: %v", ErrTruncatedBuffer, err)
	}
	want := binary.LittleEndian.Uint32(trailer)
	got := crc32.Checksum(body, crc32cTable)
	ok := got == want
	r.crcOK = &ok
	if !ok {
		return false, fmt.Errorf("%w: buffer crc %08x, trailer says %08x", ErrChecksumMismatch, got, want)
	}
	return true, nil
}

func (r *Reader) checkStrict() error {
	if !r.cfg.strict {
		return nil
	}
	if _, err := r.VerifyChecksum(); err != nil {
		return err
	}
	return nil
}

// Contains reports whether key is present. It never returns an error for
// absence; it only errors if the index cannot be read at all or, in strict
// mode, if the version-1 checksum does not verify.
func (r *Reader) Contains(key uint64) (bool, error) {
	start := time.Now()
	if err := r.checkStrict(); err != nil {
		r.cfg.stats.TrackError(errKind(err))
		return false, err
	}
	if err := r.ensureIndex(); err != nil {
		r.cfg.stats.TrackError(errKind(err))
		return false, err
	}
	n := r.Len()
	found := false
	if n > 0 {
		_, found = eytzinger.Search(n, r.label, key)
	}
	r.cfg.stats.Track(stats.OpContains, time.Since(start))
	if found {
		r.cfg.stats.TrackHit()
	} else {
		r.cfg.stats.TrackMiss()
	}
	return found, nil
}

// IndexLookup returns the Eytzinger array position of key, or -1 if absent.
func (r *Reader) IndexLookup(key uint64) (int64, error) {
	if err := r.ensureIndex(); err != nil {
		return -1, err
	}
	n := r.Len()
	if n == 0 {
		return -1, nil
	}
	pos, ok := eytzinger.Search(n, r.label, key)
	if !ok {
		return -1, nil
	}
	return int64(pos), nil
}

// Get retrieves the value for key. If key is absent and a default is
// supplied, the default is returned with a nil error. Without a default,
// an absent key raises ErrMissingKey, except that any lookup against a
// buffer with N=0 raises ErrEmptyBufferAccess instead.
func (r *Reader) Get(key uint64, defaultValue ...[]byte) ([]byte, error) {
	start := time.Now()
	if err := r.checkStrict(); err != nil {
		r.cfg.stats.TrackError(errKind(err))
		return nil, err
	}
	if err := r.ensureIndex(); err != nil {
		r.cfg.stats.TrackError(errKind(err))
		return nil, err
	}

	n := r.Len()
	if n == 0 {
		r.cfg.stats.Track(stats.OpGet, time.Since(start))
		r.cfg.stats.TrackMiss()
		return r.absent(defaultValue)
	}

	pos, ok := eytzinger.Search(n, r.label, key)
	if !ok {
		r.cfg.stats.Track(stats.OpGet, time.Since(start))
		r.cfg.stats.TrackMiss()
		return r.absent(defaultValue)
	}

	offHit := r.offset(pos)
	offNext := uint64(r.dataEnd)
	if succ, ok := eytzinger.Successor(n, r.label, key); ok {
		offNext = r.offset(succ)
	}
	if offNext < offHit {
		return nil, fmt.Errorf("%w: offsets not increasing at key %d", ErrCorruptIndex, key)
	}

	raw := make([]byte, offNext-offHit)
	if _, err := r.src.ReadAt(raw, int64(offHit)); err != nil {
		err = fmt.Errorf("%w: reading value for key %d: %v", ErrTruncatedBuffer, key, err)
		r.cfg.stats.TrackError(errKind(err))
		return nil, err
	}
	r.cfg.stats.TrackBytesRead(uint64(len(raw)))

	decompressed, err := r.codec.Decode(raw)
	if err != nil {
		err = fmt.Errorf("%w: key %d: %v", ErrDecompressionFailure, key, err)
		r.cfg.stats.TrackError(errKind(err))
		return nil, err
	}
	value, err := r.cfg.decode(decompressed)
	if err != nil {
		return nil, err
	}

	r.cfg.stats.Track(stats.OpGet, time.Since(start))
	r.cfg.stats.TrackHit()
	return value, nil
}

func (r *Reader) absent(defaultValue [][]byte) ([]byte, error) {
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	if r.Len() == 0 {
		return nil, ErrEmptyBufferAccess
	}
	return nil, ErrMissingKey
}

func errKind(err error) string {
	for _, sentinel := range []error{
		ErrBadMagic, ErrUnsupportedVersion, ErrUnsupportedCodec, ErrTruncatedBuffer,
		ErrCorruptIndex, ErrChecksumMismatch, ErrMissingKey, ErrEmptyBufferAccess,
		ErrDuplicateKey, ErrCompressionFailure, ErrDecompressionFailure,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "other"
}

// sortedRefs returns (label, Eytzinger-position) pairs ordered by
// ascending label, computed once and cached. This is the only place a
// Reader materializes information about every entry at once; it never
// touches the data region.
func (r *Reader) sortedRefs() ([]entryRef, error) {
	if err := r.ensureIndex(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sorted != nil {
		return r.sorted, nil
	}
	n := r.Len()
	refs := make([]entryRef, n)
	for i := 0; i < n; i++ {
		refs[i] = entryRef{label: r.label(i), pos: i}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].label < refs[j].label })
	r.sorted = refs
	return refs, nil
}
