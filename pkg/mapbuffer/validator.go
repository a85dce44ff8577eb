package mapbuffer

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/eytzinger"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

// ValidateOptions controls how deep Validate looks. The default (zero
// value) already checks every structural invariant, including that the
// on-disk index is a genuine Eytzinger layout and that offsets are
// non-decreasing and correctly bounded; DeepValidate additionally
// decodes and decompresses every value.
type ValidateOptions struct {
	DeepValidate bool
	Stats        *stats.Collector
}

// Validate checks a fully in-memory buffer's structural soundness: the
// magic, the version, the codec tag, that the index and data regions fit
// inside the buffer, that the labels stored at each Eytzinger array
// position reverse-permute to a strictly ascending sorted sequence (so the
// physical layout is a valid Eytzinger BST rather than an arbitrary
// permutation of unique labels), that offsets are non-decreasing in that
// same sorted order (equal neighbours mean an empty value) with the first
// offset at the start of the data
// region and the last at or before its end, and (for version 1) that the
// trailing CRC32C matches. It does not decode any value unless
// opts.DeepValidate is set.
func Validate(buf []byte, opts ...ValidateOptions) error {
	return ValidateReaderAt(sliceReaderAt(buf), int64(len(buf)), opts...)
}

func mergeValidateOptions(opts []ValidateOptions) ValidateOptions {
	if len(opts) == 0 {
		return ValidateOptions{}
	}
	return opts[0]
}

// ValidateReaderAt runs the same checks as Validate against any
// io.ReaderAt of known size, so a buffer can be validated without loading
// it fully into memory.
func ValidateReaderAt(src io.ReaderAt, size int64, opts ...ValidateOptions) error {
	start := time.Now()
	o := mergeValidateOptions(opts)

	if size < HeaderSize {
		return fmt.Errorf("%w: buffer of %d bytes shorter than header", ErrTruncatedBuffer, size)
	}
	hbuf := make([]byte, HeaderSize)
	if _, err := src.ReadAt(hbuf, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrTruncatedBuffer, err)
	}
	h, err := DecodeHeader(hbuf)
	if err != nil {
		o.Stats.TrackError(errKind(err))
		return err
	}

	cd, err := codec.Lookup(h.Codec)
	if err != nil {
		o.Stats.TrackError(errKind(err))
		return err
	}

	n := int64(h.IndexSize)
	dataOff := int64(HeaderSize) + n*IndexEntrySize
	trailer := int64(0)
	if h.Version == VersionChecksummed {
		trailer = CRCTrailerSize
	}
	dataEnd := size - trailer
	if dataOff > dataEnd {
		err := fmt.Errorf("%w: index of %d entries needs %d bytes past header, buffer only has %d", ErrTruncatedBuffer, n, dataOff-HeaderSize, dataEnd-HeaderSize)
		o.Stats.TrackError(errKind(err))
		return err
	}

	index := make([]byte, n*IndexEntrySize)
	if n > 0 {
		if _, err := src.ReadAt(index, HeaderSize); err != nil {
			err = fmt.Errorf("%w: reading index: %v", ErrTruncatedBuffer, err)
			o.Stats.TrackError(errKind(err))
			return err
		}
	}
	label := func(pos int) uint64 { return binary.LittleEndian.Uint64(index[pos*IndexEntrySize:]) }
	offset := func(pos int) uint64 { return binary.LittleEndian.Uint64(index[pos*IndexEntrySize+8:]) }

	// The Eytzinger permutation tells us, for each on-disk array position,
	// which sorted rank it is supposed to hold. Reverse-permuting the
	// stored labels and offsets through it and checking the result is
	// strictly ascending verifies the physical layout is actually a valid
	// Eytzinger BST over unique keys, not just some arbitrary arrangement
	// of unique labels that happens to dodge a duplicate check.
	perm := eytzinger.Permutation(int(n))
	sortedLabel := make([]uint64, n)
	sortedOffset := make([]uint64, n)
	for pos := 0; pos < int(n); pos++ {
		rank := perm[pos]
		sortedLabel[rank] = label(pos)
		sortedOffset[rank] = offset(pos)
	}

	for i := 0; i < int(n); i++ {
		if i > 0 && sortedLabel[i] <= sortedLabel[i-1] {
			err := fmt.Errorf("%w: label at sorted rank %d (%d) does not strictly follow rank %d (%d); index is not a valid Eytzinger layout", ErrCorruptIndex, i, sortedLabel[i], i-1, sortedLabel[i-1])
			o.Stats.TrackError(errKind(err))
			return err
		}
	}

	if n > 0 {
		if sortedOffset[0] != uint64(dataOff) {
			err := fmt.Errorf("%w: first value offset %d, want data region start %d", ErrCorruptIndex, sortedOffset[0], dataOff)
			o.Stats.TrackError(errKind(err))
			return err
		}
		for i := 1; i < int(n); i++ {
			if sortedOffset[i] < sortedOffset[i-1] {
				err := fmt.Errorf("%w: offset at sorted rank %d (%d) is below rank %d (%d)", ErrCorruptIndex, i, sortedOffset[i], i-1, sortedOffset[i-1])
				o.Stats.TrackError(errKind(err))
				return err
			}
		}
		if last := sortedOffset[n-1]; last > uint64(dataEnd) {
			err := fmt.Errorf("%w: last value offset %d exceeds data region end %d", ErrCorruptIndex, last, dataEnd)
			o.Stats.TrackError(errKind(err))
			return err
		}
	}

	if o.DeepValidate && n > 0 {
		for i := 0; i < int(n); i++ {
			offHit := sortedOffset[i]
			offNext := uint64(dataEnd)
			if i+1 < int(n) {
				offNext = sortedOffset[i+1]
			}
			raw := make([]byte, offNext-offHit)
			if _, err := src.ReadAt(raw, int64(offHit)); err != nil {
				err = fmt.Errorf("%w: reading value for key %d: %v", ErrTruncatedBuffer, sortedLabel[i], err)
				o.Stats.TrackError(errKind(err))
				return err
			}
			if _, err := cd.Decode(raw); err != nil {
				err = fmt.Errorf("%w: key %d: %v", ErrDecompressionFailure, sortedLabel[i], err)
				o.Stats.TrackError(errKind(err))
				return err
			}
		}
	}

	if h.Version == VersionChecksummed {
		body := make([]byte, dataEnd)
		if _, err := src.ReadAt(body, 0); err != nil {
			err = fmt.Errorf("%w: reading buffer for checksum: %v", ErrTruncatedBuffer, err)
			o.Stats.TrackError(errKind(err))
			return err
		}
		trailerBuf := make([]byte, CRCTrailerSize)
		if _, err := src.ReadAt(trailerBuf, dataEnd); err != nil {
			err = fmt.Errorf("%w: reading trailer: %v", ErrTruncatedBuffer, err)
			o.Stats.TrackError(errKind(err))
			return err
		}
		want := binary.LittleEndian.Uint32(trailerBuf)
		got := crc32.Checksum(body, crc32cTable)
		if got != want {
			err := fmt.Errorf("%w: buffer crc %08x, trailer says %08x", ErrChecksumMismatch, got, want)
			o.Stats.TrackError(errKind(err))
			return err
		}
	}

	o.Stats.Track(stats.OpValidate, time.Since(start))
	return nil
}

type sliceReaderAt []byte

func (s sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s)) {
		return 0, io.EOF
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
