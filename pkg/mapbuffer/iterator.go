package mapbuffer

import (
	"fmt"
	"time"

	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

// ItemIterator walks a Reader's entries in ascending key order. It holds
// no lock on the Reader beyond the initial sort; concurrent iteration and
// lookup on the same Reader are safe as long as the caller does not
// mutate the underlying bytes.
type ItemIterator struct {
	r      *Reader
	refs   []entryRef
	pos    int
	start  time.Time
	cur    Pair
	err    error
}

// Iter returns an iterator positioned before the first entry. Call Next to
// advance and Item/Key/Value to read the current entry.
func (r *Reader) Iter() (*ItemIterator, error) {
	refs, err := r.sortedRefs()
	if err != nil {
		return nil, err
	}
	return &ItemIterator{r: r, refs: refs, pos: -1, start: time.Now()}, nil
}

// Next advances the iterator and reports whether an entry is available.
func (it *ItemIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	if it.pos >= len(it.refs) {
		it.r.cfg.stats.Track(stats.OpIterate, time.Since(it.start))
		return false
	}
	ref := it.refs[it.pos]
	value, err := it.r.valueAtSortedPos(it.pos, it.refs)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = Pair{Key: ref.label, Value: value}
	return true
}

// Item returns the current key/value pair.
func (it *ItemIterator) Item() Pair { return it.cur }

// Key returns the current key.
func (it *ItemIterator) Key() uint64 { return it.cur.Key }

// Value returns the current value.
func (it *ItemIterator) Value() []byte { return it.cur.Value }

// Err returns the first error encountered during iteration, if any.
func (it *ItemIterator) Err() error { return it.err }

// KeyIterator walks only the keys, skipping value decode and decompression
// entirely.
type KeyIterator struct {
	refs []entryRef
	pos  int
}

// KeyIter returns an iterator over keys in ascending order.
func (r *Reader) KeyIter() (*KeyIterator, error) {
	refs, err := r.sortedRefs()
	if err != nil {
		return nil, err
	}
	return &KeyIterator{refs: refs, pos: -1}, nil
}

// Next advances the key iterator.
func (it *KeyIterator) Next() bool {
	it.pos++
	return it.pos < len(it.refs)
}

// Key returns the current key.
func (it *KeyIterator) Key() uint64 { return it.refs[it.pos].label }

// ValueIterator walks only the values, in ascending key order.
type ValueIterator struct {
	inner *ItemIterator
}

// ValueIter returns an iterator over values in ascending key order.
func (r *Reader) ValueIter() (*ValueIterator, error) {
	inner, err := r.Iter()
	if err != nil {
		return nil, err
	}
	return &ValueIterator{inner: inner}, nil
}

// Next advances the value iterator.
func (it *ValueIterator) Next() bool { return it.inner.Next() }

// Value returns the current value.
func (it *ValueIterator) Value() []byte { return it.inner.Value() }

// Err returns the first error encountered during iteration, if any.
func (it *ValueIterator) Err() error { return it.inner.Err() }

// valueAtSortedPos reads and decodes the value belonging to refs[idx],
// using the next sorted entry's offset (or dataEnd for the last one) as the
// end of this value's byte range. This is the same offset-difference trick
// Get uses via eytzinger.Successor, but computed directly from the sorted
// slice since iteration already has it.
func (r *Reader) valueAtSortedPos(idx int, refs []entryRef) ([]byte, error) {
	if err := r.checkStrict(); err != nil {
		return nil, err
	}
	if err := r.ensureIndex(); err != nil {
		return nil, err
	}
	ref := refs[idx]
	offHit := r.offset(ref.pos)
	offNext := uint64(r.dataEnd)
	if idx+1 < len(refs) {
		offNext = r.offset(refs[idx+1].pos)
	}
	if offNext < offHit {
		return nil, ErrCorruptIndex
	}
	raw := make([]byte, offNext-offHit)
	if _, err := r.src.ReadAt(raw, int64(offHit)); err != nil {
		return nil, fmt.Errorf("%w: reading value for key %d: %v", ErrTruncatedBuffer, ref.label, err)
	}
	r.cfg.stats.TrackBytesRead(uint64(len(raw)))
	decompressed, err := r.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: key %d: %v", ErrDecompressionFailure, ref.label, err)
	}
	return r.cfg.decode(decompressed)
}

// ToMapping materializes every entry into a Go map. Intended for small
// buffers or tests; large buffers should iterate instead.
func (r *Reader) ToMapping() (map[uint64][]byte, error) {
	it, err := r.Iter()
	if err != nil {
		return nil, err
	}
	out := make(map[uint64][]byte, r.Len())
	for it.Next() {
		out[it.Key()] = it.Value()
	}
	if it.Err() != nil {
		return nil, it.Err()
	}
	return out, nil
}
