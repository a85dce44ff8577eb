package mapbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
)

func randomPairs(n int, rng *rand.Rand) SliceSource {
	seen := make(map[uint64]struct{}, n)
	out := make(SliceSource, 0, n)
	for len(out) < n {
		k := rng.Uint64()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		v := make([]byte, rng.Intn(64))
		rng.Read(v)
		out = append(out, Pair{Key: k, Value: v})
	}
	return out
}

func TestBuildOpenRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pairs := randomPairs(500, rng)

	buf, err := Build(pairs, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	r, err := Open(buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.Len() != len(pairs) {
		t.Fatalf("Len() = %d, want %d", r.Len(), len(pairs))
	}

	for _, p := range pairs {
		got, err := r.Get(p.Key)
		if err != nil {
			t.Fatalf("Get(%d): %v", p.Key, err)
		}
		if string(got) != string(p.Value) {
			t.Fatalf("Get(%d) = %x, want %x", p.Key, got, p.Value)
		}
	}
}

func TestGetAbsentKey(t *testing.T) {
	src := SliceSource{{Key: 10, Value: []byte("a")}, {Key: 20, Value: []byte("b")}}
	buf, err := Build(src, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Get(15); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("Get(15) error = %v, want ErrMissingKey", err)
	}

	got, err := r.Get(15, []byte("fallback"))
	if err != nil {
		t.Fatalf("Get with default: %v", err)
	}
	if string(got) != "fallback" {
		t.Fatalf("Get with default = %q, want fallback", got)
	}
}

func TestGetOnEmptyBuffer(t *testing.T) {
	buf, err := Build(SliceSource{}, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
	if _, err := r.Get(1); !errors.Is(err, ErrEmptyBufferAccess) {
		t.Fatalf("Get on empty buffer error = %v, want ErrEmptyBufferAccess", err)
	}
}

func TestContains(t *testing.T) {
	src := SliceSource{{Key: 1, Value: []byte("x")}, {Key: 99, Value: []byte("y")}}
	buf, err := Build(src, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := r.Contains(1); err != nil || !ok {
		t.Fatalf("Contains(1) = %v, %v, want true, nil", ok, err)
	}
	if ok, err := r.Contains(2); err != nil || ok {
		t.Fatalf("Contains(2) = %v, %v, want false, nil", ok, err)
	}
}

func TestIterationOrderIsSortedByKey(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pairs := randomPairs(300, rng)
	buf, err := Build(pairs, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}

	it, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}
	var keys []uint64
	for it.Next() {
		keys = append(keys, it.Key())
	}
	if it.Err() != nil {
		t.Fatalf("iteration error: %v", it.Err())
	}
	if !sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }) {
		t.Fatal("iteration keys not sorted ascending")
	}
	if len(keys) != len(pairs) {
		t.Fatalf("iterated %d keys, want %d", len(keys), len(pairs))
	}
}

func TestToMapping(t *testing.T) {
	src := SliceSource{{Key: 1, Value: []byte("a")}, {Key: 2, Value: []byte("b")}}
	buf, err := Build(src, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}
	m, err := r.ToMapping()
	if err != nil {
		t.Fatal(err)
	}
	if string(m[1]) != "a" || string(m[2]) != "b" {
		t.Fatalf("ToMapping() = %v, want {1:a 2:b}", m)
	}
}

func TestCompressionTransparency(t *testing.T) {
	src := SliceSource{
		{Key: 1, Value: []byte("the quick brown fox jumps over the lazy dog repeatedly")},
		{Key: 2, Value: []byte("the quick brown fox jumps over the lazy dog again and again")},
	}
	for _, tag := range []codec.Tag{codec.TagNone, codec.TagGzip, codec.TagZstd} {
		tag := tag
		t.Run(tag.String(), func(t *testing.T) {
			buf, err := Build(src, BuildOptions{Codec: tag})
			if err != nil {
				t.Fatalf("Build with codec %s: %v", tag, err)
			}
			r, err := Open(buf)
			if err != nil {
				t.Fatal(err)
			}
			if r.CodecTag() != tag {
				t.Fatalf("CodecTag() = %s, want %s", r.CodecTag(), tag)
			}
			for _, p := range src {
				got, err := r.Get(p.Key)
				if err != nil {
					t.Fatalf("Get(%d): %v", p.Key, err)
				}
				if string(got) != string(p.Value) {
					t.Fatalf("Get(%d) = %q, want %q", p.Key, got, p.Value)
				}
			}
		})
	}
}

func TestEncodeDecodeTransparency(t *testing.T) {
	src := SliceSource{{Key: 1, Value: []byte("42")}}
	toBytes := func(v []byte) ([]byte, error) { return append([]byte("wrapped:"), v...), nil }
	fromBytes := func(v []byte) ([]byte, error) {
		if len(v) < len("wrapped:") {
			return nil, fmt.Errorf("short value")
		}
		return v[len("wrapped:"):], nil
	}

	buf, err := Build(src, BuildOptions{Encode: toBytes})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf, WithDecode(fromBytes))
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "42" {
		t.Fatalf("Get(1) = %q, want 42", got)
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	src := SliceSource{{Key: 1, Value: []byte("a")}, {Key: 1, Value: []byte("b")}}
	if _, err := Build(src, BuildOptions{}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Build with duplicate key error = %v, want ErrDuplicateKey", err)
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	src := SliceSource{{Key: 1, Value: []byte("a")}, {Key: 2, Value: []byte("b")}}
	buf, err := Build(src, BuildOptions{Version: VersionChecksummed})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := r.VerifyChecksum()
	if err != nil || !ok {
		t.Fatalf("VerifyChecksum() = %v, %v, want true, nil", ok, err)
	}

	buf[len(buf)-CRCTrailerSize-1] ^= 0xFF
	r2, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r2.VerifyChecksum(); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("VerifyChecksum() on corrupted buffer error = %v, want ErrChecksumMismatch", err)
	}
}

func TestStrictModeRejectsCorruption(t *testing.T) {
	src := SliceSource{{Key: 1, Value: []byte("a")}}
	buf, err := Build(src, BuildOptions{Version: VersionChecksummed})
	if err != nil {
		t.Fatal(err)
	}
	buf[HeaderSize] ^= 0xFF // corrupt the first index entry's key bytes

	r, err := Open(buf, WithStrict(true))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(1); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Get under strict mode with corruption error = %v, want ErrChecksumMismatch", err)
	}
}

func TestValidateSoundness(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pairs := randomPairs(64, rng)
	buf, err := Build(pairs, BuildOptions{Version: VersionChecksummed})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(buf); err != nil {
		t.Fatalf("Validate on well-formed buffer: %v", err)
	}
	if err := Validate(buf, ValidateOptions{DeepValidate: true}); err != nil {
		t.Fatalf("Validate(DeepValidate) on well-formed buffer: %v", err)
	}

	corrupt := append([]byte(nil), buf...)
	corrupt[HeaderSize+8] ^= 0xFF // flip a byte in the first offset field
	if err := Validate(corrupt); err == nil {
		t.Fatal("Validate on corrupted offset field: want error, got nil")
	}
}

// TestValidateRejectsScrambledEytzingerLayout swaps two label entries in an
// otherwise well-formed index. The labels stay unique and the offsets stay
// untouched, so a bare duplicate-key check would miss it entirely, but the
// physical layout no longer satisfies the Eytzinger recursion for any
// strictly ascending assignment of labels to positions.
func TestValidateRejectsScrambledEytzingerLayout(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pairs := randomPairs(8, rng)
	buf, err := Build(pairs, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(buf); err != nil {
		t.Fatalf("Validate on well-formed buffer: %v", err)
	}

	entry := func(pos int) []byte {
		off := HeaderSize + pos*IndexEntrySize
		return buf[off : off+IndexEntrySize]
	}
	a, b := entry(0), entry(1)
	var tmp [IndexEntrySize]byte
	copy(tmp[:], a)
	copy(a, b)
	copy(b, tmp[:])

	err = Validate(buf)
	if err == nil {
		t.Fatal("Validate on scrambled Eytzinger layout: want error, got nil")
	}
	if !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("Validate on scrambled Eytzinger layout: err = %v, want ErrCorruptIndex", err)
	}
}

// TestValidateRejectsOffsetIntoIndexRegion builds a well-formed buffer and
// then rewrites the smallest-key entry's offset to point backward into the
// header/index region. The old bounds check only rejected offsets past the
// data region's end, so an in-bounds-but-too-small offset like this used to
// pass Validate cleanly.
func TestValidateRejectsOffsetIntoIndexRegion(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	pairs := randomPairs(8, rng)
	buf, err := Build(pairs, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	dataStart := uint64(HeaderSize + 8*IndexEntrySize)
	for pos := 0; pos < 8; pos++ {
		off := HeaderSize + pos*IndexEntrySize
		if binary.LittleEndian.Uint64(buf[off+8:]) == dataStart {
			binary.LittleEndian.PutUint64(buf[off+8:], uint64(HeaderSize))
			break
		}
	}

	if err := Validate(buf); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("Validate with offset pointing into index region: err = %v, want ErrCorruptIndex", err)
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	buf, err := Build(SliceSource{{Key: 1, Value: []byte("a")}}, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 'x'
	if err := Validate(buf); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("Validate with bad magic error = %v, want ErrBadMagic", err)
	}
}

func TestBigIndexAgreesWithLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 20000
	pairs := randomPairs(n, rng)
	byKey := make(map[uint64][]byte, n)
	for _, p := range pairs {
		byKey[p.Key] = p.Value
	}

	buf, err := Build(pairs, BuildOptions{Parallelism: 8})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(buf)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2000; i++ {
		var key uint64
		var want []byte
		if rng.Intn(2) == 0 {
			p := pairs[rng.Intn(len(pairs))]
			key, want = p.Key, p.Value
		} else {
			key = rng.Uint64()
			want = byKey[key]
		}
		got, err := r.Get(key, nil)
		if want == nil {
			if err == nil && got != nil {
				t.Fatalf("Get(%d) = %x, want absent", key, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Get(%d): %v", key, err)
		}
		if string(got) != string(want) {
			t.Fatalf("Get(%d) = %x, want %x", key, got, want)
		}
	}
}
