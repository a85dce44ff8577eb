package mapbuffer

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mapbufr/mapbuffer/pkg/common/log"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/eytzinger"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Build assembles a serialized buffer from src. The full key set must be
// known up front: Build materializes every pair before it writes anything,
// there is no streaming construction.
func Build(src Source, opts BuildOptions) ([]byte, error) {
	start := time.Now()
	opts = opts.withDefaults()

	cd, err := codec.Lookup(opts.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, err)
	}

	type kv struct {
		key   uint64
		value []byte
	}
	var pairs []kv
	seen := make(map[uint64]struct{})
	if err := src.Each(func(key uint64, value []byte) error {
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}
		pairs = append(pairs, kv{key, value})
		return nil
	}); err != nil {
		opts.Stats.TrackError("duplicate-key")
		return nil, err
	}

	n := len(pairs)
	if uint64(n) >= uint64(1)<<32 {
		return nil, fmt.Errorf("%w: %d entries", ErrTooManyEntries, n)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	buildLogger := log.WithCodec(opts.Logger, opts.Codec.String())
	buildLogger.Debug("building buffer: %d entries, version=%d", n, opts.Version)

	encoded := make([][]byte, n)
	if n > 0 {
		g := new(errgroup.Group)
		g.SetLimit(opts.Parallelism)
		for i := range pairs {
			i := i
			g.Go(func() error {
				v, err := opts.Encode(pairs[i].value)
				if err != nil {
					log.WithKey(buildLogger, pairs[i].key).Error("encode failed: %v", err)
					return fmt.Errorf("%w: key %d: %v", ErrCompressionFailure, pairs[i].key, err)
				}
				cv, err := cd.Encode(v)
				if err != nil {
					log.WithKey(buildLogger, pairs[i].key).Error("compress failed: %v", err)
					return fmt.Errorf("%w: key %d: %v", ErrCompressionFailure, pairs[i].key, err)
				}
				encoded[i] = cv
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			opts.Stats.TrackError("compression-failure")
			return nil, err
		}
	}

	dataStart := uint64(HeaderSize) + uint64(n)*IndexEntrySize
	offsets := make([]uint64, n)
	off := dataStart
	for i := 0; i < n; i++ {
		offsets[i] = off
		off += uint64(len(encoded[i]))
	}
	dataEnd := off

	trailer := uint64(0)
	if opts.Version == VersionChecksummed {
		trailer = CRCTrailerSize
	}
	buf := make([]byte, dataEnd+trailer)

	h := Header{Version: opts.Version, Codec: opts.Codec, IndexSize: uint32(n)}
	h.Encode(buf[:HeaderSize])

	if n > 0 {
		perm := eytzinger.Permutation(n)
		for k := 0; k < n; k++ {
			srcIdx := perm[k]
			entryOff := HeaderSize + k*IndexEntrySize
			binary.LittleEndian.PutUint64(buf[entryOff:], pairs[srcIdx].key)
			binary.LittleEndian.PutUint64(buf[entryOff+8:], offsets[srcIdx])
		}
		for i := 0; i < n; i++ {
			copy(buf[offsets[i]:], encoded[i])
		}
	}

	if opts.Version == VersionChecksummed {
		sum := crc32.Checksum(buf[:dataEnd], crc32cTable)
		binary.LittleEndian.PutUint32(buf[dataEnd:], sum)
	}

	opts.Stats.Track(stats.OpBuild, time.Since(start))
	opts.Stats.TrackBytesBuilt(uint64(len(buf)))
	buildLogger.Debug("built buffer: %d bytes", len(buf))

	return buf, nil
}
