package mapbuffer

import (
	"github.com/mapbufr/mapbuffer/pkg/common/log"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

// EncodeFunc converts a caller's value-domain object to bytes before
// compression. The default is identity on []byte.
type EncodeFunc func(value []byte) ([]byte, error)

// DecodeFunc converts decompressed bytes back to a caller's value-domain
// object. The default is identity on []byte.
type DecodeFunc func(value []byte) ([]byte, error)

func identity(b []byte) ([]byte, error) { return b, nil }

// BuildOptions configures Build.
type BuildOptions struct {
	// Codec selects the per-value compression scheme. The zero value
	// selects codec.TagNone.
	Codec codec.Tag

	// Version selects the on-disk format version (0 or 1). The zero value
	// selects VersionUncompressedIndex.
	Version uint8

	// Encode is applied to each value before compression. Defaults to
	// identity.
	Encode EncodeFunc

	// Parallelism bounds how many values are encoded/compressed
	// concurrently. Defaults to 1 (no parallelism) when <= 0.
	Parallelism int

	// Logger receives build progress and error diagnostics. Defaults to a
	// no-op logger.
	Logger log.Logger

	// Stats, if non-nil, receives operation counts and latencies.
	Stats *stats.Collector
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.Encode == nil {
		o.Encode = identity
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.Logger == nil {
		o.Logger = log.NopLogger{}
	}
	o.Logger = log.Component(o.Logger, "build")
	var zeroTag codec.Tag
	if o.Codec == zeroTag {
		o.Codec = codec.TagNone
	}
	return o
}

// ReaderOption configures a Reader constructed by Open or OpenAt.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	decode       DecodeFunc
	strict       bool
	verifyOnOpen bool
	logger       log.Logger
	stats        *stats.Collector
}

func newReaderConfig() *readerConfig {
	return &readerConfig{
		decode: identity,
		logger: log.NopLogger{},
	}
}

// WithDecode sets the DecodeFunc applied to each decompressed value.
func WithDecode(fn DecodeFunc) ReaderOption {
	return func(c *readerConfig) { c.decode = fn }
}

// WithStrict makes Get/Contains/iteration validate a version-1 buffer's
// checksum (caching the result) before serving any data, and fail with
// ErrChecksumMismatch instead of silently serving unverified bytes.
func WithStrict(strict bool) ReaderOption {
	return func(c *readerConfig) { c.strict = strict }
}

// WithVerifyOnOpen forces the version-1 checksum to be computed during
// Open/OpenAt rather than lazily on first need.
func WithVerifyOnOpen(verify bool) ReaderOption {
	return func(c *readerConfig) { c.verifyOnOpen = verify }
}

// WithLogger sets the Logger used for diagnostics. Defaults to a no-op.
func WithLogger(l log.Logger) ReaderOption {
	return func(c *readerConfig) { c.logger = l }
}

// WithReaderStats attaches a stats.Collector to record operation counts and
// latencies.
func WithReaderStats(s *stats.Collector) ReaderOption {
	return func(c *readerConfig) { c.stats = s }
}
