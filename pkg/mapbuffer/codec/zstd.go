package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec compresses each value independently with a shared encoder and
// decoder pair, reused across calls under a mutex.
type zstdCodec struct {
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		// zstd.NewWriter(nil) with no options cannot fail; if the linked
		// library ever changes that, degrade to an encoder-less codec that
		// reports ErrUnsupported rather than panicking at package init.
		return &zstdCodec{}
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return &zstdCodec{}
	}
	return &zstdCodec{encoder: enc, decoder: dec}
}

func (c *zstdCodec) Tag() Tag { return TagZstd }

func (c *zstdCodec) Encode(p []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder == nil {
		return nil, ErrUnsupported
	}
	return c.encoder.EncodeAll(p, nil), nil
}

func (c *zstdCodec) Decode(p []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decoder == nil {
		return nil, ErrUnsupported
	}
	return c.decoder.DecodeAll(p, nil)
}
