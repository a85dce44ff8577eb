package codec

import "errors"

// ErrUnsupported is returned by Lookup for an unrecognized tag, and by a
// recognized-but-not-linked-in codec's Encode/Decode.
var ErrUnsupported = errors.New("codec: unsupported compression codec")
