package codec

// noneCodec is the identity codec.
type noneCodec struct{}

func (noneCodec) Tag() Tag { return TagNone }

func (noneCodec) Encode(p []byte) ([]byte, error) { return p, nil }

func (noneCodec) Decode(p []byte) ([]byte, error) { return p, nil }
