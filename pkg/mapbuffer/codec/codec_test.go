package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestNoneRoundTrip(t *testing.T) {
	c, err := Lookup(TagNone)
	if err != nil {
		t.Fatal(err)
	}
	in := []byte("hello world")
	enc, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, in) {
		t.Fatalf("none codec Encode changed the bytes: %q", enc)
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Fatalf("Decode = %q, want %q", dec, in)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	c, err := Lookup(TagGzip)
	if err != nil {
		t.Fatal(err)
	}
	in := bytes.Repeat([]byte("compress me please "), 100)
	enc, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(enc, in) {
		t.Fatal("gzip Encode did not change repetitive input")
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Fatal("gzip round trip mismatch")
	}
}

func TestZstdRoundTrip(t *testing.T) {
	c, err := Lookup(TagZstd)
	if err != nil {
		t.Fatal(err)
	}
	in := bytes.Repeat([]byte("compress me please "), 100)
	enc, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Fatal("zstd round trip mismatch")
	}
}

func TestUnsupportedCodecsRecognizedButFail(t *testing.T) {
	for _, tag := range []Tag{TagBrotli, TagLZMA} {
		if !Recognized(tag) {
			t.Fatalf("Recognized(%s) = false, want true", tag)
		}
		c, err := Lookup(tag)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", tag, err)
		}
		if _, err := c.Encode([]byte("x")); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("Encode with %s error = %v, want ErrUnsupported", tag, err)
		}
	}
}

func TestLookupRejectsUnrecognizedTag(t *testing.T) {
	tag := EncodeTag("nope")
	if Recognized(tag) {
		t.Fatal("Recognized(nope) = true, want false")
	}
	if _, err := Lookup(tag); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Lookup(nope) error = %v, want ErrUnsupported", err)
	}
}

func TestEncodeDecodeTagPadding(t *testing.T) {
	tag := EncodeTag("gz")
	if tag != (Tag{'g', 'z', 0, 0}) {
		t.Fatalf("EncodeTag(gz) = %v, want zero-padded", tag)
	}
	if DecodeTag(tag) != "gz" {
		t.Fatalf("DecodeTag = %q, want gz", DecodeTag(tag))
	}
}
