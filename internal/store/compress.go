package store

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses stored files. The extension distinguishes files written
// with different codecs so switching codecs never misreads old entries.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	Extension() string
}

// CodecByName maps the config value to a Codec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "none":
		return plain{}, nil
	case "s2":
		return s2Codec{}, nil
	case "zstd":
		return newZstdCodec()
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

type plain struct{}

func (plain) Encode(data []byte) ([]byte, error) { return data, nil }
func (plain) Decode(data []byte) ([]byte, error) { return data, nil }
func (plain) Extension() string                  { return ".json" }

type s2Codec struct{}

func (s2Codec) Encode(data []byte) ([]byte, error) { return s2.Encode(nil, data), nil }
func (s2Codec) Decode(data []byte) ([]byte, error) { return s2.Decode(nil, data) }
func (s2Codec) Extension() string                  { return ".s2" }

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (z *zstdCodec) Encode(data []byte) ([]byte, error) { return z.enc.EncodeAll(data, nil), nil }
func (z *zstdCodec) Decode(data []byte) ([]byte, error) { return z.dec.DecodeAll(data, nil) }
func (*zstdCodec) Extension() string                    { return ".zst" }
