package cache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compressor shrinks payloads before they reach durable storage.
type Compressor interface {
	Compress(val []byte) ([]byte, error)
	Decompress(val []byte) ([]byte, error)
}

// ZstdCompressor is safe for concurrent use; EncodeAll/DecodeAll never share state.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor builds a compressor with default encoder settings.
func NewZstdCompressor() (*ZstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("cache: create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("cache: create zstd decoder: %w", err)
	}
	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (z *ZstdCompressor) Compress(val []byte) ([]byte, error) {
	return z.encoder.EncodeAll(val, make([]byte, 0, len(val)/2)), nil
}

func (z *ZstdCompressor) Decompress(val []byte) ([]byte, error) {
	if len(val) == 0 {
		return nil, nil
	}
	return z.decoder.DecodeAll(val, nil)
}
