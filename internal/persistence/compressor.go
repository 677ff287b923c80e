package persistence

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"referrald/internal/persistence/interfaces"
)

type ZstdCompression struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	closeOnce sync.Once
}

func (z *ZstdCompression) Compress(val []byte) ([]byte, error) {
	return z.encoder.EncodeAll(val, make([]byte, 0, len(val)/2)), nil
}

func (z *ZstdCompression) Decompress(val []byte) ([]byte, error) {
	return z.decoder.DecodeAll(val, nil)
}

// Close is safe to call more than once; the snapshot writer and the event
// archive share one compressor.
func (z *ZstdCompression) Close() {
	z.closeOnce.Do(func() {
		_ = z.encoder.Close()
		z.decoder.Close()
	})
}

func NewZstdCompressor() (interfaces.CompressorInterface, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdCompression{encoder: encoder, decoder: decoder}, nil
}
