// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing; 0 disables compression
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024, // 1KB
		Level:   2,    // Balanced speed/compression
	}
}

// compressionManager handles compression operations
type compressionManager struct {
	opts CompressionOptions

	encoders sync.Pool
	decoders sync.Pool
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	level := zstd.EncoderLevel(opts.Level)

	// Create encoder/decoder once up front to validate the options
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating test decoder: %w", err)
	}

	cm := &compressionManager{
		opts: opts,
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(level),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				return dec
			},
		},
	}
	cm.encoders.Put(enc)
	cm.decoders.Put(dec)

	return cm, nil
}

// shouldCompress determines if content should be compressed
func (cm *compressionManager) shouldCompress(size int) bool {
	return cm.opts.MinSize > 0 && size >= cm.opts.MinSize
}

// compress returns the bytes to store on disk and whether they are compressed.
// Content that does not shrink is stored as is.
func (cm *compressionManager) compress(content []byte) ([]byte, bool, error) {
	if !cm.shouldCompress(len(content)) {
		return content, false, nil
	}

	enc, ok := cm.encoders.Get().(*zstd.Encoder)
	if !ok || enc == nil {
		return nil, false, fmt.Errorf("no zstd encoder available")
	}
	defer cm.encoders.Put(enc)

	out := enc.EncodeAll(content, make([]byte, 0, len(content)/2))
	if len(out) >= len(content) {
		return content, false, nil
	}
	return out, true, nil
}

// decompress decompresses content
func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	if len(content) < len(zstdMagic) || !bytes.Equal(content[:len(zstdMagic)], zstdMagic) {
		return nil, fmt.Errorf("content is not zstd compressed")
	}

	dec, ok := cm.decoders.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		return nil, fmt.Errorf("no zstd decoder available")
	}
	defer cm.decoders.Put(dec)

	return dec.DecodeAll(content, nil)
}

// close cleans up pooled resources
func (cm *compressionManager) close() {
	if enc, ok := cm.encoders.Get().(*zstd.Encoder); ok && enc != nil {
		enc.Close()
	}
	if dec, ok := cm.decoders.Get().(*zstd.Decoder); ok && dec != nil {
		dec.Close()
	}
}
