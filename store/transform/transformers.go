package transform

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"context"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// LZW is a Transformer implementing lzw compression.
type LZW struct {
	Order lzw.Order
}

// In implements Transformer.In.
func (l LZW) In(_ context.Context, inp []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := lzw.NewWriter(buf, l.Order, 8)
	if _, err := w.Write(inp); err != nil {
		return nil, err
	}
	err := w.Close()
	return buf.Bytes(), err
}

// Out implements Transformer.Out.
func (l LZW) Out(_ context.Context, inp []byte) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(inp), l.Order, 8)
	defer r.Close()
	return io.ReadAll(r)
}

// Flate is a Transformer implementing RFC1951 DEFLATE compression.
type Flate struct {
	Level int
}

// In implements Transformer.In.
func (f Flate) In(_ context.Context, inp []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	level := f.Level
	if level < -2 || level > 9 {
		level = -1
	}
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(inp); err != nil {
		return nil, err
	}
	err = w.Close()
	return buf.Bytes(), err
}

// Out implements Transformer.Out.
func (f Flate) Out(_ context.Context, inp []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(inp))
	defer r.Close()
	return io.ReadAll(r)
}

// Zstd is a Transformer implementing Zstandard compression.
// Level is a zstd compression level from 1 to 22;
// 0 means the encoder's default.
type Zstd struct {
	Level int
}

// In implements Transformer.In.
func (z Zstd) In(_ context.Context, inp []byte) ([]byte, error) {
	var opts []zstd.EOption
	if z.Level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(z.Level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(inp, nil), nil
}

// Out implements Transformer.Out.
func (z Zstd) Out(_ context.Context, inp []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(inp, nil)
}

// LZ4 is a Transformer implementing LZ4 frame compression.
type LZ4 struct{}

// In implements Transformer.In.
func (LZ4) In(_ context.Context, inp []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := lz4.NewWriter(buf)
	if _, err := w.Write(inp); err != nil {
		return nil, err
	}
	err := w.Close()
	return buf.Bytes(), err
}

// Out implements Transformer.Out.
func (LZ4) Out(_ context.Context, inp []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(inp)))
}
