package compression

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec names a stream compression algorithm.
type Codec string

const (
	None  Codec = "none"
	Gzip  Codec = "gzip"
	Xz    Codec = "xz"
	Zstd  Codec = "zstd"
	Lz4   Codec = "lz4"
	Bzip2 Codec = "bzip2"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewWriter wraps w with an encoder for codec. Closing the returned writer
// flushes the encoder but does not close w. Output is deterministic for
// identical input.
func NewWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case Xz:
		return xz.NewWriter(w)
	case Zstd:
		return zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
	case Lz4:
		return lz4.NewWriter(w), nil
	case Bzip2:
		return nil, fmt.Errorf("compression type %s is read-only", codec)
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", codec)
	}
}

// NewReader wraps r with a decoder for codec.
func NewReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case Zstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{zr}, nil
	case Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", codec)
	}
}
