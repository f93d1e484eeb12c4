package u

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// CompressAlgo names a compression algorithm usable by the codec layer
type CompressAlgo string

const (
	AlgoZstd   CompressAlgo = "zstd"
	AlgoBrotli CompressAlgo = "br"
)

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// BrCompressData compresses d with brotli at a given level
func BrCompressData(d []byte, level int) ([]byte, error) {
	var dst bytes.Buffer
	w := brotli.NewWriterLevel(&dst, level)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func BrDecompressData(d []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(d))
	return io.ReadAll(r)
}

// records are small so we favor speed over ratio
func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func ZstdCompressData(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w, err := zstdNewWriter(&dst)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func ZstdDecompressData(d []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(d))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Compress compresses d with algo
func Compress(algo CompressAlgo, d []byte) ([]byte, error) {
	switch algo {
	case AlgoZstd:
		return ZstdCompressData(d)
	case AlgoBrotli:
		return BrCompressData(d, brotli.DefaultCompression)
	}
	return nil, fmt.Errorf("unknown compression algorithm '%s'", algo)
}

// Decompress reverses Compress
func Decompress(algo CompressAlgo, d []byte) ([]byte, error) {
	switch algo {
	case AlgoZstd:
		return ZstdDecompressData(d)
	case AlgoBrotli:
		return BrDecompressData(d)
	}
	return nil, fmt.Errorf("unknown compression algorithm '%s'", algo)
}
