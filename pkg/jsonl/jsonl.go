// Package jsonl encodes records as gzip-compressed JSON Lines.
package jsonl

import (
	"bytes"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

var (
	bufferPool = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, 64*1024)) },
	}
	gzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// maxPooledBuffer keeps one oversized batch from pinning memory.
const maxPooledBuffer = 1 << 20

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= maxPooledBuffer {
		bufferPool.Put(buf)
	}
}

// EncodeGzip writes one JSON document per line into a gzip stream.
func EncodeGzip[T any](records []T) ([]byte, error) {
	return compress(func(gz *gzip.Writer) error {
		enc := json.NewEncoder(gz)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Gzip compresses data.
func Gzip(data []byte) ([]byte, error) {
	return compress(func(gz *gzip.Writer) error {
		_, err := gz.Write(data)
		return err
	})
}

func compress(write func(*gzip.Writer) error) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer putBuffer(buf)

	gz := gzipPool.Get().(*gzip.Writer)
	defer gzipPool.Put(gz)
	gz.Reset(buf)

	if err := write(gz); err != nil {
		_ = gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
