package compressor

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
)

// ContentEncoding is an HTTP content coding.
type ContentEncoding int

const (
	ContentEncodingGzip    ContentEncoding = 0
	ContentEncodingDeflate ContentEncoding = 1
	ContentEncodingBrotli  ContentEncoding = 2
	ContentEncodingPlain   ContentEncoding = 3
)

var (
	ErrUnknownContentEncoding = errors.New("[HELLO-ADD] unknown content encoding")
)

// String returns the Content-Encoding token, empty for plain.
func (e ContentEncoding) String() string {
	switch e {
	case ContentEncodingGzip:
		return "gzip"
	case ContentEncodingDeflate:
		return "deflate"
	case ContentEncodingBrotli:
		return "br"
	default:
		return ""
	}
}

// preference order when the client accepts several codings with equal weight.
var preferred = []ContentEncoding{ContentEncodingBrotli, ContentEncodingGzip, ContentEncodingDeflate}

// Negotiate picks the coding for a response from an Accept-Encoding header value.
// Codings with q=0 are refused; "*" stands for any coding not listed explicitly.
// ContentEncodingPlain is returned when nothing acceptable is offered.
func Negotiate(acceptEncoding string) ContentEncoding {
	if strings.TrimSpace(acceptEncoding) == "" {
		return ContentEncodingPlain
	}

	weights := make(map[string]float64)
	for _, part := range strings.Split(acceptEncoding, ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		q := 1.0
		if k, v, ok := strings.Cut(strings.TrimSpace(params), "="); ok && strings.TrimSpace(k) == "q" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				q = f
			}
		}
		weights[token] = q
	}

	best, bestQ := ContentEncodingPlain, 0.0
	for _, enc := range preferred {
		q, ok := weights[enc.String()]
		if !ok {
			q, ok = weights["*"]
		}
		if ok && q > bestQ {
			best, bestQ = enc, q
		}
	}
	return best
}

// CompressorManager pools the readers, writers and buffers used for (de)compression.
// It is safe for concurrent use.
type CompressorManager struct {
	byteReaderPool   sync.Pool
	bufferPool       sync.Pool
	gzipWriterPool   sync.Pool
	zlibWriterPool   sync.Pool
	brotliWriterPool sync.Pool
}

func NewCompressorManager() *CompressorManager {
	return &CompressorManager{
		byteReaderPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewReader(nil)
			},
		},
		gzipWriterPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		zlibWriterPool: sync.Pool{
			New: func() interface{} {
				return zlib.NewWriter(nil)
			},
		},
		brotliWriterPool: sync.Pool{
			New: func() interface{} {
				return brotli.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

func (c *CompressorManager) Compress(tp ContentEncoding, data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	switch tp {
	case ContentEncodingGzip:
		return c.GzipCompress(data)
	case ContentEncodingDeflate:
		return c.ZlibCompress(data)
	case ContentEncodingBrotli:
		return c.BrotliCompress(data)
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

func (c *CompressorManager) Decompress(tp ContentEncoding, data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	switch tp {
	case ContentEncodingGzip:
		return c.GzipDecompress(data)
	case ContentEncodingDeflate:
		return c.ZlibDecompress(data)
	case ContentEncodingBrotli:
		return c.BrotliDecompress(data)
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

func (c *CompressorManager) GzipDecompress(data []byte) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	reader, err := gzip.NewReader(byteReader)
	if err != nil {
		return nil, errors.Wrap(err, "gzip reader")
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func (c *CompressorManager) GzipCompress(data []byte) ([]byte, error) {
	w := c.gzipWriterPool.Get().(*gzip.Writer)
	defer c.gzipWriterPool.Put(w)

	return c.compress(w, w.Reset, data)
}

func (c *CompressorManager) ZlibDecompress(data []byte) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	reader, err := zlib.NewReader(byteReader)
	if err != nil {
		return nil, errors.Wrap(err, "zlib reader")
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func (c *CompressorManager) ZlibCompress(data []byte) ([]byte, error) {
	w := c.zlibWriterPool.Get().(*zlib.Writer)
	defer c.zlibWriterPool.Put(w)

	return c.compress(w, w.Reset, data)
}

func (c *CompressorManager) BrotliDecompress(data []byte) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	return io.ReadAll(brotli.NewReader(byteReader))
}

func (c *CompressorManager) BrotliCompress(data []byte) ([]byte, error) {
	w := c.brotliWriterPool.Get().(*brotli.Writer)
	defer c.brotliWriterPool.Put(w)

	return c.compress(w, w.Reset, data)
}

// compress runs data through a pooled writer. The result is copied out of the
// pooled buffer before the buffer goes back to the pool.
func (c *CompressorManager) compress(w io.WriteCloser, reset func(io.Writer), data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	defer c.bufferPool.Put(buf)

	buf.Reset()
	reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "compress write")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compress close")
	}
	return bytes.Clone(buf.Bytes()), nil
}
