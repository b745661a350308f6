package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Compression algorithm identifiers accepted for request and response bodies.
const (
	CompressionNone    = "none"
	CompressionGzip    = "gzip"
	CompressionDeflate = "deflate"
)

// ValidateAlgorithm accepts "", "none", "gzip" and "deflate".
func ValidateAlgorithm(alg string) error {
	switch normalize(alg) {
	case "", CompressionNone, CompressionGzip, CompressionDeflate:
		return nil
	}
	return fmt.Errorf("unsupported compression algorithm %q", alg)
}

// AcceptEncoding returns the Accept-Encoding value for a requested response
// compression, or "" when none was requested.
func AcceptEncoding(alg string) string {
	switch a := normalize(alg); a {
	case CompressionGzip, CompressionDeflate:
		return a
	}
	return ""
}

// Compress encodes b with alg and returns the Content-Encoding to send.
// "deflate" produces the zlib format HTTP servers expect.
func Compress(alg string, b []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch a := normalize(alg); a {
	case "", CompressionNone:
		return b, "", nil
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionDeflate:
		w = zlib.NewWriter(&buf)
	default:
		return nil, "", fmt.Errorf("unsupported compression algorithm %q", alg)
	}
	if _, err := w.Write(b); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), normalize(alg), nil
}

// ErrBodyTooLarge is returned when a body, before or after decompression,
// exceeds the caller's limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadLimited reads r to EOF but fails with ErrBodyTooLarge past limit
// bytes. A limit <= 0 reads without bound.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return b, nil
}

// Decompress decodes a body according to its Content-Encoding. Deflate
// bodies are accepted in both zlib and raw form. The decoded size is
// capped at limit bytes; limit <= 0 means no cap.
func Decompress(encoding string, b []byte, limit int64) ([]byte, error) {
	switch enc := normalize(encoding); enc {
	case "", "identity":
		if limit > 0 && int64(len(b)) > limit {
			return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
		}
		return b, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer r.Close()
		return ReadLimited(r, limit)
	case CompressionDeflate:
		if r, err := zlib.NewReader(bytes.NewReader(b)); err == nil {
			defer r.Close()
			return ReadLimited(r, limit)
		}
		r := flate.NewReader(bytes.NewReader(b))
		defer r.Close()
		return ReadLimited(r, limit)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
