// Package snapshot turns stored snapshot objects back into UTF-8 markup.
//
// Profile pages are captured as gzip-compressed HTML named after their
// platform ("<report>/raw/leetcode.gz"). Decoding is deliberately
// forgiving about the container: uncompressed objects pass through, and
// the charset is sniffed from the content rather than trusted to be UTF-8.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// gzipMagic is the two-byte member header of RFC 1952.
var gzipMagic = []byte{0x1f, 0x8b}

// Decode returns the UTF-8 markup held in raw. Objects carrying the gzip
// magic are inflated first; a corrupt stream is an error. The character
// set is then detected from the bytes (BOM, <meta charset>, fallback
// sniffing) and converted to UTF-8. Plain UTF-8 input comes back as is.
func Decode(raw []byte) (string, error) {
	if bytes.HasPrefix(raw, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("gunzip: %w", err)
		}
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return "", fmt.Errorf("gunzip: %w", err)
		}
		if err := zr.Close(); err != nil {
			return "", fmt.Errorf("gunzip: %w", err)
		}
		raw = inflated
	}

	enc, _, _ := charset.DetermineEncoding(raw, "text/html")
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	return string(decoded), nil
}

// IsGzip reports whether raw starts with the gzip member header.
func IsGzip(raw []byte) bool {
	return bytes.HasPrefix(raw, gzipMagic)
}

// IsSnapshotKey reports whether key names a raw snapshot object.
func IsSnapshotKey(key string) bool {
	return strings.HasSuffix(key, ".gz")
}

// PlatformFromKey derives the platform id from a snapshot key: the base
// name minus its .gz suffix, lower-cased. "r1/raw/LeetCode.gz" yields
// "leetcode".
func PlatformFromKey(key string) string {
	name := strings.TrimSuffix(path.Base(key), ".gz")
	return strings.ToLower(name)
}
