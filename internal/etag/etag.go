// Package etag computes content hashes in the object store's native format,
// so local files can be compared with remote objects without downloading them.
//
// Content of at most BlockSize bytes hashes to 0x16 || SHA1(content).
// Larger content is split into BlockSize blocks and hashes to
// 0x96 || SHA1(SHA1(block0) || SHA1(block1) || ...). Both forms are
// encoded with URL-safe base64, padding kept.
package etag

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// BlockSize is the block size of the chunked hashing mode (4 MiB).
const BlockSize = 4 * 1024 * 1024

const (
	singlePrefix  byte = 0x16
	chunkedPrefix byte = 0x96
)

// Sum returns the hash of data.
func Sum(data []byte) string {
	h, _ := Compute(bytes.NewReader(data))
	return h
}

// Compute reads r to EOF and returns its hash.
// Only one block is held in memory at a time.
func Compute(r io.Reader) (string, error) {
	buf := make([]byte, BlockSize)
	var digests []byte
	blocks := 0

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 || blocks == 0 {
			sum := sha1.Sum(buf[:n])
			digests = append(digests, sum[:]...)
			blocks++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading content: %w", err)
		}
	}

	if blocks == 1 {
		return encode(singlePrefix, digests), nil
	}
	sum := sha1.Sum(digests)
	return encode(chunkedPrefix, sum[:]), nil
}

func encode(prefix byte, digest []byte) string {
	out := make([]byte, 0, len(digest)+1)
	out = append(out, prefix)
	out = append(out, digest...)
	return base64.URLEncoding.EncodeToString(out)
}
