// Package xxh implements content validation (§4.1): xxHash64 digests,
// the base-64 wire encoding, and a streaming/in-memory validator with a
// pooled-buffer strategy for large files. xxHash64 (seed 0) is the only
// content hash this module ever computes.
package xxh

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Encode renders a 64-bit xxHash digest as base-64 of its little-endian
// 8-byte encoding -- the external wire format named in §6.
func Encode(digest uint64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], digest)
	return base64.StdEncoding.EncodeToString(b[:])
}

// Decode reverses Encode. It errors if s doesn't decode to exactly 8 bytes.
func Decode(s string) (uint64, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, errDigestLength(len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

type errDigestLength int

func (e errDigestLength) Error() string {
	return fmt.Sprintf("xxh: decoded digest must be exactly 8 bytes, got %d", int(e))
}

// Sum64 hashes b in one shot and returns the raw digest.
func Sum64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// EncodeBytes hashes b and returns the base-64 wire form directly.
func EncodeBytes(b []byte) string {
	return Encode(Sum64(b))
}

// NewDigest returns a fresh streaming hasher (seed 0, matching
// cespare/xxhash/v2's fixed-seed implementation of xxHash64).
func NewDigest() *xxhash.Digest {
	return xxhash.New()
}
