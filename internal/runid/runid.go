// Package runid converts between internal numeric run keys and the encoded
// identifiers exposed in URLs and API payloads.
package runid

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidIdentifier is returned when an encoded run id is malformed.
var ErrInvalidIdentifier = errors.New("invalid run identifier")

// maxEncodedLen is the length of the largest int64 in base58.
const maxEncodedLen = 11

// Encode renders a positive run key as base58 of its big-endian bytes,
// without leading zero bytes.
func Encode(id int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id)) // #nosec G115 - keys are positive
	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	return base58.Encode(buf[i:])
}

// Decode parses an encoded run id. Only canonical encodings of positive keys
// are accepted, so every key has exactly one external form.
func Decode(s string) (int64, error) {
	if s == "" || len(s) > maxEncodedLen {
		return 0, fmt.Errorf("%w: bad length", ErrInvalidIdentifier)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	if len(raw) == 0 || len(raw) > 8 {
		return 0, fmt.Errorf("%w: bad length", ErrInvalidIdentifier)
	}

	var buf [8]byte
	copy(buf[8-len(raw):], raw)
	u := binary.BigEndian.Uint64(buf[:])
	if u == 0 || u > 1<<63-1 {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidIdentifier)
	}

	id := int64(u) // #nosec G115 - bounded by explicit check
	if Encode(id) != s {
		return 0, fmt.Errorf("%w: non-canonical", ErrInvalidIdentifier)
	}

	return id, nil
}
