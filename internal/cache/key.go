package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// OrgIDParam must be present in every Params so cached entries never cross
// tenants.
const OrgIDParam = "orgId"

// ErrInvalidParams is returned by Key for params that cannot form a key.
var ErrInvalidParams = errors.New("invalid cache params")

// Params are the inputs of a cached operation. Values must be primitives:
// string, bool, integer and float kinds, or nil.
type Params map[string]any

// Key derives the cache key for op and params. Identical (op, params) pairs
// always produce the same key regardless of map iteration order.
func Key(op string, params Params) (string, error) {
	if op == "" {
		return "", fmt.Errorf("%w: empty op", ErrInvalidParams)
	}

	if orgID, ok := params[OrgIDParam].(string); !ok || orgID == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParams, OrgIDParam)
	}

	var buf bytes.Buffer
	for _, k := range slices.Sorted(maps.Keys(params)) {
		v := params[k]
		if !isPrimitive(v) {
			return "", fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidParams, k, v)
		}

		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidParams, k, err)
		}

		// length-prefixed so "a"+"bc" and "ab"+"c" differ
		fmt.Fprintf(&buf, "%d:%s=%d:%s;", len(k), k, len(encoded), encoded)
	}

	sum := sha256.Sum256(buf.Bytes())
	return op + ":" + hex.EncodeToString(sum[:]), nil
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
