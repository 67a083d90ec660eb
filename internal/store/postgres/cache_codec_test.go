package postgres

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestEncodePayload(t *testing.T) {
	value := []byte(`{"bins":[1,2,3],"counts":[4,5,6]}`)

	compressed, sum := encodePayload(value)
	require.NotEmpty(t, compressed)

	decoded, err := decodePayload(compressed, sum)
	require.NoError(t, err)
	require.Equal(t, value, decoded)

	_, err = decodePayload(compressed, sum+1)
	require.ErrorIs(t, err, errChecksumMismatch)

	_, err = decodePayload([]byte("not zstd"), sum)
	require.Error(t, err)
}

func TestEncodePayload_Property(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("decode inverts encode", prop.ForAll(
		func(s string) bool {
			compressed, sum := encodePayload([]byte(s))
			decoded, err := decodePayload(compressed, sum)
			return err == nil && bytes.Equal(decoded, []byte(s))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
