package postgres

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
)

var errChecksumMismatch = errors.New("cache payload checksum mismatch")

// encoder and decoder are safe for concurrent EncodeAll/DecodeAll use.
var (
	payloadEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	payloadDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// encodePayload compresses a cache value and computes the CRC64-NVME
// checksum of the uncompressed bytes.
func encodePayload(value []byte) ([]byte, uint64) {
	return payloadEncoder.EncodeAll(value, nil), checksum(value)
}

// decodePayload reverses encodePayload, verifying the checksum.
func decodePayload(compressed []byte, sum uint64) ([]byte, error) {
	value, err := payloadDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cache payload: %w", err)
	}

	if checksum(value) != sum {
		return nil, errChecksumMismatch
	}

	return value, nil
}

func checksum(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}
