package server

import (
	"bytes"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

var _ connect.Codec = jsonCodec{}

// jsonCodec carries plain Go structs as JSON under the codec name "json",
// replacing connect's protobuf-only JSON codec.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Codec installs the JSON codec on handlers and clients.
func Codec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
