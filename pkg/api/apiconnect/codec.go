// Package apiconnect wires the settleup.v1 services into Connect handlers and
// clients. Messages are plain Go structs carried by a JSON codec.
package apiconnect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// JSONCodec marshals messages with encoding/json. It is registered under
// the name "json", so Connect serves it as application/json.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
