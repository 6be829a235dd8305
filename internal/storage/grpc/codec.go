package grpcstorage

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is registered as the gRPC content subtype ("application/grpc+json").
const CodecName = "json"

// Codec marshals store messages as JSON. Both ends of the store stream must use it.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return CodecName
}

// ServerCodec is the server option that makes a grpc.Server speak this codec.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec{})
}
