// Package api holds the wire contract of the wallet service: request and
// response types, the gRPC service description, a typed client and the
// mapping between domain errors and gRPC statuses.
//
// Messages travel as JSON through a gRPC codec registered under the name
// "json"; clients select it per call with CallContentSubtype.
package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
