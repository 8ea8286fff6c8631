// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package grpc

import (
	"encoding/json"

	"github.com/samber/oops"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype the auth service speaks.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the plain request and response structs as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, oops.Code("GRPC_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return oops.Code("GRPC_UNMARSHAL_FAILED").Wrap(err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return CodecName
}
