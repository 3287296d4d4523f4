package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct carries a JSON-tagged snapshot as a google.protobuf.Struct, so
// state, settings and push messages keep the field names the REST and
// WebSocket surfaces use.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "failed to convert message")
	}
	return s, nil
}

// fromStruct is the inverse of toStruct.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to convert message")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return nil
}
