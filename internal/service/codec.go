package service

import (
	"encoding/json"
	"fmt"
)

// jsonCodec lets Connect carry the plain Go request and response structs.
// It registers under "json", so it replaces Connect's protobuf JSON codec
// and serves application/json (and application/connect+json) requests.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
