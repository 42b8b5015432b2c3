package rpc

import (
	"fmt"
)

// CodecName is the gRPC content subtype of intentd messages.
const CodecName = "intentd"

type marshaler interface {
	Marshal() []byte
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

// codec encodes messages with their own protobuf wire methods, so the
// message types need no generated code.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(marshaler)
	if !ok {
		return nil, fmt.Errorf("rpc: cannot marshal %T", v)
	}
	return m.Marshal(), nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(unmarshaler)
	if !ok {
		return fmt.Errorf("rpc: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (codec) Name() string { return CodecName }
