package billing

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// wireMessage is a message with a hand-written protobuf encoding.
type wireMessage interface {
	appendWire(b []byte) []byte
	consumeWire(b []byte) error
}

// protoCodec speaks the protobuf wire format for the billing messages so the
// client interoperates with any billing_service.proto implementation. It is
// installed per call and per server rather than registered globally.
type protoCodec struct{}

func (protoCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("billing codec: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (protoCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("billing codec: cannot unmarshal into %T", v)
	}
	return m.consumeWire(data)
}

// Name is sent as the content-subtype, giving "application/grpc+proto".
func (protoCodec) Name() string {
	return "proto"
}

// appendString writes a proto3 string field, omitting the empty default.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// consumeFields walks every field in b, handing string fields to set and
// skipping anything else so newer peers can add fields.
func consumeFields(b []byte, set func(num protowire.Number, v string)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("billing codec: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("billing codec: field %d: %w", num, protowire.ParseError(n))
			}
			set(num, v)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return fmt.Errorf("billing codec: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
