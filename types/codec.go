package types

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMissingTimestamp is returned when a decoded message carries no timestamp.
var ErrMissingTimestamp = errors.New("missing timestamp")

type fieldVisitor func(num protowire.Number, typ protowire.Type, bz []byte, v uint64) error

// walkFields iterates over the fields of a protobuf encoded message. Length
// delimited values are passed in bz, varints in v. Unknown wire types are
// skipped.
func walkFields(bz []byte, visit fieldVisitor) error {
	for len(bz) > 0 {
		num, typ, n := protowire.ConsumeTag(bz)
		if n < 0 {
			return protowire.ParseError(n)
		}
		bz = bz[n:]

		var (
			val []byte
			v   uint64
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(bz)
		case protowire.BytesType:
			val, n = protowire.ConsumeBytes(bz)
		default:
			n = protowire.ConsumeFieldValue(num, typ, bz)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		bz = bz[n:]

		if err := visit(num, typ, val, v); err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
	}
	return nil
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// marshalTimestamp encodes t as a google.protobuf.Timestamp.
func marshalTimestamp(t time.Time) []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(t.Unix()))
	b = appendVarintField(b, 2, uint64(t.Nanosecond()))
	return b
}

func unmarshalTimestamp(bz []byte) (time.Time, error) {
	var secs, nanos int64
	err := walkFields(bz, func(num protowire.Number, typ protowire.Type, _ []byte, v uint64) error {
		switch num {
		case 1:
			secs = int64(v)
		case 2:
			nanos = int64(v)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	if nanos < 0 || nanos >= int64(time.Second) {
		return time.Time{}, fmt.Errorf("timestamp nanos %d out of range", nanos)
	}
	return time.Unix(secs, nanos).UTC(), nil
}

func expectType(typ, want protowire.Type) error {
	if typ != want {
		return fmt.Errorf("unexpected wire type %d", typ)
	}
	return nil
}
