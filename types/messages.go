package types

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrEmptyMessage = errors.New("message has no variant set")

// IntentMessage asks a node to gossip Intent on Topic.
type IntentMessage struct {
	Intent *Intent
	Topic  string
}

// SubscribeTopicMessage asks a node to join Topic.
type SubscribeTopicMessage struct {
	Topic string
}

// DkgMessage is a distributed key generation message. It is relayed
// unchanged.
type DkgMessage struct {
	Data string
}

// RPCMessage is the tagged union accepted by the intent RPC endpoint.
// Exactly one variant is set.
type RPCMessage struct {
	Intent    *IntentMessage
	Subscribe *SubscribeTopicMessage
	Dkg       *DkgMessage
}

func (m *IntentMessage) Marshal() []byte {
	var b []byte
	if m.Intent != nil {
		b = appendMessageField(b, 1, m.Intent.Marshal())
	}
	return appendStringField(b, 2, m.Topic)
}

func (m *IntentMessage) Unmarshal(bz []byte) error {
	*m = IntentMessage{}
	err := walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		switch num {
		case 1:
			in, err := DecodeIntent(val)
			if err != nil {
				return err
			}
			m.Intent = in
		case 2:
			m.Topic = string(val)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if m.Intent == nil {
		return errors.New("intent message without intent")
	}
	return nil
}

func (m *SubscribeTopicMessage) Marshal() []byte {
	return appendStringField(nil, 1, m.Topic)
}

func (m *SubscribeTopicMessage) Unmarshal(bz []byte) error {
	*m = SubscribeTopicMessage{}
	return walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		if num == 1 {
			m.Topic = string(val)
		}
		return nil
	})
}

func (m *DkgMessage) Marshal() []byte {
	return appendStringField(nil, 1, m.Data)
}

func (m *DkgMessage) Unmarshal(bz []byte) error {
	*m = DkgMessage{}
	return walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		if num == 1 {
			m.Data = string(val)
		}
		return nil
	})
}

// Marshal encodes the set variant. Variants that are not set are omitted.
func (m *RPCMessage) Marshal() []byte {
	var b []byte
	switch {
	case m.Intent != nil:
		b = appendMessageField(b, 1, m.Intent.Marshal())
	case m.Subscribe != nil:
		b = appendMessageField(b, 2, m.Subscribe.Marshal())
	case m.Dkg != nil:
		b = appendMessageField(b, 3, m.Dkg.Marshal())
	}
	return b
}

// Unmarshal decodes an RPCMessage. A later variant overrides an earlier
// one, as with protobuf oneof fields.
func (m *RPCMessage) Unmarshal(bz []byte) error {
	*m = RPCMessage{}
	err := walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		switch num {
		case 1:
			msg := new(IntentMessage)
			if err := msg.Unmarshal(val); err != nil {
				return err
			}
			*m = RPCMessage{Intent: msg}
		case 2:
			msg := new(SubscribeTopicMessage)
			if err := msg.Unmarshal(val); err != nil {
				return err
			}
			*m = RPCMessage{Subscribe: msg}
		case 3:
			msg := new(DkgMessage)
			if err := msg.Unmarshal(val); err != nil {
				return err
			}
			*m = RPCMessage{Dkg: msg}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("decoding rpc message: %w", err)
	}
	if m.Intent == nil && m.Subscribe == nil && m.Dkg == nil {
		return ErrEmptyMessage
	}
	return nil
}

// RPCResponse carries an opaque status string back to the RPC client.
type RPCResponse struct {
	Result string
}

func (r *RPCResponse) Marshal() []byte { return appendStringField(nil, 1, r.Result) }

func (r *RPCResponse) Unmarshal(bz []byte) error {
	*r = RPCResponse{}
	return walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		if num == 1 {
			r.Result = string(val)
		}
		return nil
	})
}

// GossipMessage is the payload exchanged between peers on a topic.
type GossipMessage struct {
	Intent *Intent
}

func (g *GossipMessage) Marshal() []byte {
	if g.Intent == nil {
		return nil
	}
	return appendMessageField(nil, 1, g.Intent.Marshal())
}

func (g *GossipMessage) Unmarshal(bz []byte) error {
	*g = GossipMessage{}
	err := walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		if num == 1 {
			in, err := DecodeIntent(val)
			if err != nil {
				return err
			}
			g.Intent = in
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("decoding gossip message: %w", err)
	}
	if g.Intent == nil {
		return ErrEmptyMessage
	}
	return nil
}

// TxRequest submits a wire encoded transaction.
type TxRequest struct {
	Tx Tx
}

func (r *TxRequest) Marshal() []byte { return appendBytesField(nil, 1, r.Tx) }

func (r *TxRequest) Unmarshal(bz []byte) error {
	*r = TxRequest{}
	return walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		if num == 1 {
			r.Tx = append(Tx(nil), val...)
		}
		return nil
	})
}

// TxResponse reports the outcome of a submitted transaction.
type TxResponse struct {
	Code   uint32
	Log    string
	Height int64
	Hash   []byte
}

func (r *TxResponse) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(r.Code))
	b = appendStringField(b, 2, r.Log)
	b = appendVarintField(b, 3, uint64(r.Height))
	return appendBytesField(b, 4, r.Hash)
}

func (r *TxResponse) Unmarshal(bz []byte) error {
	*r = TxResponse{}
	return walkFields(bz, func(num protowire.Number, _ protowire.Type, val []byte, v uint64) error {
		switch num {
		case 1:
			r.Code = uint32(v)
		case 2:
			r.Log = string(val)
		case 3:
			r.Height = int64(v)
		case 4:
			r.Hash = append([]byte(nil), val...)
		}
		return nil
	})
}
