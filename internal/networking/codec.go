package networking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns outbound envelopes into WebSocket frames and inbound frames into messages.
type Codec interface {
	Name() string
	// Binary reports whether frames must be sent as binary WebSocket messages.
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Envelope is the outer frame of every server to client message.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(codec Codec, messageType string, payload any) ([]byte, error) {
	if codec == nil {
		codec = JSON
	}
	data, err := codec.Marshal(Envelope{Type: messageType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s as %s: %w", messageType, codec.Name(), err)
	}
	return data, nil
}

var (
	// JSON is the default text codec.
	JSON Codec = jsonCodec{}
	// Msgpack encodes the same field names as JSON in MessagePack.
	Msgpack Codec = msgpackCodec{}
)

// CodecByName resolves the codec a client asked for. Unknown names fall back to JSON.
func CodecByName(name string) (Codec, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSON, true
	case CodecMsgpack, "msgpack5", "binary":
		return Msgpack, true
	default:
		return JSON, false
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return CodecMsgpack }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	//1.- Reuse the json tags so both codecs share one field naming and omitempty scheme.
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
