package protocol

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Frame is one message on the wire: a registry tag and its CBOR payload.
type Frame struct {
	_       struct{} `cbor:",toarray"`
	Tag     Tag
	Payload []byte
}

var ErrEmptyFrame = errors.New("empty frame")

// Marshal encodes a payload without framing it.
func Marshal(payload any) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("trying to encode nil payload")
	}
	return cbor.Marshal(payload)
}

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal[T any](raw []byte) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, fmt.Errorf("empty payload for %T", out)
	}
	err := cbor.Unmarshal(raw, &out)
	return out, err
}

// Encode marshals payload and frames it under tag.
func Encode(tag Tag, payload any) ([]byte, error) {
	pb, err := Marshal(payload)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(tag, pb)
}

// EncodeFrame frames an already marshaled payload.
func EncodeFrame(tag Tag, payload []byte) ([]byte, error) {
	return cbor.Marshal(Frame{Tag: tag, Payload: payload})
}

func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	var f Frame
	if err := cbor.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func DecodePayload[T any](f Frame) (T, error) {
	out, err := Unmarshal[T](f.Payload)
	if err != nil {
		return out, fmt.Errorf("decode payload for tag %d: %w", f.Tag, err)
	}
	return out, nil
}
