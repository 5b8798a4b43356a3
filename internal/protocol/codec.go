package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEncode is wrapped by every encoding failure. Internally built messages
// always encode, so seeing it indicates a bug rather than a peer fault.
var ErrEncode = errors.New("encode error")

// DecodeClient parses a client→server envelope.
//
// Postcondition: Returns a validated message, or an error wrapping ErrMalformed.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := decodeStrict(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	if err := msg.Validate(); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

// EncodeClient serializes a client→server envelope.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncode, msg.Type, err)
	}
	return data, nil
}

// DecodeServer parses a server→client envelope.
//
// Postcondition: Returns a validated message, or an error wrapping ErrMalformed.
func DecodeServer(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := decodeStrict(data, &msg); err != nil {
		return ServerMessage{}, err
	}
	if err := msg.Validate(); err != nil {
		return ServerMessage{}, err
	}
	return msg, nil
}

// EncodeServer serializes a server→client envelope.
//
// Postcondition: A non-nil error means msg held a payload that is not valid JSON.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncode, msg.Type, err)
	}
	return data, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after envelope", ErrMalformed)
	}
	return nil
}
