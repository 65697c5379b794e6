package media

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/zipstage/errors"
)

// envelopeVersion is bumped on incompatible changes to Envelope.
const envelopeVersion = 1

// Envelope is the wire form of a buffer sent to or from an endpoint.
type Envelope struct {
	Version  int     `msgpack:"v"`
	Stage    string  `msgpack:"stage,omitempty"`
	Endpoint string  `msgpack:"endpoint,omitempty"`
	Buffer   *Buffer `msgpack:"buffer"`
}

// Encode serializes a buffer with the endpoint it belongs to.
func Encode(stage, endpoint string, b *Buffer) ([]byte, error) {
	if b == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil buffer"), "media", "Encode", "buffer check")
	}
	data, err := msgpack.Marshal(&Envelope{Version: envelopeVersion, Stage: stage, Endpoint: endpoint, Buffer: b})
	if err != nil {
		return nil, errors.WrapInvalid(err, "media", "Encode", "msgpack marshal")
	}
	return data, nil
}

// Decode parses an envelope. Payloads that are not a msgpack envelope are
// treated as raw data so plain publishers can feed a stage.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil || env.Version == 0 || env.Buffer == nil {
		return &Envelope{Buffer: FromBytes(append([]byte(nil), data...))}, nil
	}
	if env.Version > envelopeVersion {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: envelope version %d", errors.ErrInvalidData, env.Version),
			"media", "Decode", "version check")
	}
	return &env, nil
}
