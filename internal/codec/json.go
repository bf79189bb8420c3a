// Package codec provides message payload (de)serialization. JSON is the
// only framing provided, line-delimited-free since payloads are stored
// as whole bytea values rather than streamed -- the one-shot analogue of
// the teacher's line-delimited JSONFraming.
package codec

import "encoding/json"

// Marshal encodes v as the bytes a reactor stores in a NewMessage's
// Payload or Metadata field.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes a Message's Payload or Metadata into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// MustMarshal is Marshal, panicking on error. Useful for reactors
// constructing NewMessages from known-good Go values.
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
