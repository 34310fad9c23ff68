// Package codec serializes cached values. A Codec must round-trip: Decode of
// Encode(v) yields a value equal to v for everything the cache stores.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
