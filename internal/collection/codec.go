package collection

import (
	"encoding/binary"
	"farmvault/pkg/domain"
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes values of one type under a declared maximum size.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
	MaxSize() int
}

// KeyCodec encodes collection keys.
type KeyCodec[K any] interface {
	EncodeKey(K) ([]byte, error)
	DecodeKey([]byte) (K, error)
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Unknown fields are ignored and absent fields keep their zero value, so older
// and newer record layouts decode into each other.
func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Marshal encodes v with the record encoding used by every collection.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes data produced by Marshal.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

type cborCodec[V any] struct {
	name string
	max  int
}

// CBOR returns a self-describing codec for V bounded to max encoded bytes.
func CBOR[V any](name string, max int) Codec[V] {
	return cborCodec[V]{name: name, max: max}
}

func (c cborCodec[V]) MaxSize() int { return c.max }

func (c cborCodec[V]) Encode(v V) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	if len(data) > c.max {
		return nil, &domain.EncodingOverflowError{Type: c.name, Size: len(data), Max: c.max}
	}
	return data, nil
}

func (c cborCodec[V]) Decode(data []byte) (V, error) {
	var v V
	if err := decMode.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", c.name, err)
	}
	return v, nil
}

type bytesCodec struct {
	name string
	max  int
}

// Bytes returns a pass-through codec for opaque blobs of at most max bytes.
func Bytes(name string, max int) Codec[[]byte] {
	return bytesCodec{name: name, max: max}
}

func (c bytesCodec) MaxSize() int { return c.max }

func (c bytesCodec) Encode(v []byte) ([]byte, error) {
	if len(v) > c.max {
		return nil, &domain.EncodingOverflowError{Type: c.name, Size: len(v), Max: c.max}
	}
	return append([]byte(nil), v...), nil
}

func (c bytesCodec) Decode(data []byte) ([]byte, error) {
	return append([]byte{}, data...), nil
}

// Uint64Keys encodes numeric ids big-endian so byte order matches numeric order.
type Uint64Keys struct{}

func (Uint64Keys) EncodeKey(k uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, k), nil
}

func (Uint64Keys) DecodeKey(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("uint64 key has %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// StringKeys encodes UTF-8 keys of at most Max bytes.
type StringKeys struct {
	Name string
	Max  int
}

func (s StringKeys) EncodeKey(k string) ([]byte, error) {
	if s.Max > 0 && len(k) > s.Max {
		return nil, &domain.EncodingOverflowError{Type: s.Name, Size: len(k), Max: s.Max}
	}
	if !utf8.ValidString(k) {
		return nil, fmt.Errorf("%s key is not valid UTF-8", s.Name)
	}
	return []byte(k), nil
}

func (s StringKeys) DecodeKey(b []byte) (string, error) { return string(b), nil }
