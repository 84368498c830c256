package stablemem

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec is the serialization contract of one record type: a fixed
// encode/decode pair and the largest encoding the store reserves room for.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
	MaxSize() int
}

// CBORCodec encodes records as canonical CBOR.
type CBORCodec[V any] struct {
	maxSize int
	enc     cbor.EncMode
	dec     cbor.DecMode
}

// NewCBORCodec builds a codec that refuses encodings longer than maxSize bytes.
func NewCBORCodec[V any](maxSize int) (CBORCodec[V], error) {
	if maxSize <= 0 {
		return CBORCodec[V]{}, fmt.Errorf("stablemem: max size must be positive, got %d", maxSize)
	}
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return CBORCodec[V]{}, err
	}
	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 1024,
	}.DecMode()
	if err != nil {
		return CBORCodec[V]{}, err
	}
	return CBORCodec[V]{maxSize: maxSize, enc: enc, dec: dec}, nil
}

// MustCBORCodec is NewCBORCodec for package-level codec declarations.
func MustCBORCodec[V any](maxSize int) CBORCodec[V] {
	c, err := NewCBORCodec[V](maxSize)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBORCodec[V]) Encode(v V) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("stablemem: encode: %w", err)
	}
	if len(data) > c.maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrRecordTooLarge, len(data), c.maxSize)
	}
	return data, nil
}

func (c CBORCodec[V]) Decode(data []byte) (V, error) {
	var v V
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("stablemem: decode: %w", err)
	}
	return v, nil
}

func (c CBORCodec[V]) MaxSize() int { return c.maxSize }
