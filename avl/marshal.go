package avl

import (
	"bytes"
	"encoding/binary"
	"fmt"

	cbg "github.com/whyrusleeping/cbor-gen"
)

// Writer encodes keys or values for hashing and storage. Encodings must be deterministic.
type Writer[T any] interface {
	Marshal(v T) ([]byte, error)
}

type Reader[T any] interface {
	Unmarshal(b []byte) (T, error)
}

type Marshaller[T any] interface {
	Writer[T]
	Reader[T]
}

// BytesMarshaller passes byte slices through unchanged.
type BytesMarshaller struct{}

func (BytesMarshaller) Marshal(v []byte) ([]byte, error) {
	return v, nil
}

func (BytesMarshaller) Unmarshal(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

type StringMarshaller struct{}

func (StringMarshaller) Marshal(v string) ([]byte, error) {
	return []byte(v), nil
}

func (StringMarshaller) Unmarshal(b []byte) (string, error) {
	return string(b), nil
}

// Uint64Marshaller encodes big-endian, so byte order matches numeric order.
type Uint64Marshaller struct{}

func (Uint64Marshaller) Marshal(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, v), nil
}

func (Uint64Marshaller) Unmarshal(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("uint64 must be 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// CBORMarshaller encodes any type with cbor-gen style MarshalCBOR/UnmarshalCBOR methods. PT is the pointer type, eg CBORMarshaller[Account, *Account].
type CBORMarshaller[T any, PT interface {
	*T
	cbg.CBORMarshaler
	cbg.CBORUnmarshaler
}] struct{}

func (CBORMarshaller[T, PT]) Marshal(v T) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := PT(&v).MarshalCBOR(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (CBORMarshaller[T, PT]) Unmarshal(b []byte) (T, error) {
	var v T
	r := bytes.NewReader(b)
	if err := PT(&v).UnmarshalCBOR(r); err != nil {
		return v, err
	}
	if r.Len() != 0 {
		return v, fmt.Errorf("%d trailing bytes after CBOR value", r.Len())
	}
	return v, nil
}
