package avl

import (
	"bytes"
	"fmt"
	"io"

	cbg "github.com/whyrusleeping/cbor-gen"
)

// upper bound on any single byte field in a stored record
const maxRecordFieldLen = 8 << 20

// CBOR serialization struct for a stored tree node. Encoded as a fixed six element array (tuple), with minimal length headers, so the encoding is deterministic.
type nodeRecord struct {
	Key    []byte
	Value  []byte
	Left   []byte // content hash of the left subtree. empty for none
	Right  []byte // content hash of the right subtree. empty for none
	Height uint32
	Rank   uint64
}

func (nr *nodeRecord) MarshalCBOR(w io.Writer) error {
	cw := cbg.NewCborWriter(w)

	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 6); err != nil {
		return err
	}
	for _, field := range [][]byte{nr.Key, nr.Value, nr.Left, nr.Right} {
		if len(field) > maxRecordFieldLen {
			return fmt.Errorf("record field too long: %d bytes", len(field))
		}
		if err := cbg.WriteByteArray(cw, field); err != nil {
			return err
		}
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(nr.Height)); err != nil {
		return err
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, nr.Rank); err != nil {
		return err
	}
	return nil
}

func (nr *nodeRecord) UnmarshalCBOR(r io.Reader) error {
	cr := cbg.NewCborReader(r)

	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("node record: expected array, got major type %d", maj)
	}
	if extra != 6 {
		return fmt.Errorf("node record: expected 6 fields, got %d", extra)
	}

	for _, field := range []*[]byte{&nr.Key, &nr.Value, &nr.Left, &nr.Right} {
		b, err := cbg.ReadByteArray(cr, maxRecordFieldLen)
		if err != nil {
			return fmt.Errorf("node record: %w", err)
		}
		*field = b
	}

	maj, extra, err = cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajUnsignedInt {
		return fmt.Errorf("node record: height: expected unsigned int, got major type %d", maj)
	}
	if extra > uint64(^uint32(0)) {
		return fmt.Errorf("node record: height out of range: %d", extra)
	}
	nr.Height = uint32(extra)

	maj, extra, err = cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajUnsignedInt {
		return fmt.Errorf("node record: rank: expected unsigned int, got major type %d", maj)
	}
	nr.Rank = extra
	return nil
}

// Encodes a node as record bytes. The node's children must already be hashed.
func (ns *NodeStore[K, V]) encodeNode(n *Node[K, V]) ([]byte, error) {
	kb, err := ns.keys.Marshal(n.data.Key)
	if err != nil {
		return nil, fmt.Errorf("marshalling key: %w: %w", ErrEncoding, err)
	}
	vb, err := ns.values.Marshal(n.data.Value)
	if err != nil {
		return nil, fmt.Errorf("marshalling value: %w: %w", ErrEncoding, err)
	}
	lh, err := childHash(n.left)
	if err != nil {
		return nil, err
	}
	rh, err := childHash(n.right)
	if err != nil {
		return nil, err
	}

	rec := nodeRecord{
		Key:    kb,
		Value:  vb,
		Left:   lh,
		Right:  rh,
		Height: n.data.Height,
		Rank:   n.data.Rank,
	}
	buf := new(bytes.Buffer)
	if err := rec.MarshalCBOR(buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

// Parses record bytes into a node whose children are HashRefs. hash is the key the record was stored under.
func (ns *NodeStore[K, V]) decodeNode(hash, b []byte) (*Node[K, V], error) {
	var rec nodeRecord
	r := bytes.NewReader(b)
	if err := rec.UnmarshalCBOR(r); err != nil {
		return nil, fmt.Errorf("decoding node %x: %w: %w", hash, ErrEncoding, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("decoding node %x: %w: %d trailing bytes", hash, ErrEncoding, r.Len())
	}
	// every node counts itself
	if rec.Height < 1 || rec.Rank < 1 {
		return nil, fmt.Errorf("decoding node %x: %w: height %d rank %d", hash, ErrEncoding, rec.Height, rec.Rank)
	}

	key, err := ns.keys.Unmarshal(rec.Key)
	if err != nil {
		return nil, fmt.Errorf("decoding node %x key: %w: %w", hash, ErrEncoding, err)
	}
	value, err := ns.values.Unmarshal(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("decoding node %x value: %w: %w", hash, ErrEncoding, err)
	}

	return &Node[K, V]{
		data: &NodeData[K, V]{
			Key:    key,
			Value:  value,
			Height: rec.Height,
			Rank:   rec.Rank,
		},
		left:  HashRef[K, V](rec.Left),
		right: HashRef[K, V](rec.Right),
		hash:  hash,
	}, nil
}
