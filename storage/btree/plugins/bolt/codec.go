package bolt

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jrife/grouse/storage/btree"
)

const (
	nodeTagInternal byte = 1
	nodeTagLeaf     byte = 2

	valueKindInline byte = 0
	valueKindLarge  byte = 1

	// Keys carry a 16 bit length prefix, inline values and large
	// value segments a 32 bit one
	maxKeySize         = math.MaxUint16
	maxValueSize int64 = math.MaxUint32
)

func encodeInternal(children []btree.Child) []byte {
	data := []byte{nodeTagInternal}
	data = appendUint32(data, uint32(len(children)))

	for _, child := range children {
		data = appendUint16(data, uint16(len(child.Key)))
		data = append(data, child.Key...)
		data = appendUint64(data, uint64(child.Block))
	}

	return data
}

func encodeLeaf(pairs []btree.Pair) []byte {
	data := []byte{nodeTagLeaf}
	data = appendUint32(data, uint32(len(pairs)))

	for _, pair := range pairs {
		data = appendUint16(data, uint16(len(pair.Key)))
		data = append(data, pair.Key...)
		data = appendUint32(data, pair.Value.Flags)
		data = appendUint32(data, pair.Value.Exptime)
		data = appendUint64(data, pair.Value.CAS)

		if pair.Value.IsLarge() {
			data = append(data, valueKindLarge)
			data = appendUint64(data, pair.Value.Large.ID)
			data = appendUint64(data, uint64(pair.Value.Large.Size))
		} else {
			data = append(data, valueKindInline)
			data = appendUint32(data, uint32(len(pair.Value.Data)))
			data = append(data, pair.Value.Data...)
		}
	}

	return data
}

func encodeSegments(segments [][]byte) []byte {
	data := appendUint32(nil, uint32(len(segments)))

	for _, segment := range segments {
		data = appendUint32(data, uint32(len(segment)))
		data = append(data, segment...)
	}

	return data
}

// decodeNode decodes an encoded node. The decoded node aliases data,
// it does not copy it.
func decodeNode(data []byte) (btree.Node, error) {
	decoder := decoder{data: data}

	tag, err := decoder.byte()

	if err != nil {
		return nil, fmt.Errorf("Could not decode node tag: %s", err.Error())
	}

	switch tag {
	case nodeTagInternal:
		return decodeInternal(&decoder)
	case nodeTagLeaf:
		return decodeLeaf(&decoder)
	}

	return nil, fmt.Errorf("unknown node tag: %d", tag)
}

func decodeInternal(decoder *decoder) (btree.Node, error) {
	count, err := decoder.uint32()

	if err != nil {
		return nil, fmt.Errorf("Could not decode child count: %s", err.Error())
	}

	children := make([]btree.Child, count)

	for i := range children {
		key, err := decoder.lengthPrefixedBytes()

		if err != nil {
			return nil, fmt.Errorf("Could not decode child %d key: %s", i, err.Error())
		}

		block, err := decoder.uint64()

		if err != nil {
			return nil, fmt.Errorf("Could not decode child %d block: %s", i, err.Error())
		}

		children[i] = btree.Child{Key: key, Block: btree.BlockID(block)}
	}

	return &btree.InternalNode{Children: children}, nil
}

func decodeLeaf(decoder *decoder) (btree.Node, error) {
	count, err := decoder.uint32()

	if err != nil {
		return nil, fmt.Errorf("Could not decode pair count: %s", err.Error())
	}

	pairs := make([]btree.Pair, count)

	for i := range pairs {
		pair, err := decodePair(decoder)

		if err != nil {
			return nil, fmt.Errorf("Could not decode pair %d: %s", i, err.Error())
		}

		pairs[i] = pair
	}

	return &btree.LeafNode{Pairs: pairs}, nil
}

func decodePair(decoder *decoder) (btree.Pair, error) {
	var pair btree.Pair
	var err error

	if pair.Key, err = decoder.lengthPrefixedBytes(); err != nil {
		return btree.Pair{}, err
	}

	if pair.Value.Flags, err = decoder.uint32(); err != nil {
		return btree.Pair{}, err
	}

	if pair.Value.Exptime, err = decoder.uint32(); err != nil {
		return btree.Pair{}, err
	}

	if pair.Value.CAS, err = decoder.uint64(); err != nil {
		return btree.Pair{}, err
	}

	kind, err := decoder.byte()

	if err != nil {
		return btree.Pair{}, err
	}

	switch kind {
	case valueKindInline:
		length, err := decoder.uint32()

		if err != nil {
			return btree.Pair{}, err
		}

		if pair.Value.Data, err = decoder.bytes(int(length)); err != nil {
			return btree.Pair{}, err
		}
	case valueKindLarge:
		id, err := decoder.uint64()

		if err != nil {
			return btree.Pair{}, err
		}

		size, err := decoder.uint64()

		if err != nil {
			return btree.Pair{}, err
		}

		pair.Value.Large = &btree.LargeRef{ID: id, Size: int64(size)}
	default:
		return btree.Pair{}, fmt.Errorf("unknown value kind: %d", kind)
	}

	return pair, nil
}

// decodeSegments decodes an encoded segment chain. Segments alias
// data.
func decodeSegments(data []byte) ([][]byte, error) {
	decoder := decoder{data: data}

	count, err := decoder.uint32()

	if err != nil {
		return nil, fmt.Errorf("Could not decode segment count: %s", err.Error())
	}

	segments := make([][]byte, count)

	for i := range segments {
		length, err := decoder.uint32()

		if err != nil {
			return nil, fmt.Errorf("Could not decode segment %d length: %s", i, err.Error())
		}

		if segments[i], err = decoder.bytes(int(length)); err != nil {
			return nil, fmt.Errorf("Could not decode segment %d: %s", i, err.Error())
		}
	}

	return segments, nil
}

type decoder struct {
	data []byte
}

func (decoder *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || len(decoder.data) < n {
		return nil, fmt.Errorf("buffer is not long enough to contain %d bytes", n)
	}

	data := decoder.data[:n]
	decoder.data = decoder.data[n:]

	return data, nil
}

func (decoder *decoder) byte() (byte, error) {
	data, err := decoder.bytes(1)

	if err != nil {
		return 0, err
	}

	return data[0], nil
}

func (decoder *decoder) uint16() (uint16, error) {
	data, err := decoder.bytes(2)

	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(data), nil
}

func (decoder *decoder) uint32() (uint32, error) {
	data, err := decoder.bytes(4)

	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(data), nil
}

func (decoder *decoder) uint64() (uint64, error) {
	data, err := decoder.bytes(8)

	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(data), nil
}

func (decoder *decoder) lengthPrefixedBytes() ([]byte, error) {
	length, err := decoder.uint16()

	if err != nil {
		return nil, err
	}

	return decoder.bytes(int(length))
}

func appendUint16(data []byte, n uint16) []byte {
	var b [2]byte

	binary.BigEndian.PutUint16(b[:], n)

	return append(data, b[:]...)
}

func appendUint32(data []byte, n uint32) []byte {
	var b [4]byte

	binary.BigEndian.PutUint32(b[:], n)

	return append(data, b[:]...)
}

func appendUint64(data []byte, n uint64) []byte {
	var b [8]byte

	binary.BigEndian.PutUint64(b[:], n)

	return append(data, b[:]...)
}
