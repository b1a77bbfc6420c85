package bolt

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/grouse/storage/btree"
)

func TestNodeCodecInternal(t *testing.T) {
	children := []btree.Child{
		{Key: []byte("a"), Block: 7},
		{Key: []byte("m"), Block: 12},
		{Key: []byte{}, Block: 3},
	}

	node, err := decodeNode(encodeInternal(children))

	if err != nil {
		t.Fatalf("expected decode to succeed, got %s", err.Error())
	}

	internal, ok := node.(btree.Internal)

	if !ok {
		t.Fatalf("expected an internal node, got %T", node)
	}

	if internal.NumChildren() != len(children) {
		t.Fatalf("expected %d children, got %d", len(children), internal.NumChildren())
	}

	for i, child := range children {
		key, block := internal.Child(i)

		if diff := cmp.Diff(child.Key, key); diff != "" {
			t.Fatalf("child %d key mismatch (-want +got):\n%s", i, diff)
		}

		if block != child.Block {
			t.Fatalf("child %d: expected block %d, got %d", i, child.Block, block)
		}
	}
}

func TestNodeCodecLeaf(t *testing.T) {
	pairs := []btree.Pair{
		{Key: []byte("apple"), Value: btree.Value{Data: []byte("red"), Flags: 5, Exptime: 60, CAS: 99}},
		{Key: []byte("banana"), Value: btree.Value{Data: []byte{}}},
		{Key: []byte("cherry"), Value: btree.Value{Large: &btree.LargeRef{ID: 4, Size: 4096}, CAS: 1}},
	}

	node, err := decodeNode(encodeLeaf(pairs))

	if err != nil {
		t.Fatalf("expected decode to succeed, got %s", err.Error())
	}

	leaf, ok := node.(btree.Leaf)

	if !ok {
		t.Fatalf("expected a leaf node, got %T", node)
	}

	if leaf.NumPairs() != len(pairs) {
		t.Fatalf("expected %d pairs, got %d", len(pairs), leaf.NumPairs())
	}

	for i, pair := range pairs {
		decoded := leaf.Pair(i)

		if diff := cmp.Diff(pair.Key, decoded.Key); diff != "" {
			t.Fatalf("pair %d key mismatch (-want +got):\n%s", i, diff)
		}

		if pair.Value.IsLarge() != decoded.Value.IsLarge() {
			t.Fatalf("pair %d: large flag mismatch", i)
		}

		if pair.Value.IsLarge() {
			if *decoded.Value.Large != *pair.Value.Large {
				t.Fatalf("pair %d: expected large ref %+v, got %+v", i, *pair.Value.Large, *decoded.Value.Large)
			}
		} else if diff := cmp.Diff(pair.Value.Data, decoded.Value.Data); diff != "" {
			t.Fatalf("pair %d data mismatch (-want +got):\n%s", i, diff)
		}

		if decoded.Value.Flags != pair.Value.Flags || decoded.Value.Exptime != pair.Value.Exptime || decoded.Value.CAS != pair.Value.CAS {
			t.Fatalf("pair %d metadata mismatch: expected %+v, got %+v", i, pair.Value, decoded.Value)
		}
	}
}

func TestSegmentsCodec(t *testing.T) {
	segments := [][]byte{
		make([]byte, 10),
		make([]byte, 20),
		{},
		[]byte("tail"),
	}

	for i := range segments[0] {
		segments[0][i] = byte(i)
	}

	decoded, err := decodeSegments(encodeSegments(segments))

	if err != nil {
		t.Fatalf("expected decode to succeed, got %s", err.Error())
	}

	if diff := cmp.Diff(segments, decoded); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCorruptNode(t *testing.T) {
	testCases := map[string][]byte{
		"empty":               {},
		"unknown tag":         {99},
		"truncated internal":  {nodeTagInternal, 0, 0, 0, 2, 0, 1},
		"truncated leaf":      {nodeTagLeaf, 0, 0, 0, 1, 0, 3, 'a'},
		"truncated pair meta": {nodeTagLeaf, 0, 0, 0, 1, 0, 1, 'a', 0, 0},
	}

	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeNode(data); err == nil {
				t.Fatal("expected decode to fail")
			}
		})
	}
}
