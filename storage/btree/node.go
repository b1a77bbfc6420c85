package btree

import "math"

// BlockID identifies one block within a shard's b-tree
type BlockID uint64

const (
	// SuperblockID is the block id of every shard's superblock
	SuperblockID BlockID = 0
	// NullBlock is the sentinel for "no block", used by an empty
	// tree's superblock as its root reference
	NullBlock BlockID = math.MaxUint64
)

// LargeRef references a value too big to store inline in a leaf. The
// value's bytes live in the shard's large-value space as an ordered
// chain of segments totaling Size bytes.
type LargeRef struct {
	ID   uint64
	Size int64
}

// Node is a decoded tree node. Concrete nodes are classified with a
// type switch over Superblock, Internal and Leaf. A node that is none
// of the three is corrupt and the caller is expected to treat it as
// fatal.
type Node interface {
	node()
}

// Superblock is a shard's root metadata block
type Superblock interface {
	Node
	// Root returns the current root node reference, or NullBlock
	// if the tree is empty
	Root() BlockID
}

// Internal is a b-tree node holding child references keyed by a
// separating key
type Internal interface {
	Node
	NumChildren() int
	// Child returns the i'th separating key and child block
	// reference in stored order
	Child(i int) (key []byte, block BlockID)
}

// Leaf is a b-tree node holding key-value pairs
type Leaf interface {
	Node
	NumPairs() int
	// Pair returns the i'th pair in stored key order
	Pair(i int) Pair
}

// Pair is one key-value pair stored in a leaf
type Pair struct {
	Key   []byte
	Value Value
}

// Value is one leaf pair's value record. Large is non-nil for values
// stored out of line, in which case Data is meaningless. CAS is 0 when
// the pair carries no compare-and-swap id.
type Value struct {
	Data    []byte
	Large   *LargeRef
	Flags   uint32
	Exptime uint32
	CAS     uint64
}

// IsLarge returns true if the value's bytes are stored out of line
func (value Value) IsLarge() bool {
	return value.Large != nil
}

// Child is one (separating key, child block) entry of an internal node
type Child struct {
	Key   []byte
	Block BlockID
}

// SuperblockNode is the canonical in-memory superblock
type SuperblockNode struct {
	RootBlock BlockID
}

func (node *SuperblockNode) node() {}

// Root implements Superblock.Root
func (node *SuperblockNode) Root() BlockID {
	return node.RootBlock
}

// InternalNode is the canonical in-memory internal node
type InternalNode struct {
	Children []Child
}

func (node *InternalNode) node() {}

// NumChildren implements Internal.NumChildren
func (node *InternalNode) NumChildren() int {
	return len(node.Children)
}

// Child implements Internal.Child
func (node *InternalNode) Child(i int) ([]byte, BlockID) {
	return node.Children[i].Key, node.Children[i].Block
}

// LeafNode is the canonical in-memory leaf node
type LeafNode struct {
	Pairs []Pair
}

func (node *LeafNode) node() {}

// NumPairs implements Leaf.NumPairs
func (node *LeafNode) NumPairs() int {
	return len(node.Pairs)
}

// Pair implements Leaf.Pair
func (node *LeafNode) Pair(i int) Pair {
	return node.Pairs[i]
}

var _ Superblock = (*SuperblockNode)(nil)
var _ Internal = (*InternalNode)(nil)
var _ Leaf = (*LeafNode)(nil)
