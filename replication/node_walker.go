package replication

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jrife/grouse/storage/btree"
)

// nodeWalker visits one tree node. For an internal node it spawns a
// child walker per child reference and finishes immediately; the
// shard walker's outstanding count, not the parent node, tracks the
// subtree. For a leaf it delivers each pair's value to the consumer
// in stored order, acquiring large values as it goes, and finishes
// after the last pair. Its buffer is held from acquisition until the
// walker finishes and is released on every exit path.
type nodeWalker struct {
	parent *shardWalker
	buffer btree.Buffer
	leaf   btree.Leaf

	// Leaf iteration state
	pair  int
	key   []byte
	value btree.Value
	large btree.LargeValue
	group btree.BufferGroup
}

func walkNode(parent *shardWalker, block btree.BlockID) {
	parent.outstanding++

	walker := &nodeWalker{parent: parent, pair: -1}
	parent.txn.Acquire(block, walker.nodeAvailable)
}

// nodeAvailable runs on the shard's home loop, either inline from
// Acquire or from a later readiness dispatch
func (walker *nodeWalker) nodeAvailable(buffer btree.Buffer) {
	walker.buffer = buffer

	switch node := buffer.Node().(type) {
	case btree.Internal:
		for i := 0; i < node.NumChildren(); i++ {
			_, child := node.Child(i)
			walkNode(walker.parent, child)
		}

		walker.finish()
	case btree.Leaf:
		walker.leaf = node
		walker.valueCopied()
	default:
		walker.parent.logger.Panic("node is neither internal nor leaf", zap.String("type", fmt.Sprintf("%T", node)))
	}
}

// valueCopied advances leaf iteration to the next pair. It is both
// the entry point for the first pair and the continuation that runs
// after the consumer finishes copying the previous pair's value.
func (walker *nodeWalker) valueCopied() {
	if walker.large != nil {
		walker.large.Release()
		walker.large = nil
	}

	walker.pair++

	if walker.pair == walker.leaf.NumPairs() {
		walker.finish()

		return
	}

	pair := walker.leaf.Pair(walker.pair)
	walker.key = pair.Key
	walker.value = pair.Value

	if pair.Value.IsLarge() {
		walker.parent.txn.AcquireLarge(*pair.Value.Large, walker.largeAvailable)

		return
	}

	walker.group.Reset()
	walker.group.Add(pair.Value.Data)
	walker.deliver()
}

func (walker *nodeWalker) largeAvailable(large btree.LargeValue) {
	walker.large = large
	walker.group.Reset()

	for i := 0; i < large.NumSegments(); i++ {
		walker.group.Add(large.Segment(i))
	}

	walker.deliver()
}

func (walker *nodeWalker) deliver() {
	loop := walker.parent.shard.Loop()

	// The consumer may signal completion from any goroutine; the
	// walker's state is loop-affine, so the advance is dispatched
	done := func() {
		loop.Dispatch(walker.valueCopied)
	}

	walker.parent.parent.consumer.Value(walker.key, &walker.group, done, walker.value.Flags, walker.value.Exptime, walker.value.CAS)
}

func (walker *nodeWalker) finish() {
	walker.buffer.Release()
	walker.parent.nodeWalkerDone()
}
