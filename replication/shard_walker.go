package replication

import (
	"go.uber.org/zap"

	"github.com/jrife/grouse/storage/btree"
)

// shardWalker walks a single shard's b-tree and reports back to its
// replicant. Everything except the final completion dispatch runs on
// the shard's home loop. It owns the read-only transaction for the
// whole walk and commits it exactly once, after every node walker it
// spawned has released its buffers.
type shardWalker struct {
	parent      *Replicant
	shard       btree.Shard
	logger      *zap.Logger
	txn         btree.Transaction
	outstanding int
}

func newShardWalker(parent *Replicant, shard btree.Shard) *shardWalker {
	return &shardWalker{
		parent: parent,
		shard:  shard,
		logger: parent.logger.With(zap.Int("shard", shard.Index())),
	}
}

// start runs on the shard's home loop
func (walker *shardWalker) start() {
	txn, err := walker.shard.Cache().Begin()

	if err != nil {
		// Read-only transactions begin right away
		walker.logger.Panic("Could not begin read-only transaction", zap.Error(err))
	}

	walker.txn = txn
	walker.txn.Acquire(btree.SuperblockID, walker.superblockAvailable)
}

func (walker *shardWalker) superblockAvailable(buffer btree.Buffer) {
	superblock, ok := buffer.Node().(btree.Superblock)

	if !ok {
		walker.logger.Panic("superblock block does not hold a superblock")
	}

	root := superblock.Root()
	buffer.Release()

	if root == btree.NullBlock {
		// Empty tree, nothing to deliver
		walker.done()

		return
	}

	walkNode(walker, root)
}

// nodeWalkerDone is called once by every node walker in the subtree.
// The outstanding count was incremented when the walker was spawned.
func (walker *shardWalker) nodeWalkerDone() {
	walker.outstanding--

	if walker.outstanding < 0 {
		walker.logger.Panic("node walker count went negative")
	}

	if walker.outstanding == 0 {
		walker.done()
	}
}

func (walker *shardWalker) done() {
	if err := walker.txn.Commit(); err != nil {
		walker.logger.Panic("Could not commit read-only transaction", zap.Error(err))
	}

	walker.logger.Debug("shard scan complete")
	walker.parent.loop.Dispatch(walker.parent.shardWalkerDone)
}
