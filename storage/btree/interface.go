package btree

import (
	"github.com/jrife/grouse/scheduler"
)

// Plugin represents a btree storage driver
type Plugin interface {
	// Name returns the name of the storage driver
	Name() string
	// NewStore returns an instance of the driver's store
	NewStore(options PluginOptions) (Store, error)
	// NewTempStore returns an instance of the driver's store
	// initialized with some sane defaults. It is meant for tests
	// that need an initialized store without knowing how to
	// initialize it. Any options passed override the defaults.
	NewTempStore(options PluginOptions) (Store, error)
}

// PluginOptions is a set of driver-specific options. Common options
// understood by the bundled drivers are "shards" (int) and "async"
// (bool). Async drivers deliver every acquisition callback from the
// shard's home loop rather than inline.
type PluginOptions map[string]interface{}

// Store is a fixed set of shards. A store lives for the lifetime of
// the process that opened it; consumers such as the replication walker
// never own it.
type Store interface {
	// NumShards returns the number of shards. It is fixed for the
	// lifetime of the store.
	NumShards() int
	// Shard returns the shard with this index. It panics if the
	// index is out of range.
	Shard(i int) Shard
	// Close stops the shards' home loops and releases the store's
	// resources. No store method may be called after Close.
	Close() error
	// Delete closes then deletes the store and all its contents
	Delete() error
}

// Shard is one independently scheduled b-tree plus its registered
// subscribers
type Shard interface {
	// Index returns the shard's stable identifying index
	Index() int
	// Loop returns the shard's home loop. All of the shard's
	// loop-affine state must be touched only from tasks running
	// on this loop.
	Loop() *scheduler.Loop
	// Cache returns the shard's buffer cache handle
	Cache() Cache
	// Subscribers returns the shard's subscriber list. It must be
	// mutated only from the shard's home loop. The store's write
	// path fans live updates out to every entry in this list.
	Subscribers() *SubscriberList
	// Writer returns the shard's block-level write surface. It
	// must not be used concurrently with readers.
	Writer() Writer
}

// Cache is a shard's buffer cache
type Cache interface {
	// Begin starts a read-only transaction. Beginning a read-only
	// transaction must succeed right away; callers treat an error
	// here as fatal.
	Begin() (Transaction, error)
}

// Transaction is a read-only handle for acquiring a shard's node
// buffers consistently. It is exclusively owned by the component that
// began it and must be used only from the shard's home loop.
type Transaction interface {
	// Acquire acquires the buffer for a block. ready may be
	// invoked inline if the buffer is already resident, or later
	// from the shard's home loop once it becomes available.
	// Callers must not assume either.
	Acquire(block BlockID, ready func(Buffer))
	// AcquireLarge acquires a large value's segment chain. The
	// same inline-or-later contract as Acquire applies.
	AcquireLarge(ref LargeRef, ready func(LargeValue))
	// Commit ends the transaction. Every buffer acquired through
	// the transaction must be released before Commit is called.
	// Committing a read-only transaction must succeed; callers
	// treat an error here as fatal.
	Commit() error
}

// Buffer is a temporarily owned read handle to one node's bytes. It
// is exclusively owned by whoever acquired it, from acquisition until
// Release, and must be released exactly once.
type Buffer interface {
	// Node returns the decoded node. The returned node aliases
	// the buffer and is invalid after Release.
	Node() Node
	// Release releases the buffer back to the cache
	Release()
}

// LargeValue is a temporarily owned read handle to one large value's
// segment chain. Same ownership contract as Buffer.
type LargeValue interface {
	NumSegments() int
	// Segment returns the i'th segment's bytes. The returned
	// slice aliases storage that is invalid after Release.
	Segment(i int) []byte
	Release()
}

// Writer builds a shard's tree block by block. Tree mutation
// algorithms (insert, delete, rebalance) are out of scope for this
// package, so writes happen at block granularity: bulk loaders and
// tests construct leaves and internal nodes directly and then point
// the superblock at a root.
type Writer interface {
	// WriteLeaf writes a leaf holding these pairs, which must
	// already be in key order, and returns its block id
	WriteLeaf(pairs []Pair) (BlockID, error)
	// WriteInternal writes an internal node referencing these
	// children and returns its block id
	WriteInternal(children []Child) (BlockID, error)
	// WriteLarge writes a large value as this ordered segment
	// chain and returns a reference to it
	WriteLarge(segments [][]byte) (LargeRef, error)
	// SetRoot points the shard's superblock at this root
	SetRoot(block BlockID) error
}

// Subscriber receives one value per stored pair during an initial
// scan and one value per write from the live-update path afterwards.
// The value's segments alias storage owned by the caller; a subscriber
// must fully consume or copy them before signaling done. done may be
// called from any goroutine.
type Subscriber interface {
	Value(key []byte, value *BufferGroup, done func(), flags uint32, exptime uint32, cas uint64)
}
