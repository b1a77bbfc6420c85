package mem

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"go.uber.org/zap"

	"github.com/jrife/grouse/scheduler"
	"github.com/jrife/grouse/storage/btree"
)

const (
	// DriverName is the name this driver is registered under
	DriverName = "mem"
)

// Plugins returns the plugins provided by this package
func Plugins() []btree.Plugin {
	return []btree.Plugin{
		&MemPlugin{},
	}
}

// MemPlugin is the factory for in-memory stores
type MemPlugin struct {
}

// Name implements Plugin.Name
func (plugin *MemPlugin) Name() string {
	return DriverName
}

// NewStore implements Plugin.NewStore
func (plugin *MemPlugin) NewStore(options btree.PluginOptions) (btree.Store, error) {
	var config StoreConfig

	if shards, ok := options["shards"]; !ok {
		return nil, fmt.Errorf("\"shards\" is required")
	} else if shardsInt, ok := shards.(int); !ok {
		return nil, fmt.Errorf("\"shards\" must be an int")
	} else {
		config.Shards = shardsInt
	}

	if async, ok := options["async"]; ok {
		if asyncBool, ok := async.(bool); !ok {
			return nil, fmt.Errorf("\"async\" must be a bool")
		} else {
			config.Async = asyncBool
		}
	}

	return New(config)
}

// NewTempStore implements Plugin.NewTempStore
func (plugin *MemPlugin) NewTempStore(options btree.PluginOptions) (btree.Store, error) {
	merged := btree.PluginOptions{"shards": 1}

	for name, value := range options {
		merged[name] = value
	}

	return plugin.NewStore(merged)
}

// StoreConfig contains configuration for an in-memory store
type StoreConfig struct {
	Shards int
	Async  bool
	Logger *zap.Logger
}

var _ btree.Store = (*Store)(nil)

// Store is an in-memory implementation of the btree store interfaces.
// It exists for tests and for components that need a throwaway store.
type Store struct {
	shards []*Shard
}

// New creates an in-memory store with the configured number of shards
func New(config StoreConfig) (*Store, error) {
	if config.Shards < 0 {
		return nil, fmt.Errorf("\"shards\" must not be negative")
	}

	logger := config.Logger

	if logger == nil {
		logger = zap.L()
	}

	store := &Store{shards: make([]*Shard, config.Shards)}

	for i := 0; i < config.Shards; i++ {
		store.shards[i] = &Shard{
			index: i,
			async: config.Async,
			loop: scheduler.NewLoop(scheduler.LoopConfig{
				Name:   fmt.Sprintf("shard-%d", i),
				Logger: logger,
			}),
			blocks:      treemap.NewWith(utils.UInt64Comparator),
			large:       treemap.NewWith(utils.UInt64Comparator),
			root:        btree.NullBlock,
			subscribers: btree.NewSubscriberList(),
		}
	}

	return store, nil
}

// NumShards implements Store.NumShards
func (store *Store) NumShards() int {
	return len(store.shards)
}

// Shard implements Store.Shard
func (store *Store) Shard(i int) btree.Shard {
	return store.shards[i]
}

// Close implements Store.Close
func (store *Store) Close() error {
	for _, shard := range store.shards {
		shard.loop.Close()
	}

	return nil
}

// Delete implements Store.Delete
func (store *Store) Delete() error {
	return store.Close()
}

var _ btree.Shard = (*Shard)(nil)

// Shard is one in-memory b-tree. Blocks live in a treemap keyed by
// block id; large values live in a second treemap keyed by reference
// id.
type Shard struct {
	index       int
	async       bool
	loop        *scheduler.Loop
	blocks      *treemap.Map
	large       *treemap.Map
	root        btree.BlockID
	nextBlock   uint64
	nextLarge   uint64
	subscribers *btree.SubscriberList
}

// Index implements Shard.Index
func (shard *Shard) Index() int {
	return shard.index
}

// Loop implements Shard.Loop
func (shard *Shard) Loop() *scheduler.Loop {
	return shard.loop
}

// Cache implements Shard.Cache
func (shard *Shard) Cache() btree.Cache {
	return &cache{shard: shard}
}

// Subscribers implements Shard.Subscribers
func (shard *Shard) Subscribers() *btree.SubscriberList {
	return shard.subscribers
}

// Writer implements Shard.Writer
func (shard *Shard) Writer() btree.Writer {
	return &writer{shard: shard}
}

// complete invokes an acquisition callback either inline or, in async
// mode, from the shard's home loop. Both halves of the acquisition
// duality go through here so tests can exercise either one.
func (shard *Shard) complete(fn func()) {
	if shard.async {
		shard.loop.Dispatch(fn)

		return
	}

	fn()
}

var _ btree.Cache = (*cache)(nil)

type cache struct {
	shard *Shard
}

// Begin implements Cache.Begin
func (cache *cache) Begin() (btree.Transaction, error) {
	return &transaction{shard: cache.shard}, nil
}

var _ btree.Transaction = (*transaction)(nil)

type transaction struct {
	shard     *Shard
	committed bool
}

// Acquire implements Transaction.Acquire
func (transaction *transaction) Acquire(block btree.BlockID, ready func(btree.Buffer)) {
	var node btree.Node

	if block == btree.SuperblockID {
		node = &btree.SuperblockNode{RootBlock: transaction.shard.root}
	} else {
		value, found := transaction.shard.blocks.Get(uint64(block))

		if !found {
			panic(fmt.Sprintf("no such block: %d", block))
		}

		node = value.(btree.Node)
	}

	transaction.shard.complete(func() {
		ready(&buffer{node: node})
	})
}

// AcquireLarge implements Transaction.AcquireLarge
func (transaction *transaction) AcquireLarge(ref btree.LargeRef, ready func(btree.LargeValue)) {
	value, found := transaction.shard.large.Get(ref.ID)

	if !found {
		panic(fmt.Sprintf("no such large value: %d", ref.ID))
	}

	segments := value.([][]byte)

	transaction.shard.complete(func() {
		ready(&largeValue{segments: segments})
	})
}

// Commit implements Transaction.Commit
func (transaction *transaction) Commit() error {
	if transaction.committed {
		panic("transaction committed twice")
	}

	transaction.committed = true

	return nil
}

var _ btree.Buffer = (*buffer)(nil)

type buffer struct {
	node     btree.Node
	released bool
}

// Node implements Buffer.Node
func (buffer *buffer) Node() btree.Node {
	if buffer.released {
		panic("buffer used after release")
	}

	return buffer.node
}

// Release implements Buffer.Release
func (buffer *buffer) Release() {
	if buffer.released {
		panic("buffer released twice")
	}

	buffer.released = true
}

var _ btree.LargeValue = (*largeValue)(nil)

type largeValue struct {
	segments [][]byte
	released bool
}

// NumSegments implements LargeValue.NumSegments
func (largeValue *largeValue) NumSegments() int {
	return len(largeValue.segments)
}

// Segment implements LargeValue.Segment
func (largeValue *largeValue) Segment(i int) []byte {
	if largeValue.released {
		panic("large value used after release")
	}

	return largeValue.segments[i]
}

// Release implements LargeValue.Release
func (largeValue *largeValue) Release() {
	if largeValue.released {
		panic("large value released twice")
	}

	largeValue.released = true
}

var _ btree.Writer = (*writer)(nil)

type writer struct {
	shard *Shard
}

// WriteLeaf implements Writer.WriteLeaf
func (writer *writer) WriteLeaf(pairs []btree.Pair) (btree.BlockID, error) {
	node := &btree.LeafNode{Pairs: append([]btree.Pair(nil), pairs...)}

	return writer.writeNode(node), nil
}

// WriteInternal implements Writer.WriteInternal
func (writer *writer) WriteInternal(children []btree.Child) (btree.BlockID, error) {
	node := &btree.InternalNode{Children: append([]btree.Child(nil), children...)}

	return writer.writeNode(node), nil
}

func (writer *writer) writeNode(node btree.Node) btree.BlockID {
	writer.shard.nextBlock++
	block := btree.BlockID(writer.shard.nextBlock)
	writer.shard.blocks.Put(uint64(block), node)

	return block
}

// WriteLarge implements Writer.WriteLarge
func (writer *writer) WriteLarge(segments [][]byte) (btree.LargeRef, error) {
	var size int64

	copied := make([][]byte, len(segments))

	for i, segment := range segments {
		copied[i] = append([]byte(nil), segment...)
		size += int64(len(segment))
	}

	writer.shard.nextLarge++
	ref := btree.LargeRef{ID: writer.shard.nextLarge, Size: size}
	writer.shard.large.Put(ref.ID, copied)

	return ref, nil
}

// SetRoot implements Writer.SetRoot
func (writer *writer) SetRoot(block btree.BlockID) error {
	writer.shard.root = block

	return nil
}
