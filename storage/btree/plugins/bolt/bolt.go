package bolt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jrife/grouse/scheduler"
	"github.com/jrife/grouse/storage/btree"
)

const (
	// DriverName is the name this driver is registered under
	DriverName = "bolt"
)

var (
	nodesBucket = []byte("nodes")
	largeBucket = []byte("large")
	rootKey     = []byte("root")
)

// Plugins returns the plugins provided by this package
func Plugins() []btree.Plugin {
	return []btree.Plugin{
		&BoltPlugin{},
	}
}

// BoltPlugin is the factory for bbolt-backed stores
type BoltPlugin struct {
}

// Name implements Plugin.Name
func (plugin *BoltPlugin) Name() string {
	return DriverName
}

// NewStore implements Plugin.NewStore
func (plugin *BoltPlugin) NewStore(options btree.PluginOptions) (btree.Store, error) {
	var config StoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

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
func (plugin *BoltPlugin) NewTempStore(options btree.PluginOptions) (btree.Store, error) {
	merged := btree.PluginOptions{
		"path":   filepath.Join(os.TempDir(), fmt.Sprintf("grouse-bolt-%s", uuid.New().String())),
		"shards": 1,
	}

	for name, value := range options {
		merged[name] = value
	}

	return plugin.NewStore(merged)
}

// StoreConfig contains configuration for a bbolt-backed store
type StoreConfig struct {
	Path   string
	Shards int
	Async  bool
	Logger *zap.Logger
}

var _ btree.Store = (*Store)(nil)

// Store is a bbolt-backed implementation of the btree store
// interfaces. Every shard lives in its own top-level bucket holding a
// nodes bucket, a large-value bucket and a root pointer.
type Store struct {
	db     *bolt.DB
	shards []*Shard
}

// New creates or reopens a bbolt-backed store at the configured path
func New(config StoreConfig) (*Store, error) {
	if config.Shards < 0 {
		return nil, fmt.Errorf("\"shards\" must not be negative")
	}

	logger := config.Logger

	if logger == nil {
		logger = zap.L()
	}

	db, err := bolt.Open(config.Path, 0666, nil)

	if err != nil {
		return nil, fmt.Errorf("Could not open bolt store at %s: %s", config.Path, err.Error())
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		for i := 0; i < config.Shards; i++ {
			bucket, err := txn.CreateBucketIfNotExists(shardBucketName(i))

			if err != nil {
				return err
			}

			if _, err := bucket.CreateBucketIfNotExists(nodesBucket); err != nil {
				return err
			}

			if _, err := bucket.CreateBucketIfNotExists(largeBucket); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("Could not ensure shard buckets exist: %s", err.Error())
	}

	store := &Store{db: db, shards: make([]*Shard, config.Shards)}

	for i := 0; i < config.Shards; i++ {
		store.shards[i] = &Shard{
			store: store,
			index: i,
			async: config.Async,
			loop: scheduler.NewLoop(scheduler.LoopConfig{
				Name:   fmt.Sprintf("shard-%d", i),
				Logger: logger,
			}),
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

	return store.db.Close()
}

// Delete implements Store.Delete
func (store *Store) Delete() error {
	path := store.db.Path()

	if err := store.Close(); err != nil {
		return fmt.Errorf("Could not close store: %s", err.Error())
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("Could not remove path %s: %s", path, err.Error())
	}

	return nil
}

func shardBucketName(i int) []byte {
	return appendUint64(nil, uint64(i))
}

var _ btree.Shard = (*Shard)(nil)

// Shard is one bbolt-backed b-tree
type Shard struct {
	store       *Store
	index       int
	async       bool
	loop        *scheduler.Loop
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

func (shard *Shard) bucket(txn *bolt.Tx) *bolt.Bucket {
	return txn.Bucket(shardBucketName(shard.index))
}

// complete invokes an acquisition callback either inline or, in async
// mode, from the shard's home loop
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
	txn, err := cache.shard.store.db.Begin(false)

	if err != nil {
		return nil, fmt.Errorf("Could not begin transaction: %s", err.Error())
	}

	return &transaction{shard: cache.shard, txn: txn}, nil
}

var _ btree.Transaction = (*transaction)(nil)

type transaction struct {
	shard *Shard
	txn   *bolt.Tx
}

// Acquire implements Transaction.Acquire. Decoded nodes alias bbolt
// pages that stay valid until the transaction ends, which is why the
// walker must release and commit only after deliveries complete.
func (transaction *transaction) Acquire(block btree.BlockID, ready func(btree.Buffer)) {
	var node btree.Node

	if block == btree.SuperblockID {
		node = &btree.SuperblockNode{RootBlock: transaction.root()}
	} else {
		data := transaction.shard.bucket(transaction.txn).Bucket(nodesBucket).Get(appendUint64(nil, uint64(block)))

		if data == nil {
			panic(fmt.Sprintf("no such block: %d", block))
		}

		decoded, err := decodeNode(data)

		if err != nil {
			panic(fmt.Sprintf("block %d is corrupt: %s", block, err.Error()))
		}

		node = decoded
	}

	transaction.shard.complete(func() {
		ready(&buffer{node: node})
	})
}

func (transaction *transaction) root() btree.BlockID {
	data := transaction.shard.bucket(transaction.txn).Get(rootKey)

	if data == nil {
		return btree.NullBlock
	}

	decoder := decoder{data: data}
	root, err := decoder.uint64()

	if err != nil {
		panic(fmt.Sprintf("root pointer is corrupt: %s", err.Error()))
	}

	return btree.BlockID(root)
}

// AcquireLarge implements Transaction.AcquireLarge
func (transaction *transaction) AcquireLarge(ref btree.LargeRef, ready func(btree.LargeValue)) {
	data := transaction.shard.bucket(transaction.txn).Bucket(largeBucket).Get(appendUint64(nil, ref.ID))

	if data == nil {
		panic(fmt.Sprintf("no such large value: %d", ref.ID))
	}

	segments, err := decodeSegments(data)

	if err != nil {
		panic(fmt.Sprintf("large value %d is corrupt: %s", ref.ID, err.Error()))
	}

	transaction.shard.complete(func() {
		ready(&largeValue{segments: segments})
	})
}

// Commit implements Transaction.Commit. bbolt finishes read-only
// transactions with Rollback; that is what commit means for a
// transaction that wrote nothing.
func (transaction *transaction) Commit() error {
	if err := transaction.txn.Rollback(); err != nil {
		return fmt.Errorf("Could not end read transaction: %s", err.Error())
	}

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
	for i, pair := range pairs {
		if len(pair.Key) > maxKeySize {
			return btree.NullBlock, fmt.Errorf("pair %d key is %d bytes, the encoding allows at most %d", i, len(pair.Key), maxKeySize)
		}

		if !pair.Value.IsLarge() && int64(len(pair.Value.Data)) > maxValueSize {
			return btree.NullBlock, fmt.Errorf("pair %d value is %d bytes, the encoding allows at most %d", i, len(pair.Value.Data), maxValueSize)
		}
	}

	return writer.writeNode(encodeLeaf(pairs))
}

// WriteInternal implements Writer.WriteInternal
func (writer *writer) WriteInternal(children []btree.Child) (btree.BlockID, error) {
	for i, child := range children {
		if len(child.Key) > maxKeySize {
			return btree.NullBlock, fmt.Errorf("child %d key is %d bytes, the encoding allows at most %d", i, len(child.Key), maxKeySize)
		}
	}

	return writer.writeNode(encodeInternal(children))
}

func (writer *writer) writeNode(data []byte) (btree.BlockID, error) {
	var block btree.BlockID

	if err := writer.shard.store.db.Update(func(txn *bolt.Tx) error {
		nodes := writer.shard.bucket(txn).Bucket(nodesBucket)
		id, err := nodes.NextSequence()

		if err != nil {
			return err
		}

		block = btree.BlockID(id)

		return nodes.Put(appendUint64(nil, id), data)
	}); err != nil {
		return btree.NullBlock, fmt.Errorf("Could not write node: %s", err.Error())
	}

	return block, nil
}

// WriteLarge implements Writer.WriteLarge
func (writer *writer) WriteLarge(segments [][]byte) (btree.LargeRef, error) {
	var ref btree.LargeRef

	for i, segment := range segments {
		if int64(len(segment)) > maxValueSize {
			return btree.LargeRef{}, fmt.Errorf("segment %d is %d bytes, the encoding allows at most %d", i, len(segment), maxValueSize)
		}

		ref.Size += int64(len(segment))
	}

	if err := writer.shard.store.db.Update(func(txn *bolt.Tx) error {
		large := writer.shard.bucket(txn).Bucket(largeBucket)
		id, err := large.NextSequence()

		if err != nil {
			return err
		}

		ref.ID = id

		return large.Put(appendUint64(nil, id), encodeSegments(segments))
	}); err != nil {
		return btree.LargeRef{}, fmt.Errorf("Could not write large value: %s", err.Error())
	}

	return ref, nil
}

// SetRoot implements Writer.SetRoot
func (writer *writer) SetRoot(block btree.BlockID) error {
	if err := writer.shard.store.db.Update(func(txn *bolt.Tx) error {
		return writer.shard.bucket(txn).Put(rootKey, appendUint64(nil, uint64(block)))
	}); err != nil {
		return fmt.Errorf("Could not set root: %s", err.Error())
	}

	return nil
}
