package bolt_test

import (
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/grouse/storage/btree"
	"github.com/jrife/grouse/storage/btree/plugins/bolt"
)

// Trees written through one store instance must be readable after the
// store is closed and reopened.
func TestReopen(t *testing.T) {
	dir, err := ioutil.TempDir("", "grouse-bolt-test")

	if err != nil {
		t.Fatalf("Could not create temp dir: %s", err.Error())
	}

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "store.db")
	config := bolt.StoreConfig{Path: path, Shards: 1}
	store, err := bolt.New(config)

	if err != nil {
		t.Fatalf("Could not create store: %s", err.Error())
	}

	written := []btree.Pair{
		{Key: []byte("x"), Value: btree.Value{Data: []byte("one")}},
		{Key: []byte("y"), Value: btree.Value{Data: []byte("two")}},
	}

	writer := store.Shard(0).Writer()
	leaf, err := writer.WriteLeaf(written)

	if err != nil {
		t.Fatalf("Could not write leaf: %s", err.Error())
	}

	if err := writer.SetRoot(leaf); err != nil {
		t.Fatalf("Could not set root: %s", err.Error())
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Could not close store: %s", err.Error())
	}

	store, err = bolt.New(config)

	if err != nil {
		t.Fatalf("Could not reopen store: %s", err.Error())
	}

	defer store.Close()

	shard := store.Shard(0)
	read := make(chan []btree.Pair, 1)

	shard.Loop().Dispatch(func() {
		txn, err := shard.Cache().Begin()

		if err != nil {
			panic(err)
		}

		txn.Acquire(btree.SuperblockID, func(buffer btree.Buffer) {
			root := buffer.Node().(btree.Superblock).Root()
			buffer.Release()

			txn.Acquire(root, func(buffer btree.Buffer) {
				leaf := buffer.Node().(btree.Leaf)
				pairs := make([]btree.Pair, leaf.NumPairs())

				for i := range pairs {
					pair := leaf.Pair(i)
					// The decoded pair aliases the transaction
					pairs[i] = btree.Pair{
						Key:   append([]byte(nil), pair.Key...),
						Value: btree.Value{Data: append([]byte(nil), pair.Value.Data...)},
					}
				}

				buffer.Release()

				if err := txn.Commit(); err != nil {
					panic(err)
				}

				read <- pairs
			})
		})
	})

	select {
	case pairs := <-read:
		if diff := cmp.Diff(written, pairs); diff != "" {
			t.Fatalf("pairs mismatch after reopen (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out reading reopened store")
	}
}

// Keys longer than the node encoding's length prefix can describe
// must be rejected up front, never truncated
func TestOversizedKeyRejected(t *testing.T) {
	dir, err := ioutil.TempDir("", "grouse-bolt-test")

	if err != nil {
		t.Fatalf("Could not create temp dir: %s", err.Error())
	}

	defer os.RemoveAll(dir)

	store, err := bolt.New(bolt.StoreConfig{Path: filepath.Join(dir, "store.db"), Shards: 1})

	if err != nil {
		t.Fatalf("Could not create store: %s", err.Error())
	}

	defer store.Close()

	writer := store.Shard(0).Writer()
	longKey := make([]byte, math.MaxUint16+1)

	if _, err := writer.WriteLeaf([]btree.Pair{{Key: longKey, Value: btree.Value{Data: []byte("v")}}}); err == nil {
		t.Fatal("expected an oversized leaf key to be rejected")
	}

	if _, err := writer.WriteInternal([]btree.Child{{Key: longKey, Block: 1}}); err == nil {
		t.Fatal("expected an oversized child key to be rejected")
	}

	// The longest representable key still encodes
	maxKey := make([]byte, math.MaxUint16)
	block, err := writer.WriteLeaf([]btree.Pair{{Key: maxKey, Value: btree.Value{Data: []byte("v")}}})

	if err != nil {
		t.Fatalf("Could not write leaf with a maximum length key: %s", err.Error())
	}

	if block == btree.NullBlock {
		t.Fatal("expected a real block id")
	}
}
