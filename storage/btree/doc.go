// Package btree defines the interfaces between a sharded b-tree store
// and the components that consume it, most notably the replication
// walker. It does not define the tree's mutation algorithms or the
// cache's eviction policy; drivers implement those however they like
// behind these contracts.
//
// A store is a fixed set of shards. Each shard is an independent b-tree
// with its own home run loop: all of the shard's loop-affine state (its
// subscriber list, its buffer acquisitions) may only be touched by tasks
// running on that loop.
//
//  - Store
//    - Shard 0 (home loop "shard-0")
//      - superblock -> root node -> ...
//      - subscriber list
//    - Shard 1 (home loop "shard-1")
//      - ...
//
// Buffer and large-value acquisition is expressed as a single
// callback-taking operation regardless of whether the underlying bytes
// are already resident. Callers write one continuation and must be
// prepared for it to run either inline or from the shard's home loop at
// an arbitrarily later point.
package btree
