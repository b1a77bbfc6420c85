// Package replication implements the full-scan replication walker. A
// replicant streams every key-value pair currently stored across all
// of a store's shards to a consumer, keeps itself registered on every
// shard for live-update notifications, and supports an orderly,
// fully-acknowledged shutdown.
//
// The walk runs one shard walker per shard on that shard's home loop.
// Each shard walker opens a read-only transaction, resolves the root
// from the superblock, and drives a recursive tree of node walkers
// over it. Leaf walkers deliver values to the consumer; internal
// walkers fan out one child walker per child reference and finish
// immediately, with the shard walker's outstanding count tracking
// subtree completion. When the count returns to zero the transaction
// is committed and completion is reported back to the replicant's
// home loop.
//
// Ordering: within one leaf, values arrive in stored key order.
// Across sibling subtrees and across shards there is no ordering at
// all. There is no mid-scan cancellation: Stop only tears down the
// subscriptions and the session, and its terminal callback waits for
// both the in-flight scans and the unsubscribe acknowledgements to
// drain.
package replication
