package replication

import (
	"go.uber.org/zap"

	"github.com/jrife/grouse/scheduler"
	"github.com/jrife/grouse/storage/btree"
)

// Consumer consumes a replication session's output. Value is invoked
// once per stored pair during the initial scan and once per write
// from the live-update path after installation; Stopped is invoked
// exactly once after Stop, when all scans and unsubscribe
// acknowledgements have drained.
type Consumer interface {
	btree.Subscriber
	Stopped()
}

// ReplicantConfig contains configuration for a replicant
type ReplicantConfig struct {
	Consumer Consumer
	Store    btree.Store
	// Loop is the replicant's home loop. All session counters are
	// mutated there and Stop must be called from it.
	Loop   *scheduler.Loop
	Logger *zap.Logger
}

var _ btree.Subscriber = (*Replicant)(nil)

// Replicant owns one replication session. It launches one shard
// walker per shard to cover values inserted before the session began
// and installs itself in every shard's subscriber list to cover
// values inserted afterwards.
type Replicant struct {
	consumer Consumer
	store    btree.Store
	loop     *scheduler.Loop
	logger   *zap.Logger

	// Session counters, mutated only on the replicant's home loop
	activeShardWalkers int
	activeUninstalls   int
	stopping           bool
}

// Start begins a replication session. For every shard it dispatches a
// single task onto the shard's home loop that first installs the
// replicant as a subscriber and then starts that shard's walker.
// Installing before the scan's transaction begins means a write
// landing in between may be delivered twice, once live and once from
// the snapshot, but can never be missed by both paths.
func Start(config ReplicantConfig) *Replicant {
	replicant := &Replicant{
		consumer: config.Consumer,
		store:    config.Store,
		loop:     config.Loop,
		logger:   config.Logger,
	}

	if replicant.logger == nil {
		replicant.logger = zap.L()
	}

	replicant.activeShardWalkers = replicant.store.NumShards()

	for i := 0; i < replicant.store.NumShards(); i++ {
		shard := replicant.store.Shard(i)
		walker := newShardWalker(replicant, shard)

		shard.Loop().Dispatch(func() {
			shard.Subscribers().Install(replicant)
			walker.start()
		})
	}

	replicant.logger.Debug("replication session started", zap.Int("shards", replicant.store.NumShards()))

	return replicant
}

// Value implements btree.Subscriber. Live updates from the shards'
// write paths are forwarded to the consumer unchanged.
func (replicant *Replicant) Value(key []byte, value *btree.BufferGroup, done func(), flags uint32, exptime uint32, cas uint64) {
	replicant.consumer.Value(key, value, done, flags, exptime, cas)
}

// Stop begins the session's two-phase shutdown: uninstall from every
// shard, then drain. It must be called from the replicant's home loop
// and at most once. The consumer's Stopped callback fires once both
// the initial scans and the unsubscribe acknowledgements have fully
// drained; the replicant must not be used afterwards.
func (replicant *Replicant) Stop() {
	replicant.loop.AssertRunningOn()

	if replicant.stopping {
		replicant.logger.Panic("replicant stopped twice")
	}

	replicant.stopping = true
	replicant.activeUninstalls = replicant.store.NumShards()

	for i := 0; i < replicant.store.NumShards(); i++ {
		shard := replicant.store.Shard(i)

		shard.Loop().Dispatch(func() {
			replicant.uninstallFrom(shard)
		})
	}

	replicant.logger.Debug("replication session stopping", zap.Int("active_scans", replicant.activeShardWalkers))

	// A store with zero shards has nothing to drain
	replicant.maybeDone()
}

// uninstallFrom runs on the shard's home loop. The replicant must
// currently be installed in the shard's subscriber list.
func (replicant *Replicant) uninstallFrom(shard btree.Shard) {
	if !shard.Subscribers().Uninstall(replicant) {
		replicant.logger.Panic("replicant was never installed on this shard", zap.Int("shard", shard.Index()))
	}

	replicant.loop.Dispatch(replicant.uninstalled)
}

// uninstalled runs on the replicant's home loop once per shard
// acknowledgement
func (replicant *Replicant) uninstalled() {
	if !replicant.stopping {
		replicant.logger.Panic("uninstall acknowledged but the replicant is not stopping")
	}

	replicant.activeUninstalls--

	if replicant.activeUninstalls < 0 {
		replicant.logger.Panic("uninstall count went negative")
	}

	replicant.maybeDone()
}

// shardWalkerDone runs on the replicant's home loop once per shard
// scan completion
func (replicant *Replicant) shardWalkerDone() {
	replicant.activeShardWalkers--

	if replicant.activeShardWalkers < 0 {
		replicant.logger.Panic("scan walker count went negative")
	}

	replicant.maybeDone()
}

func (replicant *Replicant) maybeDone() {
	if !replicant.stopping || replicant.activeShardWalkers != 0 || replicant.activeUninstalls != 0 {
		return
	}

	replicant.logger.Debug("replication session stopped")
	replicant.consumer.Stopped()
}
