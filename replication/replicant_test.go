package replication

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jrife/grouse/scheduler"
	"github.com/jrife/grouse/storage/btree"
	"github.com/jrife/grouse/storage/btree/plugins"
)

// Unsubscribing a replicant that was never installed on the shard is
// fatal
func TestUninstallWithoutInstallPanics(t *testing.T) {
	store, err := plugins.Plugin("mem").NewTempStore(btree.PluginOptions{"shards": 1})

	if err != nil {
		t.Fatalf("Could not create temp store: %s", err.Error())
	}

	defer store.Delete()

	loop := scheduler.NewLoop(scheduler.LoopConfig{Name: "replicant"})

	defer loop.Close()

	replicant := &Replicant{store: store, loop: loop, logger: zap.L()}
	shard := store.Shard(0)
	panicked := make(chan bool, 1)

	shard.Loop().Dispatch(func() {
		defer func() {
			panicked <- recover() != nil
		}()

		replicant.uninstallFrom(shard)
	})

	select {
	case p := <-panicked:
		if !p {
			t.Fatal("expected uninstalling a replicant that was never installed to panic")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the uninstall attempt")
	}
}
