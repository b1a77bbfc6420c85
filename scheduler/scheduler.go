package scheduler

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/lists/singlylinkedlist"
	"go.uber.org/zap"
)

// LoopConfig contains configuration
// for a run loop
type LoopConfig struct {
	Name   string
	Logger *zap.Logger
}

// Loop is a run loop backed by a single goroutine. Data structures
// pinned to a loop may only be touched by tasks running on that loop.
// Other goroutines coordinate with a loop exclusively through Dispatch,
// never through shared locks. Tasks dispatched from the same goroutine
// run in dispatch order.
type Loop struct {
	name    string
	logger  *zap.Logger
	mu      sync.Mutex
	wake    *sync.Cond
	tasks   *singlylinkedlist.List
	closed  bool
	drained chan struct{}
	gid     uint64
}

// NewLoop creates a run loop and starts its goroutine
func NewLoop(config LoopConfig) *Loop {
	loop := &Loop{
		name:    config.Name,
		logger:  config.Logger,
		tasks:   singlylinkedlist.New(),
		drained: make(chan struct{}),
	}

	if loop.logger == nil {
		loop.logger = zap.L()
	}

	loop.logger = loop.logger.With(zap.String("loop", loop.name))
	loop.wake = sync.NewCond(&loop.mu)

	go loop.run()

	return loop
}

func (loop *Loop) run() {
	atomic.StoreUint64(&loop.gid, goid())

	for {
		loop.mu.Lock()

		for loop.tasks.Size() == 0 && !loop.closed {
			loop.wake.Wait()
		}

		if loop.tasks.Size() == 0 {
			// Closed and fully drained
			loop.mu.Unlock()
			close(loop.drained)

			return
		}

		task, _ := loop.tasks.Get(0)
		loop.tasks.Remove(0)
		loop.mu.Unlock()

		task.(func())()
	}
}

// Dispatch enqueues a task to run on this loop. It never blocks and may
// be called from any goroutine, including the loop's own.
func (loop *Loop) Dispatch(task func()) {
	if task == nil {
		panic("task must not be nil")
	}

	loop.mu.Lock()

	if loop.closed {
		loop.mu.Unlock()
		loop.logger.Panic("dispatch on a closed loop")
	}

	loop.tasks.Add(task)
	loop.mu.Unlock()
	loop.wake.Signal()
}

// RunningOn returns true if the caller is running on this loop's goroutine
func (loop *Loop) RunningOn() bool {
	return atomic.LoadUint64(&loop.gid) == goid()
}

// AssertRunningOn panics if the caller is not running on this loop's
// goroutine. Calling a loop-affine method from the wrong goroutine is a
// programming error, not a recoverable condition.
func (loop *Loop) AssertRunningOn() {
	if !loop.RunningOn() {
		loop.logger.Panic("called from outside its home loop")
	}
}

// Close drains any tasks already queued, then stops the loop's goroutine.
// It blocks until the loop has fully drained. Close must not be called
// from the loop itself and must not be called twice.
func (loop *Loop) Close() {
	if loop.RunningOn() {
		loop.logger.Panic("a loop cannot close itself")
	}

	loop.mu.Lock()

	if loop.closed {
		loop.mu.Unlock()
		loop.logger.Panic("loop closed twice")
	}

	loop.closed = true
	loop.mu.Unlock()
	loop.wake.Signal()

	<-loop.drained
}

// goid extracts the caller's goroutine id from the runtime.Stack header.
// The runtime offers no supported way to identify the current goroutine,
// and loop affinity checks need one.
func goid() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))

	end := bytes.IndexByte(buf, ' ')

	if end < 0 {
		panic("malformed runtime.Stack header")
	}

	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)

	if err != nil {
		panic("malformed runtime.Stack header")
	}

	return id
}
