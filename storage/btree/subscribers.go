package btree

import (
	"github.com/emirpasic/gods/lists/arraylist"
)

// SubscriberList is a shard's registry of replicants. It is pinned to
// the shard's home loop: every method must be called from a task
// running there. The store's write path calls Each to fan one write
// out to every registered subscriber.
type SubscriberList struct {
	list *arraylist.List
}

// NewSubscriberList creates an empty subscriber list
func NewSubscriberList() *SubscriberList {
	return &SubscriberList{list: arraylist.New()}
}

// Install appends a subscriber to the list
func (subscribers *SubscriberList) Install(subscriber Subscriber) {
	subscribers.list.Add(subscriber)
}

// Uninstall removes a subscriber from the list. It returns false if
// the subscriber was never installed; callers treat that as a
// programming error.
func (subscribers *SubscriberList) Uninstall(subscriber Subscriber) bool {
	index := subscribers.list.IndexOf(subscriber)

	if index < 0 {
		return false
	}

	subscribers.list.Remove(index)

	return true
}

// Each invokes fn for every subscriber in installation order
func (subscribers *SubscriberList) Each(fn func(Subscriber)) {
	subscribers.list.Each(func(_ int, value interface{}) {
		fn(value.(Subscriber))
	})
}

// Len returns the number of installed subscribers
func (subscribers *SubscriberList) Len() int {
	return subscribers.list.Size()
}
