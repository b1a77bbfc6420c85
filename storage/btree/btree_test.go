package btree_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/grouse/storage/btree"
)

func TestBufferGroup(t *testing.T) {
	testCases := map[string]struct {
		segments [][]byte
		size     int64
		bytes    []byte
	}{
		"empty": {
			segments: [][]byte{},
			size:     0,
			bytes:    []byte{},
		},
		"single segment": {
			segments: [][]byte{[]byte("hello")},
			size:     5,
			bytes:    []byte("hello"),
		},
		"several segments": {
			segments: [][]byte{[]byte("ab"), []byte(""), []byte("cdef")},
			size:     6,
			bytes:    []byte("abcdef"),
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			var group btree.BufferGroup

			for _, segment := range testCase.segments {
				group.Add(segment)
			}

			if group.NumSegments() != len(testCase.segments) {
				t.Fatalf("expected %d segments, got %d", len(testCase.segments), group.NumSegments())
			}

			for i, segment := range testCase.segments {
				if diff := cmp.Diff(segment, group.Segment(i)); diff != "" {
					t.Fatalf("segment %d mismatch (-want +got):\n%s", i, diff)
				}
			}

			if group.Size() != testCase.size {
				t.Fatalf("expected size %d, got %d", testCase.size, group.Size())
			}

			if diff := cmp.Diff(testCase.bytes, group.Bytes()); diff != "" {
				t.Fatalf("bytes mismatch (-want +got):\n%s", diff)
			}

			group.Reset()

			if group.NumSegments() != 0 || group.Size() != 0 {
				t.Fatal("expected an empty group after Reset()")
			}
		})
	}
}

type nopSubscriber struct {
	name string
}

func (subscriber *nopSubscriber) Value(key []byte, value *btree.BufferGroup, done func(), flags uint32, exptime uint32, cas uint64) {
}

func TestSubscriberList(t *testing.T) {
	subscribers := btree.NewSubscriberList()
	a := &nopSubscriber{name: "a"}
	b := &nopSubscriber{name: "b"}

	subscribers.Install(a)
	subscribers.Install(b)

	if subscribers.Len() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", subscribers.Len())
	}

	observed := []string{}

	subscribers.Each(func(subscriber btree.Subscriber) {
		observed = append(observed, subscriber.(*nopSubscriber).name)
	})

	if diff := cmp.Diff([]string{"a", "b"}, observed); diff != "" {
		t.Fatalf("subscribers visited out of installation order (-want +got):\n%s", diff)
	}

	if !subscribers.Uninstall(a) {
		t.Fatal("expected Uninstall() of an installed subscriber to succeed")
	}

	if subscribers.Uninstall(a) {
		t.Fatal("expected Uninstall() of a subscriber that is not installed to fail")
	}

	if subscribers.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", subscribers.Len())
	}
}
