// Copyright 2026 The Kelvin Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package waiter

import (
	"testing"
)

type callbackStub struct {
	f func(e *Entry)
}

// Callback implements EntryCallback.Callback.
func (c *callbackStub) Callback(e *Entry) {
	c.f(e)
}

func TestEmptyQueue(t *testing.T) {
	var q Queue

	// Notify the zero-value queue.
	q.Notify(EventsAll)

	// Register then unregister a waiter, then notify the queue.
	cnt := 0
	e := Entry{Callback: &callbackStub{func(*Entry) { cnt++ }}}
	q.EventRegister(&e, EventMask(1))
	q.EventUnregister(&e)
	q.Notify(EventMask(1))
	if cnt != 0 {
		t.Errorf("Callback was called when it shouldn't have been")
	}
}

func TestMask(t *testing.T) {
	// Register a waiter.
	var q Queue
	var cnt int
	e := Entry{Callback: &callbackStub{func(*Entry) { cnt++ }}}
	q.EventRegister(&e, EventMask(0x03))

	// Notify with an overlapping mask.
	cnt = 0
	q.Notify(EventMask(0x01))
	if cnt != 1 {
		t.Errorf("Callback wasn't called when it should have been")
	}

	// Notify with a disjoint mask.
	cnt = 0
	q.Notify(EventMask(0x04))
	if cnt != 0 {
		t.Errorf("Callback was called when it shouldn't have been")
	}

	// Notify with EventsAll.
	cnt = 0
	q.Notify(EventsAll)
	if cnt != 1 {
		t.Errorf("Callback wasn't called when it should have been")
	}
}

func TestQueueOrder(t *testing.T) {
	var q Queue
	var order []int
	entries := make([]Entry, 3)
	for i := range entries {
		i := i
		entries[i] = Entry{Callback: &callbackStub{func(*Entry) { order = append(order, i) }}}
		q.EventRegister(&entries[i], EventMask(1))
	}

	q.Notify(EventMask(1))
	for i, got := range order {
		if got != i {
			t.Fatalf("Waiters notified out of registration order: %v", order)
		}
	}

	// Unregister the middle entry and notify again.
	q.EventUnregister(&entries[1])
	order = nil
	q.Notify(EventMask(1))
	if len(order) != 2 || order[0] != 0 || order[1] != 2 {
		t.Fatalf("Unexpected notification order after unregister: %v", order)
	}
}

func TestChannelEntry(t *testing.T) {
	var q Queue
	e, ch := NewChannelEntry(nil)
	q.EventRegister(&e, EventMask(1))
	defer q.EventUnregister(&e)

	select {
	case <-ch:
		t.Fatalf("Channel readable before notification")
	default:
	}

	q.Notify(EventMask(1))
	select {
	case <-ch:
	default:
		t.Fatalf("Channel not readable after notification")
	}

	// A second notification coalesces.
	q.Notify(EventMask(1))
	q.Notify(EventMask(1))
	<-ch
	select {
	case <-ch:
		t.Fatalf("Channel notifications did not coalesce")
	default:
	}
}
