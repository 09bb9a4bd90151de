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

package kernel

import (
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/sync"
)

// TasksLimit is the maximum number of threads for untrusted user processes,
// and thus the exclusive upper bound of thread IDs handed out by a TaskSet.
const TasksLimit = (1 << 16)

// ThreadID is a thread (task) identifier. A process is identified by the
// ThreadID of its leader.
type ThreadID int32

// InitTID is the TID given to the first task added to each TaskSet.
const InitTID ThreadID = 1

// A TaskSet comprises all tasks and thread groups in the system.
type TaskSet struct {
	// mu protects all fields below. It is ordered before any process signal
	// mutex.
	mu sync.RWMutex

	// last is the most recently allocated thread ID.
	last ThreadID

	// tasks maps each live thread ID to its task.
	tasks map[ThreadID]*Task

	// groups maps each live process ID to its thread group.
	groups map[ThreadID]*ThreadGroup
}

func newTaskSet() *TaskSet {
	return &TaskSet{
		tasks:  make(map[ThreadID]*Task),
		groups: make(map[ThreadID]*ThreadGroup),
	}
}

// newIDLocked allocates an unused thread ID, scanning cyclically from the
// last allocation.
//
// Preconditions: ts.mu must be locked for writing.
func (ts *TaskSet) newIDLocked() (ThreadID, error) {
	id := ts.last
	for {
		id++
		if id >= TasksLimit {
			id = InitTID
		}
		if id == ts.last {
			return 0, kernelerr.EAGAIN
		}
		if _, ok := ts.tasks[id]; ok {
			continue
		}
		if _, ok := ts.groups[id]; ok {
			continue
		}
		ts.last = id
		return id, nil
	}
}

// TaskWithID returns the task with the given TID, or nil if none exists.
func (ts *TaskSet) TaskWithID(tid ThreadID) *Task {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.tasks[tid]
}

// ThreadGroupWithID returns the thread group whose leader has the given
// PID, or nil if none exists.
func (ts *TaskSet) ThreadGroupWithID(pid ThreadID) *ThreadGroup {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.groups[pid]
}

// ForEachThreadGroup applies f to each live thread group.
func (ts *TaskSet) ForEachThreadGroup(f func(tg *ThreadGroup)) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	for _, tg := range ts.groups {
		f(tg)
	}
}

// removeThreadGroup releases the IDs held by tg and its tasks. Called when a
// zombie is reaped.
func (ts *TaskSet) removeThreadGroup(tg *ThreadGroup) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range tg.tasks {
		delete(ts.tasks, t.tid)
	}
	delete(ts.groups, tg.id)
}
