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
	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/arch"
	"kelvin.dev/kelvin/pkg/atomicbitops"
	"kelvin.dev/kelvin/pkg/sync"
	"kelvin.dev/kelvin/pkg/usermem"
	"kelvin.dev/kelvin/pkg/waiter"
)

// TaskImage is the subset of a task's state that is duplicated or replaced
// wholesale across fork and exec: its view of user memory and its machine
// context.
type TaskImage struct {
	// Memory provides access to the task's address space.
	Memory usermem.IO

	// Arch is the task's machine context between traps.
	Arch *arch.Context
}

// RunState tells the trap return path what to do with a task after a safe
// point pass.
type RunState int

const (
	// RunApp: resume user execution (possibly in a handler).
	RunApp RunState = iota

	// RunExit: the task's process has terminated; the task must not return
	// to user mode.
	RunExit
)

// A Task is a thread of execution: the subject of signal masks, task-directed
// signals, and interruptible sleeps.
//
// Fields of a Task are divided by synchronization requirement:
//
//   - "exclusive to the task goroutine": accessed only between traps on
//     behalf of the task itself, never by other tasks;
//   - "protected by mu": the task signal mutex, which nests inside the
//     process signal mutex (never acquire the latter while holding mu).
type Task struct {
	// tid is the task's thread ID. Immutable.
	tid ThreadID

	// tg is the process this task belongs to. Immutable.
	tg *ThreadGroup

	// image is the task's user memory and machine context. Exclusive to the
	// task goroutine; replaced wholesale by exec.
	image TaskImage

	// mu is the task signal mutex.
	mu sync.Mutex

	// pendingSignals holds task-directed pending signals. Protected by mu.
	pendingSignals pendingSignals

	// signalMask is the set of signals whose delivery to this task is
	// currently blocked. It never contains an unblockable signal. Reads may
	// be lock-free; writes hold mu.
	signalMask atomicbitops.Uint64

	// signalStack records the alternate signal stack, a reserved extension
	// point: delivery never places a frame on it. Protected by mu.
	signalStack kabi.SignalStack

	// savedSignalMask is the mask to restore once the current interruptible
	// wait ends, armed by the suspend syscall. Exclusive to the task
	// goroutine.
	savedSignalMask     kabi.SignalSet
	haveSavedSignalMask bool

	// haveSyscallReturn is true when the return value register holds the
	// outcome of an unfinished syscall, making restart sentinels in it
	// meaningful. Exclusive to the task goroutine.
	haveSyscallReturn bool

	// signalPending is the delivery fast path: it is set (before any wake)
	// whenever a deliverable signal or a lifecycle change may await this
	// task, and cleared only under both signal mutexes once re-verification
	// finds nothing deliverable. A clear reading here lets the safe point
	// pass return without acquiring any lock.
	signalPending atomicbitops.Bool

	// interruptChan is ready whenever the task has been interrupted since
	// it last slept, unblocking at most one in-flight sleep.
	interruptChan chan struct{}

	// signalQueue is notified on each task-observable signal event, with
	// the affected signals as the event mask.
	signalQueue waiter.Queue
}

// ID returns the task's thread ID.
func (t *Task) ID() ThreadID {
	return t.tid
}

// ThreadGroup returns the process this task belongs to.
func (t *Task) ThreadGroup() *ThreadGroup {
	return t.tg
}

// Kernel returns the owning Kernel.
func (t *Task) Kernel() *Kernel {
	return t.tg.k
}

// Arch returns the task's machine context. Only the task goroutine may call
// Arch.
func (t *Task) Arch() *arch.Context {
	return t.image.Arch
}

// Memory returns the task's view of user memory.
func (t *Task) Memory() usermem.IO {
	return t.image.Memory
}

// userStack returns a Stack positioned at the task's current user stack
// pointer.
func (t *Task) userStack() *arch.Stack {
	return &arch.Stack{
		IO:     t.image.Memory,
		Bottom: usermem.Addr(t.image.Arch.Stack()),
	}
}

// SignalRegister registers e to be notified of signal events on this task.
// mask selects the signals of interest, as a kabi.SignalSet.
func (t *Task) SignalRegister(e *waiter.Entry, mask waiter.EventMask) {
	t.signalQueue.EventRegister(e, mask)
}

// SignalUnregister undoes a previous SignalRegister.
func (t *Task) SignalUnregister(e *waiter.Entry) {
	t.signalQueue.EventUnregister(e)
}

// interrupt forces the task through its slow safe point path and wakes it
// from an in-flight interruptible sleep, if any. The pending flag is set
// before the wake so the task cannot re-sleep past it.
func (t *Task) interrupt() {
	t.signalPending.Store(true)
	select {
	case t.interruptChan <- struct{}{}:
	default:
	}
}

// notifyAndInterrupt is interrupt plus observer notification for the given
// signal.
func (t *Task) notifyAndInterrupt(sig kabi.Signal) {
	t.interrupt()
	t.signalQueue.Notify(waiter.EventMask(kabi.SignalSetOf(sig)))
}

// interrupted returns true if the task has been interrupted since its last
// completed sleep.
func (t *Task) interrupted() bool {
	return len(t.interruptChan) != 0 || t.signalPending.Load()
}
