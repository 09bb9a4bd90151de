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
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/log"
	"kelvin.dev/kelvin/pkg/waiter"
)

// ExitGroup terminates the task's process with the given exit code: the
// process becomes a zombie holding the exit status, every sibling task is
// interrupted so it stops executing at its next safe point, and the parent
// is notified.
//
// Only the task goroutine may call ExitGroup, and must not return to user
// mode afterwards.
func (t *Task) ExitGroup(code int32) RunState {
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	t.tg.exitLocked(code)
	sh.mu.Unlock()
	log.Infof("Process %d exited with code %d", t.tg.id, code)
	return RunExit
}

// WaitChild waits for a status change of the given child: an exit, a group
// stop, or a continue. Stop and continue events are consumed by the wait; an
// exit additionally reaps the child, releasing its IDs. When block is false
// and no event is pending, WaitChild returns EAGAIN.
//
// Only the task goroutine may call WaitChild.
func (t *Task) WaitChild(child *ThreadGroup, block bool) (kabi.WaitStatus, error) {
	if child.parent != t.tg {
		return 0, kernelerr.ECHILD
	}
	for {
		ws, exited, ok := child.consumeWaitableEvent()
		if ok {
			if exited {
				t.tg.k.tasks.removeThreadGroup(child)
			}
			return ws, nil
		}
		if child.isReaped() {
			// The exit status was already collected.
			return 0, kernelerr.ECHILD
		}
		if !block {
			return 0, kernelerr.EAGAIN
		}

		e, ch := waiter.NewChannelEntry(nil)
		t.tg.eventQueue.EventRegister(&e, EventExit|EventChildGroupStop|EventGroupContinue)
		// Re-check after registration so an event posted in between is not
		// missed.
		if ws, exited, ok := child.consumeWaitableEvent(); ok {
			t.tg.eventQueue.EventUnregister(&e)
			if exited {
				t.tg.k.tasks.removeThreadGroup(child)
			}
			return ws, nil
		}
		err := t.Block(ch)
		t.tg.eventQueue.EventUnregister(&e)
		if err != nil {
			return 0, err
		}
	}
}

// consumeWaitableEvent returns and consumes the child's most significant
// unconsumed status event, if any. Exits dominate stops and continues.
func (tg *ThreadGroup) consumeWaitableEvent() (ws kabi.WaitStatus, exited, ok bool) {
	tg.signalHandlers.mu.Lock()
	defer tg.signalHandlers.mu.Unlock()
	switch {
	case tg.lifecycle == ProcessZombie:
		if tg.reaped {
			return 0, false, false
		}
		tg.reaped = true
		return tg.exitStatus, true, true
	case tg.groupStopWaitable:
		tg.groupStopWaitable = false
		return tg.stopStatus, false, true
	case tg.groupContWaitable:
		tg.groupContWaitable = false
		return kabi.WaitStatusContinued(), false, true
	}
	return 0, false, false
}

func (tg *ThreadGroup) isReaped() bool {
	tg.signalHandlers.mu.Lock()
	defer tg.signalHandlers.mu.Unlock()
	return tg.reaped
}
