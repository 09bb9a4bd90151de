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
	"kelvin.dev/kelvin/pkg/sync"
	"kelvin.dev/kelvin/pkg/waiter"
)

// ProcessState is the lifecycle state of a thread group. Transitions form a
// one-way lattice: Running and Stopped interconvert, Zombie is terminal.
type ProcessState int32

const (
	// ProcessRunning: the process's tasks are schedulable.
	ProcessRunning ProcessState = iota

	// ProcessStopped: every task in the process parks at its next safe
	// point until the process is continued or killed.
	ProcessStopped

	// ProcessZombie: the process has terminated and holds only the state a
	// parent can still collect.
	ProcessZombie
)

// String implements fmt.Stringer.
func (s ProcessState) String() string {
	switch s {
	case ProcessRunning:
		return "running"
	case ProcessStopped:
		return "stopped"
	case ProcessZombie:
		return "zombie"
	default:
		return "invalid"
	}
}

// Waitable child events, posted to the parent's event queue.
const (
	// EventExit represents a child exit (or termination by signal).
	EventExit waiter.EventMask = 1 << iota

	// EventChildGroupStop occurs when a child completes a group stop.
	EventChildGroupStop

	// EventGroupContinue occurs when a stopped child continues.
	EventGroupContinue
)

// Credentials identifies the subject a process runs as, for the purposes of
// the signal permission check.
type Credentials struct {
	// UID is the user ID. UID 0 may signal anything.
	UID int32
}

// A ThreadGroup is a logical grouping of tasks that has widespread
// significance to other kernel features (e.g. signal handling): the process.
type ThreadGroup struct {
	// k is the owning Kernel. Immutable.
	k *Kernel

	// id is the process ID: the thread ID of the leader. Immutable.
	id ThreadID

	// creds is the process's identity for signal permission checks.
	// Immutable.
	creds Credentials

	// leader is the first task in the group. Immutable.
	leader *Task

	// parent is the process that observes this one's lifecycle events. It
	// is nil for root processes and never changes afterwards, so a process
	// may acquire an ancestor's signal mutex while holding its own.
	parent *ThreadGroup

	// terminationSignal is the signal sent to parent when the process
	// terminates, conventionally SIGCHLD. 0 means no signal (the event is
	// still posted to parent's event queue). Immutable.
	terminationSignal kabi.Signal

	// signalTrampoline is the user address handlers return through when
	// their action does not carry its own restorer. Immutable except during
	// exec.
	signalTrampoline uint64

	// signalHandlers holds the process's signal actions and the process
	// signal mutex. The pointer is replaced only during exec, by the sole
	// remaining task.
	signalHandlers *SignalHandlers

	// stopCond, with L == &signalHandlers.mu, is broadcast whenever a group
	// stop ends (by continue or by death).
	stopCond *sync.Cond

	// The following fields are protected by signalHandlers.mu:

	// pendingSignals holds process-directed pending signals, deliverable by
	// any task in the group.
	pendingSignals pendingSignals

	// lifecycle is the process state.
	lifecycle ProcessState

	// tasks is the group's membership.
	tasks []*Task

	// exitStatus is the status collectible by the parent. Valid iff
	// lifecycle is ProcessZombie.
	exitStatus kabi.WaitStatus

	// stopStatus is the status reportable for the most recent group stop.
	stopStatus kabi.WaitStatus

	// groupStopWaitable and groupContWaitable indicate that a stop or
	// continue event has not yet been consumed by a waiting parent.
	groupStopWaitable bool
	groupContWaitable bool

	// reaped is true once a parent has collected the exit status, making
	// further waits ECHILD.
	reaped bool

	// eventQueue is notified of lifecycle events of this process's
	// children.
	eventQueue waiter.Queue
}

// ID returns the process ID.
func (tg *ThreadGroup) ID() ThreadID {
	return tg.id
}

// Leader returns the group's leader task.
func (tg *ThreadGroup) Leader() *Task {
	return tg.leader
}

// Credentials returns the process's identity.
func (tg *ThreadGroup) Credentials() Credentials {
	return tg.creds
}

// State returns the process's lifecycle state.
func (tg *ThreadGroup) State() ProcessState {
	tg.signalHandlers.mu.Lock()
	defer tg.signalHandlers.mu.Unlock()
	return tg.lifecycle
}

// ExitStatus returns the process's termination status, and whether the
// process has terminated.
func (tg *ThreadGroup) ExitStatus() (kabi.WaitStatus, bool) {
	tg.signalHandlers.mu.Lock()
	defer tg.signalHandlers.mu.Unlock()
	return tg.exitStatus, tg.lifecycle == ProcessZombie
}

// SignalHandlers returns the process's action table.
func (tg *ThreadGroup) SignalHandlers() *SignalHandlers {
	return tg.signalHandlers
}

// EventRegister registers e on the queue of events about this process's
// children, for the child events selected by mask.
func (tg *ThreadGroup) EventRegister(e *waiter.Entry, mask waiter.EventMask) {
	tg.eventQueue.EventRegister(e, mask)
}

// EventUnregister undoes a previous EventRegister.
func (tg *ThreadGroup) EventUnregister(e *waiter.Entry) {
	tg.eventQueue.EventUnregister(e)
}

// SendSignal sends the given process-directed signal; any task in the group
// may ultimately deliver it.
func (tg *ThreadGroup) SendSignal(info *kabi.SignalInfo) error {
	tg.signalHandlers.mu.Lock()
	defer tg.signalHandlers.mu.Unlock()
	return tg.sendSignalLocked(info)
}

// sendSignalLocked is the process-directed send path.
//
// Preconditions: tg.signalHandlers.mu must be locked.
func (tg *ThreadGroup) sendSignalLocked(info *kabi.SignalInfo) error {
	sig := kabi.Signal(info.Signo)
	if !sig.IsValid() {
		return kernelerr.EINVAL
	}
	if tg.lifecycle == ProcessZombie {
		return kernelerr.ESRCH
	}

	tg.prepareSignalLocked(sig)

	// SIGKILL cannot wait for a safe point: a fully stopped process has no
	// task that will ever reach one.
	if sig == kabi.SIGKILL {
		tg.killLocked(info, false)
		return nil
	}

	if !tg.pendingSignals.enqueue(info) {
		log.Debugf("Signal %d coalesced into pending set of process %d", sig, tg.id)
		return nil
	}

	// A process-directed send wakes every task in the group; each one
	// re-evaluates deliverability against its own mask at its next safe
	// point.
	for _, t := range tg.tasks {
		t.notifyAndInterrupt(sig)
	}
	return nil
}

// prepareSignalLocked applies the generation-time side effects of sig:
// stop signals and SIGCONT cancel each other's pending instances, and
// SIGCONT resumes a stopped process before any delivery decision is made.
//
// Preconditions: tg.signalHandlers.mu must be locked.
func (tg *ThreadGroup) prepareSignalLocked(sig kabi.Signal) {
	switch {
	case StopSignals&kabi.SignalSetOf(sig) != 0:
		tg.discardPendingLocked(kabi.SignalSetOf(kabi.SIGCONT))

	case sig == kabi.SIGCONT:
		tg.discardPendingLocked(StopSignals)
		if tg.lifecycle != ProcessStopped {
			return
		}
		tg.lifecycle = ProcessRunning
		tg.groupStopWaitable = false
		tg.groupContWaitable = true
		tg.stopCond.Broadcast()
		for _, t := range tg.tasks {
			t.interrupt()
		}
		tg.notifyParentLocked(EventGroupContinue, tg.childStatusInfo(kabi.SIGCHLD, kabi.CLDContinued, int32(kabi.SIGCONT)))
	}
}

// discardPendingLocked removes every signal in set from the process-directed
// pending set and from each member task's pending set.
//
// Preconditions: tg.signalHandlers.mu must be locked.
func (tg *ThreadGroup) discardPendingLocked(set kabi.SignalSet) {
	kabi.ForEachSignal(set, func(sig kabi.Signal) {
		tg.pendingSignals.discardSpecific(sig)
	})
	for _, t := range tg.tasks {
		t.mu.Lock()
		kabi.ForEachSignal(set, func(sig kabi.Signal) {
			t.pendingSignals.discardSpecific(sig)
		})
		t.mu.Unlock()
	}
}

// killLocked terminates the process: it records the termination status,
// releases any group stop so parked tasks can observe their fate, and
// interrupts every task so that each exits at its next safe point.
//
// Preconditions: tg.signalHandlers.mu must be locked.
func (tg *ThreadGroup) killLocked(info *kabi.SignalInfo, dump bool) {
	if tg.lifecycle == ProcessZombie {
		return
	}
	sig := kabi.Signal(info.Signo)
	wasStopped := tg.lifecycle == ProcessStopped
	tg.lifecycle = ProcessZombie
	ws := kabi.WaitStatusTerminationSignal(sig)
	if dump {
		ws = ws.WithCoreDump()
	}
	tg.exitStatus = ws
	if wasStopped {
		tg.stopCond.Broadcast()
	}
	for _, t := range tg.tasks {
		t.interrupt()
	}
	log.Infof("Process %d killed by signal %d", tg.id, sig)
	code := int32(kabi.CLDKilled)
	if dump {
		code = kabi.CLDDumped
	}
	tg.notifyParentLocked(EventExit, tg.childStatusInfo(tg.terminationSignal, code, int32(sig)))
}

// exitLocked records a voluntary process exit with the given code.
//
// Preconditions: tg.signalHandlers.mu must be locked.
func (tg *ThreadGroup) exitLocked(code int32) {
	if tg.lifecycle == ProcessZombie {
		return
	}
	wasStopped := tg.lifecycle == ProcessStopped
	tg.lifecycle = ProcessZombie
	tg.exitStatus = kabi.WaitStatusExit(code)
	if wasStopped {
		tg.stopCond.Broadcast()
	}
	for _, t := range tg.tasks {
		t.interrupt()
	}
	tg.notifyParentLocked(EventExit, tg.childStatusInfo(tg.terminationSignal, kabi.CLDExited, code))
}

// initiateGroupStopLocked moves the process into the stopped state on behalf
// of the task delivering a stop signal. Other tasks are interrupted so that
// they park at their next safe point.
//
// Preconditions: tg.signalHandlers.mu must be locked.
func (tg *ThreadGroup) initiateGroupStopLocked(sig kabi.Signal) {
	if tg.lifecycle != ProcessRunning {
		return
	}
	tg.lifecycle = ProcessStopped
	tg.stopStatus = kabi.WaitStatusStopped(sig)
	tg.groupStopWaitable = true
	tg.groupContWaitable = false
	for _, t := range tg.tasks {
		t.interrupt()
	}
	log.Debugf("Process %d stopped by signal %d", tg.id, sig)
	tg.notifyParentLocked(EventChildGroupStop, tg.childStatusInfo(kabi.SIGCHLD, kabi.CLDStopped, int32(sig)))
}

// childStatusInfo builds the SignalInfo sent to the parent for a child
// status change. A zero signal suppresses the send (the queue event is
// still posted).
func (tg *ThreadGroup) childStatusInfo(sig kabi.Signal, code int32, status int32) *kabi.SignalInfo {
	if sig == 0 {
		return nil
	}
	info := &kabi.SignalInfo{
		Signo: int32(sig),
		Code:  code,
	}
	info.SetPID(int32(tg.id))
	info.SetUID(tg.creds.UID)
	info.SetStatus(status)
	return info
}

// notifyParentLocked posts the given event to the parent's event queue and
// sends it the accompanying child-status signal, if any. Stop and continue
// notifications honor the parent's no-child-stop flag.
//
// Preconditions: tg.signalHandlers.mu must be locked. The parent's signal
// mutex must not be held; ancestor mutexes order after descendants'.
func (tg *ThreadGroup) notifyParentLocked(event waiter.EventMask, info *kabi.SignalInfo) {
	p := tg.parent
	if p == nil {
		return
	}
	if info != nil {
		psh := p.signalHandlers
		psh.mu.Lock()
		send := true
		if info.Code == kabi.CLDStopped || info.Code == kabi.CLDContinued {
			if act := psh.actions[kabi.SIGCHLD]; act.Flags&kabi.SigFlagNoCldStop != 0 {
				send = false
			}
		}
		if send && p.lifecycle != ProcessZombie {
			if err := p.sendSignalLocked(info); err != nil {
				log.Debugf("Dropping child-status signal to process %d: %v", p.id, err)
			}
		}
		psh.mu.Unlock()
	}
	p.eventQueue.Notify(event)
}

// PendingSignals returns the set of process-directed pending signals.
func (tg *ThreadGroup) PendingSignals() kabi.SignalSet {
	tg.signalHandlers.mu.Lock()
	defer tg.signalHandlers.mu.Unlock()
	return tg.pendingSignals.set
}
