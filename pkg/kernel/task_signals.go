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

// This file defines the behavior of signals at the task level: sending,
// masking, and the safe point delivery pass.

import (
	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/abi/kabi/errno"
	"kelvin.dev/kelvin/pkg/bits"
	"kelvin.dev/kelvin/pkg/errors"
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/log"
	"kelvin.dev/kelvin/pkg/waiter"
)

// SignalMask returns the current signal mask.
func (t *Task) SignalMask() kabi.SignalSet {
	return kabi.SignalSet(t.signalMask.Load())
}

// SetSignalMask sets the signal mask. Unblockable signals are silently
// stripped, so the mask can never block SIGKILL or SIGSTOP. If the new mask
// exposes a pending signal, the task is flagged for delivery at its next
// safe point.
//
// Only the task goroutine may call SetSignalMask.
func (t *Task) SetSignalMask(mask kabi.SignalSet) {
	mask &^= UnblockableSignals
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	defer sh.mu.Unlock()
	t.mu.Lock()
	t.signalMask.Store(uint64(mask))
	deliverable := (t.pendingSignals.set | t.tg.pendingSignals.set) &^ mask
	t.mu.Unlock()
	if deliverable != 0 {
		t.interrupt()
	}
}

// SetSavedSignalMask arms restoration of the given mask once the current
// interruptible wait ends: a delivered handler sees it as the mask to
// restore on return, and an uneventful safe point pass reinstates it
// directly. This is the suspend syscall's half of the atomic
// swap-mask-and-wait contract.
//
// Only the task goroutine may call SetSavedSignalMask.
func (t *Task) SetSavedSignalMask(mask kabi.SignalSet) {
	t.savedSignalMask = mask
	t.haveSavedSignalMask = true
}

// restoreSavedSignalMask reinstates a mask armed by SetSavedSignalMask.
func (t *Task) restoreSavedSignalMask() {
	if t.haveSavedSignalMask {
		t.haveSavedSignalMask = false
		t.SetSignalMask(t.savedSignalMask)
	}
}

// PendingSignals returns the set of signals pending for this task, including
// process-directed signals any member could deliver.
func (t *Task) PendingSignals() kabi.SignalSet {
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	defer sh.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingSignals.set | t.tg.pendingSignals.set
}

// SignalStack returns the recorded alternate signal stack.
func (t *Task) SignalStack() kabi.SignalStack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signalStack
}

// SetSignalStack records an alternate signal stack. The stack is a reserved
// extension point: delivery never places a frame on it.
func (t *Task) SetSignalStack(ss kabi.SignalStack) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signalStack = ss
}

// SetSigAction atomically sets the action for the given signal and returns
// the old action. A nil actPtr only fetches.
func (t *Task) SetSigAction(sig kabi.Signal, actPtr *kabi.SigAction) (kabi.SigAction, error) {
	if !sig.IsValid() {
		return kabi.SigAction{}, kernelerr.EINVAL
	}
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old := sh.actions[sig]
	if actPtr != nil {
		// The dispositions of the unblockable signals are forced.
		if sig == kabi.SIGKILL || sig == kabi.SIGSTOP {
			return old, kernelerr.EINVAL
		}
		act := *actPtr
		act.Mask &^= UnblockableSignals
		sh.actions[sig] = act
	}
	return old, nil
}

// SendSignal sends the given task-directed signal. The disposition is still
// resolved against the process's action table, at delivery time.
func (t *Task) SendSignal(info *kabi.SignalInfo) error {
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return t.sendSignalLocked(info)
}

// sendSignalLocked is the task-directed send path.
//
// Preconditions: t.tg.signalHandlers.mu must be locked.
func (t *Task) sendSignalLocked(info *kabi.SignalInfo) error {
	sig := kabi.Signal(info.Signo)
	if !sig.IsValid() {
		return kernelerr.EINVAL
	}
	if t.tg.lifecycle == ProcessZombie {
		return kernelerr.ESRCH
	}

	// Generation-time side effects are process-wide even for task-directed
	// sends.
	t.tg.prepareSignalLocked(sig)

	if sig == kabi.SIGKILL {
		t.tg.killLocked(info, false)
		return nil
	}

	t.mu.Lock()
	enqueued := t.pendingSignals.enqueue(info)
	deliverable := t.canReceiveSignalImmediatelyLocked(sig)
	t.mu.Unlock()
	if !enqueued {
		log.Debugf("Signal %d coalesced into pending set of task %d", sig, t.tid)
		return nil
	}
	if deliverable {
		// Set the pending flag and wake the target before returning to the
		// sender, so the target cannot sleep past this signal.
		t.notifyAndInterrupt(sig)
	} else {
		t.signalQueue.Notify(waiter.EventMask(kabi.SignalSetOf(sig)))
	}
	return nil
}

// canReceiveSignalImmediatelyLocked returns true if sig would be delivered
// at the task's next safe point under its current mask.
//
// Preconditions: t.mu must be locked.
func (t *Task) canReceiveSignalImmediatelyLocked(sig kabi.Signal) bool {
	return kabi.SignalSet(t.signalMask.RacyLoad())&kabi.SignalSetOf(sig) == 0
}

// DeliverPendingSignals is the safe point pass, run on every return to user
// mode. It delivers deliverable signals in ascending signal number order,
// applying kernel dispositions inline and at most one user handler frame per
// pass; remaining signals are picked up at subsequent safe points (the
// return-from-handler syscall being one).
//
// The fast path acquires no locks: if the task's pending flag is clear, no
// deliverable signal can exist and the pass completes immediately.
//
// Only the task goroutine may call DeliverPendingSignals.
func (t *Task) DeliverPendingSignals() RunState {
	if !t.signalPending.Load() {
		t.restoreSavedSignalMask()
		t.completeSyscallRestart()
		return RunApp
	}

	for {
		switch t.tg.State() {
		case ProcessZombie:
			return RunExit
		case ProcessStopped:
			t.doStop()
			continue
		}

		info, act, ok := t.dequeueSignal()
		if !ok {
			t.restoreSavedSignalMask()
			t.completeSyscallRestart()
			return RunApp
		}

		sig := kabi.Signal(info.Signo)
		switch computeAction(sig, act) {
		case SignalActionTerm:
			t.tg.kill(info, false)
			return RunExit

		case SignalActionCore:
			t.tg.kill(info, true)
			return RunExit

		case SignalActionStop:
			t.beginGroupStop(sig)
			// Park here; once continued, the loop resumes delivery.
			t.doStop()

		case SignalActionIgnore, SignalActionCont:
			// Continue takes effect at generation time; by delivery there is
			// nothing left to do.
			log.Debugf("Discarding ignored signal %d for task %d", sig, t.tid)

		case SignalActionHandler:
			if err := t.deliverSignalToHandler(info, &act); err != nil {
				// The handler frame could not be placed on the user stack.
				// The process cannot make progress, so it dies as if by an
				// unhandleable memory fault.
				log.Warningf("Task %d failed to write signal frame for signal %d: %v", t.tid, sig, err)
				t.tg.kill(SignalInfoPriv(kabi.SIGSEGV), true)
				return RunExit
			}
			return RunApp
		}
	}
}

// dequeueSignal removes and returns the lowest-numbered deliverable signal,
// preferring the task-directed instance when both pending sets carry the
// same number, along with the action in force for it. When nothing is
// deliverable it clears the pending fast path flag, under both signal
// mutexes so no concurrent send can be lost.
func (t *Task) dequeueSignal() (*kabi.SignalInfo, kabi.SigAction, bool) {
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t.mu.Lock()
	// The mask cannot contain unblockable signals (SetSignalMask strips
	// them), so masking the union can never hide SIGKILL or SIGSTOP.
	mask := kabi.SignalSet(t.signalMask.RacyLoad())
	deliverable := (t.pendingSignals.set | t.tg.pendingSignals.set) &^ mask
	if deliverable == 0 {
		t.signalPending.Store(false)
		t.unsetInterrupted()
		t.mu.Unlock()
		return nil, kabi.SigAction{}, false
	}
	// Lowest number first across the union; on a tie between the two
	// pending sets, the task-directed instance wins.
	sig := kabi.Signal(bits.TrailingZeros64(uint64(deliverable)) + 1)
	info := t.pendingSignals.dequeueSpecific(sig)
	t.mu.Unlock()
	if info == nil {
		info = t.tg.pendingSignals.dequeueSpecific(sig)
	}

	act := sh.dequeueActionLocked(sig)
	return info, act, true
}

// unsetInterrupted consumes a leftover interrupt token so the next sleep is
// not spuriously interrupted.
//
// Preconditions: t.tg.signalHandlers.mu must be locked (all interrupt
// sources hold it).
func (t *Task) unsetInterrupted() {
	select {
	case <-t.interruptChan:
	default:
	}
}

// beginGroupStop initiates a group stop on behalf of this task's delivery of
// sig.
func (t *Task) beginGroupStop(sig kabi.Signal) {
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	defer sh.mu.Unlock()
	t.tg.initiateGroupStopLocked(sig)
}

// doStop parks the task until its process is no longer stopped.
func (t *Task) doStop() {
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	for t.tg.lifecycle == ProcessStopped {
		t.tg.stopCond.Wait()
	}
	sh.mu.Unlock()
}

// deliverSignalToHandler arranges for the task to enter the registered
// handler at its next return to user mode: it resolves any pending syscall
// restart against the action's restart flag, pushes the handler frame, and
// applies the handler mask.
func (t *Task) deliverSignalToHandler(info *kabi.SignalInfo, act *kabi.SigAction) error {
	sig := kabi.Signal(info.Signo)

	// Translate an interrupted syscall's restart sentinel before the
	// registers are captured into the frame, so a restart happens
	// transparently when the handler returns.
	if t.haveSyscallReturn {
		t.haveSyscallReturn = false
		if sre, ok := kernelerr.SyscallRestartErrorFromReturn(t.image.Arch.Return()); ok {
			switch {
			case kernelerr.Equals(kernelerr.ERESTARTNOHAND, sre):
				t.image.Arch.SetReturn(errnoReturn(errno.EINTR))
			case kernelerr.Equals(kernelerr.ERESTARTSYS, sre) && !act.IsRestart():
				t.image.Arch.SetReturn(errnoReturn(errno.EINTR))
			default:
				t.image.Arch.RestartSyscall()
			}
		}
	}

	// The mask restored when the handler returns is the one in force before
	// delivery; a suspend-armed mask takes its place, completing the
	// suspend round trip.
	t.mu.Lock()
	oldMask := kabi.SignalSet(t.signalMask.RacyLoad())
	if t.haveSavedSignalMask {
		oldMask = t.savedSignalMask
		t.haveSavedSignalMask = false
	}
	newMask := kabi.SignalSet(t.signalMask.RacyLoad()) | act.Mask
	if !act.IsNoDefer() {
		newMask |= kabi.SignalSetOf(sig)
	}
	t.signalMask.Store(uint64(newMask &^ UnblockableSignals))
	t.mu.Unlock()

	if err := t.image.Arch.SignalSetup(t.userStack(), act, info, oldMask, t.tg.signalTrampoline); err != nil {
		// Delivery failed after the mask update; restore it so the failure
		// is observable in a consistent state.
		t.SetSignalMask(oldMask)
		return err
	}
	log.Debugf("Task %d delivering signal %d to handler %#x", t.tid, sig, act.Handler)
	return nil
}

// SignalReturn implements the return-from-handler syscall: it restores the
// machine context and signal mask captured at delivery. A frame that does
// not carry the magic is a protocol violation fatal to the process.
//
// Only the task goroutine may call SignalReturn.
func (t *Task) SignalReturn() RunState {
	oldMask, err := t.image.Arch.SignalRestore(t.userStack())
	if err != nil {
		log.Warningf("Task %d signal frame restore failed: %v", t.tid, err)
		t.tg.kill(SignalInfoPriv(kabi.SIGKILL), false)
		return RunExit
	}
	t.SetSignalMask(oldMask)
	return RunApp
}

// SetSyscallReturn records the outcome of the current syscall in the return
// value register, encoding errors as negative errnos (including the
// kernel-internal restart sentinels), and marks the register meaningful to
// the next safe point pass's restart translation.
//
// Only the task goroutine may call SetSyscallReturn.
func (t *Task) SetSyscallReturn(rv uintptr, err error) {
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			rv = errnoReturn(e.Errno())
		} else {
			log.Warningf("Task %d syscall failed with non-errno error: %v", t.tid, err)
			rv = errnoReturn(errno.EINVAL)
		}
	}
	t.image.Arch.SetReturn(rv)
	t.haveSyscallReturn = true
}

// errnoReturn encodes an errno as the negative syscall return value.
func errnoReturn(e errno.Errno) uintptr {
	return uintptr(-int64(e))
}

// completeSyscallRestart converts a lingering restart sentinel into a
// transparent restart. By this point no handler has intervened, so all
// three sentinels restart.
func (t *Task) completeSyscallRestart() {
	if !t.haveSyscallReturn {
		return
	}
	t.haveSyscallReturn = false
	if _, ok := kernelerr.SyscallRestartErrorFromReturn(t.image.Arch.Return()); ok {
		t.image.Arch.RestartSyscall()
	}
}

// kill is killLocked behind the process signal mutex.
func (tg *ThreadGroup) kill(info *kabi.SignalInfo, dump bool) {
	tg.signalHandlers.mu.Lock()
	defer tg.signalHandlers.mu.Unlock()
	tg.killLocked(info, dump)
}
