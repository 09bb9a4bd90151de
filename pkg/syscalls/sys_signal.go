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

package syscalls

import (
	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/arch"
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/kernel"
	"kelvin.dev/kelvin/pkg/log"
	"kelvin.dev/kelvin/pkg/usermem"
)

// mayKill returns true if the calling task is permitted to signal the target
// process: root may signal anything, everyone else only processes running as
// the same user.
func mayKill(t *kernel.Task, target *kernel.ThreadGroup) bool {
	creds := t.ThreadGroup().Credentials()
	return creds.UID == 0 || creds.UID == target.Credentials().UID
}

// Sigaction implements the action-registration syscall.
func Sigaction(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	sig := kabi.Signal(args[0].Int())
	newactAddr := args[1].Pointer()
	oldactAddr := args[2].Pointer()
	sigsetsize := args[3].SizeT()

	if sigsetsize != kabi.SignalSetSize {
		return 0, nil, kernelerr.EINVAL
	}
	var newactPtr *kabi.SigAction
	if newactAddr != 0 {
		newact, err := copyInSigAction(t, newactAddr)
		if err != nil {
			return 0, nil, err
		}
		newactPtr = &newact
	}
	oldact, err := t.SetSigAction(sig, newactPtr)
	if err != nil {
		return 0, nil, err
	}
	if oldactAddr != 0 {
		if err := copyOutSigAction(t, oldactAddr, oldact); err != nil {
			return 0, nil, err
		}
	}
	return 0, nil, nil
}

// Sigprocmask implements the mask-manipulation syscall.
func Sigprocmask(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	how := args[0].Int()
	setAddr := args[1].Pointer()
	oldsetAddr := args[2].Pointer()
	sigsetsize := args[3].SizeT()

	oldmask := t.SignalMask()
	if setAddr != 0 {
		mask, err := copyInSigSet(t, setAddr, sigsetsize)
		if err != nil {
			return 0, nil, err
		}
		switch how {
		case kabi.SigBlock:
			t.SetSignalMask(oldmask | mask)
		case kabi.SigUnblock:
			t.SetSignalMask(oldmask &^ mask)
		case kabi.SigSetmask:
			t.SetSignalMask(mask)
		default:
			return 0, nil, kernelerr.EINVAL
		}
	} else if sigsetsize != kabi.SignalSetSize {
		return 0, nil, kernelerr.EINVAL
	}
	if oldsetAddr != 0 {
		if err := copyOutSigSet(t, oldsetAddr, oldmask); err != nil {
			return 0, nil, err
		}
	}
	return 0, nil, nil
}

// Sigpending implements the pending-set query syscall.
func Sigpending(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	setAddr := args[0].Pointer()
	// The full task and process union is reported regardless of the mask,
	// limited to the standard signal range.
	pending := t.PendingSignals() & kabi.StdSignalSet
	return 0, nil, copyOutSigSet(t, setAddr, pending)
}

// Sigsuspend implements the atomic swap-mask-and-wait syscall. The
// temporary mask stays in force until a handler delivery captures the
// original mask into its frame, or until the wait ends without one.
func Sigsuspend(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	maskAddr := args[0].Pointer()

	mask, err := copyInSigSet(t, maskAddr, kabi.SignalSetSize)
	if err != nil {
		return 0, nil, err
	}
	oldmask := t.SignalMask()
	t.SetSignalMask(mask)
	t.SetSavedSignalMask(oldmask)

	// Wait for a signal; the wait only ever ends by interruption.
	_ = t.Block(nil)
	return 0, nil, kernelerr.ERESTARTNOHAND
}

// Pause implements the wait-for-signal syscall.
func Pause(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	_ = t.Block(nil)
	return 0, nil, kernelerr.ERESTARTNOHAND
}

// RestartSyscall implements the restart entry point. Interrupted syscalls
// in this kernel restart by rewinding the program counter and re-executing
// their original number, so there is never a restart block to resume; a
// direct invocation from user mode reports EINTR.
func RestartSyscall(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	log.Debugf("Task %d invoked restart with no interrupted syscall", t.ID())
	return 0, nil, kernelerr.EINTR
}

// Kill implements the process-directed send syscall. Signal 0 performs the
// existence and permission checks without sending.
func Kill(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	pid := kernel.ThreadID(args[0].Int())
	sig := kabi.Signal(args[1].Int())

	// Process group and broadcast targets are outside this kernel's scope.
	if pid <= 0 {
		return 0, nil, kernelerr.EINVAL
	}
	target := t.Kernel().TaskSet().ThreadGroupWithID(pid)
	if target == nil {
		return 0, nil, kernelerr.ESRCH
	}
	if !mayKill(t, target) {
		return 0, nil, kernelerr.EPERM
	}
	if sig == 0 {
		return 0, nil, nil
	}
	info := kernel.SignalInfoNoInfo(sig, t)
	return 0, nil, target.SendSignal(info)
}

// Tkill implements the task-directed send syscall.
func Tkill(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	tid := kernel.ThreadID(args[0].Int())
	sig := kabi.Signal(args[1].Int())

	if tid <= 0 {
		return 0, nil, kernelerr.EINVAL
	}
	target := t.Kernel().TaskSet().TaskWithID(tid)
	if target == nil {
		return 0, nil, kernelerr.ESRCH
	}
	if !mayKill(t, target.ThreadGroup()) {
		return 0, nil, kernelerr.EPERM
	}
	if sig == 0 {
		return 0, nil, nil
	}
	info := kernel.SignalInfoNoInfo(sig, t)
	info.Code = kabi.SignalInfoTkill
	return 0, nil, target.SendSignal(info)
}

// Tgkill is Tkill restricted to a task of the named process.
func Tgkill(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	tgid := kernel.ThreadID(args[0].Int())
	tid := kernel.ThreadID(args[1].Int())
	sig := kabi.Signal(args[2].Int())

	if tgid <= 0 || tid <= 0 {
		return 0, nil, kernelerr.EINVAL
	}
	target := t.Kernel().TaskSet().TaskWithID(tid)
	if target == nil || target.ThreadGroup().ID() != tgid {
		return 0, nil, kernelerr.ESRCH
	}
	if !mayKill(t, target.ThreadGroup()) {
		return 0, nil, kernelerr.EPERM
	}
	if sig == 0 {
		return 0, nil, nil
	}
	info := kernel.SignalInfoNoInfo(sig, t)
	info.Code = kabi.SignalInfoTkill
	return 0, nil, target.SendSignal(info)
}

// Sigreturn implements the return-from-handler syscall. The machine context
// is restored from the handler frame, so the return value register must be
// left alone.
func Sigreturn(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	rs := t.SignalReturn()
	return 0, &kernel.SyscallControl{Run: rs, IgnoreReturn: true}, nil
}

// Sigaltstack implements the alternate-stack record syscall. The stack is
// recorded but never used for delivery.
func Sigaltstack(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	newAddr := args[0].Pointer()
	oldAddr := args[1].Pointer()

	if oldAddr != 0 {
		if err := copyOutSignalStack(t, oldAddr, t.SignalStack()); err != nil {
			return 0, nil, err
		}
	}
	if newAddr != 0 {
		ss, err := copyInSignalStack(t, newAddr)
		if err != nil {
			return 0, nil, err
		}
		if ss.Flags&^kabi.SignalStackFlagDisable != 0 {
			return 0, nil, kernelerr.EINVAL
		}
		t.SetSignalStack(ss)
	}
	return 0, nil, nil
}

// ExitGroup implements the process-exit syscall.
func ExitGroup(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	code := args[0].Int()
	rs := t.ExitGroup(code)
	return 0, &kernel.SyscallControl{Run: rs, IgnoreReturn: true}, nil
}

// Wait options.
const (
	WNOHANG = 1
)

// Wait4 implements the child-status collection syscall for a single child
// process named by pid.
func Wait4(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	pid := kernel.ThreadID(args[0].Int())
	statusAddr := args[1].Pointer()
	options := args[2].Uint()

	if options&^WNOHANG != 0 {
		return 0, nil, kernelerr.EINVAL
	}
	if pid <= 0 {
		// Wait-for-any requires child enumeration, which this kernel does
		// not retain; the parent names the child.
		return 0, nil, kernelerr.EINVAL
	}
	child := t.Kernel().TaskSet().ThreadGroupWithID(pid)
	if child == nil {
		return 0, nil, kernelerr.ECHILD
	}
	ws, err := t.WaitChild(child, options&WNOHANG == 0)
	if err == kernelerr.EAGAIN {
		// WNOHANG with nothing to report.
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, kernelerr.ConvertIntr(err, kernelerr.ERESTARTSYS)
	}
	if statusAddr != 0 {
		var b [4]byte
		usermem.ByteOrder.PutUint32(b[:], uint32(ws))
		n, cerr := t.Memory().CopyOut(statusAddr, b[:])
		if cerr := usermem.CheckFullCopy(n, len(b), cerr); cerr != nil {
			return 0, nil, kernelerr.EFAULT
		}
	}
	return uintptr(pid), nil, nil
}
