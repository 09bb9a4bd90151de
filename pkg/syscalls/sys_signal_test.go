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
	"testing"

	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/arch"
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/kernel"
	"kelvin.dev/kelvin/pkg/usermem"
)

const (
	testMemSize    = 0x10000
	testStackTop   = 0xf000
	testTrampoline = 0xe000
	testHandler    = 0x2000
	testPC         = 0x1004

	// Scratch addresses for syscall arguments.
	setAddr    = 0x4000
	oldsetAddr = 0x4100
	actAddr    = 0x4200
	oldactAddr = 0x4300
	statusAddr = 0x4400
)

func newSyscallTask(t *testing.T, k *kernel.Kernel, uid int32, parent *kernel.ThreadGroup) (*kernel.Task, *usermem.BytesIO) {
	t.Helper()
	mem := &usermem.BytesIO{Bytes: make([]byte, testMemSize)}
	ac := arch.NewContext()
	ac.Sp = testStackTop
	ac.Pc = testPC
	var termSig kabi.Signal
	if parent != nil {
		termSig = kabi.SIGCHLD
	}
	_, task, err := k.CreateProcess(kernel.ProcessConfig{
		Image: kernel.TaskImage{
			Memory: mem,
			Arch:   ac,
		},
		Credentials:       kernel.Credentials{UID: uid},
		Parent:            parent,
		TerminationSignal: termSig,
		SignalTrampoline:  testTrampoline,
	})
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	return task, mem
}

func sysArgs(vals ...uintptr) arch.SyscallArguments {
	var args arch.SyscallArguments
	for i, v := range vals {
		args[i].Value = v
	}
	return args
}

func putSigSet(mem *usermem.BytesIO, addr usermem.Addr, mask kabi.SignalSet) {
	usermem.ByteOrder.PutUint64(mem.Bytes[addr:addr+8], uint64(mask))
}

func getSigSet(mem *usermem.BytesIO, addr usermem.Addr) kabi.SignalSet {
	return kabi.SignalSet(usermem.ByteOrder.Uint64(mem.Bytes[addr : addr+8]))
}

func TestSigprocmask(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)

	putSigSet(mem, setAddr, kabi.SignalSetOf(kabi.SIGUSR1))
	if _, _, err := Sigprocmask(task, sysArgs(kabi.SigBlock, setAddr, oldsetAddr, kabi.SignalSetSize)); err != nil {
		t.Fatalf("SigBlock: %v", err)
	}
	if got := task.SignalMask(); got != kabi.SignalSetOf(kabi.SIGUSR1) {
		t.Errorf("mask after block: got %#x", got)
	}
	if got := getSigSet(mem, oldsetAddr); got != 0 {
		t.Errorf("reported old mask: got %#x, want 0", got)
	}

	putSigSet(mem, setAddr, kabi.SignalSetOf(kabi.SIGUSR2))
	if _, _, err := Sigprocmask(task, sysArgs(kabi.SigBlock, setAddr, 0, kabi.SignalSetSize)); err != nil {
		t.Fatalf("second SigBlock: %v", err)
	}
	wantBoth := kabi.SignalSetOf(kabi.SIGUSR1) | kabi.SignalSetOf(kabi.SIGUSR2)
	if got := task.SignalMask(); got != wantBoth {
		t.Errorf("mask after second block: got %#x, want %#x", got, wantBoth)
	}

	putSigSet(mem, setAddr, kabi.SignalSetOf(kabi.SIGUSR1))
	if _, _, err := Sigprocmask(task, sysArgs(kabi.SigUnblock, setAddr, 0, kabi.SignalSetSize)); err != nil {
		t.Fatalf("SigUnblock: %v", err)
	}
	if got := task.SignalMask(); got != kabi.SignalSetOf(kabi.SIGUSR2) {
		t.Errorf("mask after unblock: got %#x", got)
	}

	putSigSet(mem, setAddr, 0)
	if _, _, err := Sigprocmask(task, sysArgs(kabi.SigSetmask, setAddr, 0, kabi.SignalSetSize)); err != nil {
		t.Fatalf("SigSetmask: %v", err)
	}
	if got := task.SignalMask(); got != 0 {
		t.Errorf("mask after setmask: got %#x, want 0", got)
	}
}

func TestSigprocmaskErrors(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)
	putSigSet(mem, setAddr, kabi.SignalSetOf(kabi.SIGUSR1))

	if _, _, err := Sigprocmask(task, sysArgs(99, setAddr, 0, kabi.SignalSetSize)); err != kernelerr.EINVAL {
		t.Errorf("bad how: got %v, want EINVAL", err)
	}
	if _, _, err := Sigprocmask(task, sysArgs(kabi.SigBlock, setAddr, 0, 4)); err != kernelerr.EINVAL {
		t.Errorf("bad sigsetsize: got %v, want EINVAL", err)
	}
	if _, _, err := Sigprocmask(task, sysArgs(kabi.SigBlock, testMemSize, 0, kabi.SignalSetSize)); err != kernelerr.EFAULT {
		t.Errorf("unmapped set: got %v, want EFAULT", err)
	}
}

func TestSigprocmaskStripsUnblockable(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)
	putSigSet(mem, setAddr, kabi.SignalSet(^uint64(0)))
	if _, _, err := Sigprocmask(task, sysArgs(kabi.SigSetmask, setAddr, 0, kabi.SignalSetSize)); err != nil {
		t.Fatalf("SigSetmask: %v", err)
	}
	mask := task.SignalMask()
	if mask&kabi.SignalSetOf(kabi.SIGKILL) != 0 || mask&kabi.SignalSetOf(kabi.SIGSTOP) != 0 {
		t.Errorf("unblockable signals in mask: %#x", mask)
	}
}

func TestSigactionRoundTrip(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)

	want := kabi.SigAction{
		Handler:  testHandler,
		Flags:    kabi.SigFlagSigInfo | kabi.SigFlagRestart,
		Restorer: testTrampoline,
		Mask:     kabi.SignalSetOf(kabi.SIGUSR2),
	}
	usermem.ByteOrder.PutUint64(mem.Bytes[actAddr:], want.Handler)
	usermem.ByteOrder.PutUint64(mem.Bytes[actAddr+8:], want.Flags)
	usermem.ByteOrder.PutUint64(mem.Bytes[actAddr+16:], want.Restorer)
	usermem.ByteOrder.PutUint64(mem.Bytes[actAddr+24:], uint64(want.Mask))

	if _, _, err := Sigaction(task, sysArgs(uintptr(kabi.SIGUSR1), actAddr, 0, kabi.SignalSetSize)); err != nil {
		t.Fatalf("install: %v", err)
	}
	// Fetch it back through the old-action pointer.
	if _, _, err := Sigaction(task, sysArgs(uintptr(kabi.SIGUSR1), 0, oldactAddr, kabi.SignalSetSize)); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got := kabi.SigAction{
		Handler:  usermem.ByteOrder.Uint64(mem.Bytes[oldactAddr:]),
		Flags:    usermem.ByteOrder.Uint64(mem.Bytes[oldactAddr+8:]),
		Restorer: usermem.ByteOrder.Uint64(mem.Bytes[oldactAddr+16:]),
		Mask:     kabi.SignalSet(usermem.ByteOrder.Uint64(mem.Bytes[oldactAddr+24:])),
	}
	if got != want {
		t.Errorf("action round trip: got %+v, want %+v", got, want)
	}
}

func TestSigactionErrors(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)
	usermem.ByteOrder.PutUint64(mem.Bytes[actAddr:], testHandler)

	if _, _, err := Sigaction(task, sysArgs(uintptr(kabi.SIGKILL), actAddr, 0, kabi.SignalSetSize)); err != kernelerr.EINVAL {
		t.Errorf("SIGKILL action: got %v, want EINVAL", err)
	}
	if _, _, err := Sigaction(task, sysArgs(uintptr(kabi.SIGUSR1), actAddr, 0, 4)); err != kernelerr.EINVAL {
		t.Errorf("bad sigsetsize: got %v, want EINVAL", err)
	}
	if _, _, err := Sigaction(task, sysArgs(0, actAddr, 0, kabi.SignalSetSize)); err != kernelerr.EINVAL {
		t.Errorf("signal 0 action: got %v, want EINVAL", err)
	}
}

func TestKill(t *testing.T) {
	k := kernel.New()
	sender, _ := newSyscallTask(t, k, 0, nil)
	target, _ := newSyscallTask(t, k, 1000, nil)
	target.SetSignalMask(kabi.SignalSetOf(kabi.SIGUSR1))
	tgid := uintptr(target.ThreadGroup().ID())

	// Root may signal a process running as another user.
	if _, _, err := Kill(sender, sysArgs(tgid, uintptr(kabi.SIGUSR1))); err != nil {
		t.Fatalf("Kill as root: %v", err)
	}
	if target.ThreadGroup().PendingSignals()&kabi.SignalSetOf(kabi.SIGUSR1) == 0 {
		t.Errorf("signal not pending on target")
	}
}

func TestKillPermissions(t *testing.T) {
	k := kernel.New()
	sender, _ := newSyscallTask(t, k, 1000, nil)
	sameUID, _ := newSyscallTask(t, k, 1000, nil)
	otherUID, _ := newSyscallTask(t, k, 2000, nil)
	sameUID.SetSignalMask(kabi.SignalSetOf(kabi.SIGUSR1))

	if _, _, err := Kill(sender, sysArgs(uintptr(sameUID.ThreadGroup().ID()), uintptr(kabi.SIGUSR1))); err != nil {
		t.Errorf("Kill same uid: %v", err)
	}
	if _, _, err := Kill(sender, sysArgs(uintptr(otherUID.ThreadGroup().ID()), uintptr(kabi.SIGUSR1))); err != kernelerr.EPERM {
		t.Errorf("Kill cross uid: got %v, want EPERM", err)
	}
}

func TestKillProbe(t *testing.T) {
	k := kernel.New()
	sender, _ := newSyscallTask(t, k, 0, nil)
	target, _ := newSyscallTask(t, k, 0, nil)

	// Signal 0 checks without sending.
	if _, _, err := Kill(sender, sysArgs(uintptr(target.ThreadGroup().ID()), 0)); err != nil {
		t.Errorf("probe: %v", err)
	}
	if target.PendingSignals() != 0 || target.ThreadGroup().PendingSignals() != 0 {
		t.Errorf("probe enqueued a signal")
	}
	if _, _, err := Kill(sender, sysArgs(12345, 0)); err != kernelerr.ESRCH {
		t.Errorf("probe of unknown pid: got %v, want ESRCH", err)
	}
	if _, _, err := Kill(sender, sysArgs(0, uintptr(kabi.SIGUSR1))); err != kernelerr.EINVAL {
		t.Errorf("pid 0: got %v, want EINVAL", err)
	}
}

func TestTkill(t *testing.T) {
	k := kernel.New()
	sender, _ := newSyscallTask(t, k, 0, nil)
	target, _ := newSyscallTask(t, k, 0, nil)
	target.SetSignalMask(kabi.SignalSetOf(kabi.SIGUSR1))

	if _, _, err := Tkill(sender, sysArgs(uintptr(target.ID()), uintptr(kabi.SIGUSR1))); err != nil {
		t.Fatalf("Tkill: %v", err)
	}
	// Task-directed, not process-directed.
	if target.PendingSignals()&kabi.SignalSetOf(kabi.SIGUSR1) == 0 {
		t.Errorf("signal not pending on target task")
	}
	if target.ThreadGroup().PendingSignals() != 0 {
		t.Errorf("task-directed send landed on the process queue")
	}
}

func TestTgkill(t *testing.T) {
	k := kernel.New()
	sender, _ := newSyscallTask(t, k, 0, nil)
	target, _ := newSyscallTask(t, k, 0, nil)
	target.SetSignalMask(kabi.SignalSetOf(kabi.SIGUSR1))
	tgid := uintptr(target.ThreadGroup().ID())
	tid := uintptr(target.ID())

	// Mismatched process id must not reach the task.
	if _, _, err := Tgkill(sender, sysArgs(uintptr(sender.ThreadGroup().ID()), tid, uintptr(kabi.SIGUSR1))); err != kernelerr.ESRCH {
		t.Errorf("mismatched tgid: got %v, want ESRCH", err)
	}
	if _, _, err := Tgkill(sender, sysArgs(tgid, tid, uintptr(kabi.SIGUSR1))); err != nil {
		t.Fatalf("Tgkill: %v", err)
	}
	if target.PendingSignals()&kabi.SignalSetOf(kabi.SIGUSR1) == 0 {
		t.Errorf("signal not pending on target task")
	}
}

func TestRestartSyscallWithoutInterrupt(t *testing.T) {
	k := kernel.New()
	task, _ := newSyscallTask(t, k, 0, nil)
	// Restart is carried out by rewinding the program counter, never via a
	// restart block, so a direct invocation has nothing to resume.
	if _, _, err := RestartSyscall(task, sysArgs()); err != kernelerr.EINTR {
		t.Errorf("RestartSyscall: got %v, want EINTR", err)
	}
}

func TestSigpending(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)
	task.SetSignalMask(kabi.SignalSetOf(kabi.SIGUSR1))
	if err := task.SendSignal(&kabi.SignalInfo{Signo: int32(kabi.SIGUSR1)}); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if _, _, err := Sigpending(task, sysArgs(setAddr)); err != nil {
		t.Fatalf("Sigpending: %v", err)
	}
	if got := getSigSet(mem, setAddr); got != kabi.SignalSetOf(kabi.SIGUSR1) {
		t.Errorf("pending set: got %#x, want %#x", got, kabi.SignalSetOf(kabi.SIGUSR1))
	}
}

func TestSigpendingReportsUnblocked(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)
	// SIGUSR1 is not blocked and SIGUSR2 is process-directed; both stay
	// visible until a delivery pass consumes them.
	if err := task.SendSignal(&kabi.SignalInfo{Signo: int32(kabi.SIGUSR1)}); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if err := task.ThreadGroup().SendSignal(&kabi.SignalInfo{Signo: int32(kabi.SIGUSR2)}); err != nil {
		t.Fatalf("ThreadGroup.SendSignal: %v", err)
	}
	if _, _, err := Sigpending(task, sysArgs(setAddr)); err != nil {
		t.Fatalf("Sigpending: %v", err)
	}
	want := kabi.MakeSignalSet(kabi.SIGUSR1, kabi.SIGUSR2)
	if got := getSigSet(mem, setAddr); got != want {
		t.Errorf("pending set: got %#x, want %#x", got, want)
	}
}

func TestSigpendingStandardRangeOnly(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)
	rt := kabi.Signal(40)
	task.SetSignalMask(kabi.SignalSetOf(rt))
	if err := task.SendSignal(&kabi.SignalInfo{Signo: int32(rt)}); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if _, _, err := Sigpending(task, sysArgs(setAddr)); err != nil {
		t.Fatalf("Sigpending: %v", err)
	}
	if got := getSigSet(mem, setAddr); got != 0 {
		t.Errorf("pending set: got %#x, want 0 (signal %d is outside the standard range)", got, rt)
	}
}

func TestSigaltstack(t *testing.T) {
	k := kernel.New()
	task, mem := newSyscallTask(t, k, 0, nil)

	// Record a disabled stack.
	usermem.ByteOrder.PutUint64(mem.Bytes[setAddr:], 0x7000)
	usermem.ByteOrder.PutUint32(mem.Bytes[setAddr+8:], kabi.SignalStackFlagDisable)
	usermem.ByteOrder.PutUint64(mem.Bytes[setAddr+16:], 0x1000)
	if _, _, err := Sigaltstack(task, sysArgs(setAddr, 0)); err != nil {
		t.Fatalf("Sigaltstack: %v", err)
	}
	if _, _, err := Sigaltstack(task, sysArgs(0, oldsetAddr)); err != nil {
		t.Fatalf("Sigaltstack fetch: %v", err)
	}
	if got := usermem.ByteOrder.Uint64(mem.Bytes[oldsetAddr:]); got != 0x7000 {
		t.Errorf("fetched stack base: got %#x, want 0x7000", got)
	}

	// Any flag other than the disable flag is rejected.
	usermem.ByteOrder.PutUint32(mem.Bytes[setAddr+8:], 0x8000)
	if _, _, err := Sigaltstack(task, sysArgs(setAddr, 0)); err != kernelerr.EINVAL {
		t.Errorf("bad flags: got %v, want EINVAL", err)
	}
}

func TestWait4(t *testing.T) {
	k := kernel.New()
	parent, mem := newSyscallTask(t, k, 0, nil)
	child, _ := newSyscallTask(t, k, 0, parent.ThreadGroup())
	pid := uintptr(child.ThreadGroup().ID())

	// Nothing to report yet.
	rv, _, err := Wait4(parent, sysArgs(pid, statusAddr, WNOHANG))
	if err != nil || rv != 0 {
		t.Fatalf("WNOHANG with running child: got (%d, %v), want (0, nil)", rv, err)
	}

	child.ExitGroup(3)
	rv, _, err = Wait4(parent, sysArgs(pid, statusAddr, WNOHANG))
	if err != nil {
		t.Fatalf("Wait4: %v", err)
	}
	if rv != pid {
		t.Errorf("returned pid: got %d, want %d", rv, pid)
	}
	ws := kabi.WaitStatus(usermem.ByteOrder.Uint32(mem.Bytes[statusAddr:]))
	if !ws.Exited() || ws.ExitStatus() != 3 {
		t.Errorf("status: got %v, want exit 3", ws)
	}
}

func TestWait4Errors(t *testing.T) {
	k := kernel.New()
	parent, _ := newSyscallTask(t, k, 0, nil)

	if _, _, err := Wait4(parent, sysArgs(0, statusAddr, WNOHANG)); err != kernelerr.EINVAL {
		t.Errorf("pid 0: got %v, want EINVAL", err)
	}
	if _, _, err := Wait4(parent, sysArgs(1234, statusAddr, 0x40)); err != kernelerr.EINVAL {
		t.Errorf("unknown options: got %v, want EINVAL", err)
	}
	if _, _, err := Wait4(parent, sysArgs(12345, statusAddr, WNOHANG)); err != kernelerr.ECHILD {
		t.Errorf("unknown pid: got %v, want ECHILD", err)
	}
}
