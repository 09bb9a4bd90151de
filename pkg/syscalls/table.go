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

// Package syscalls implements the signal family of the Kelvin syscall ABI
// on top of the kernel package, along with the dispatch path that runs the
// signal delivery pass on every return to user mode.
package syscalls

import (
	"kelvin.dev/kelvin/pkg/arch"
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/kernel"
	"kelvin.dev/kelvin/pkg/log"
)

// Syscall numbers. The assignment follows the generic 64-bit convention so
// user-mode runtimes can reuse stock tables.
const (
	SysExitGroup      = 94
	SysRestartSyscall = 128
	SysKill           = 129
	SysTkill          = 130
	SysTgkill         = 131
	SysSigaltstack    = 132
	SysSigsuspend     = 133
	SysSigaction      = 134
	SysSigprocmask    = 135
	SysSigpending     = 136
	SysSigreturn      = 139
	SysPause          = 140
	SysWait4          = 260
)

// Fn is the syscall implementation prototype.
type Fn func(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error)

// Table maps syscall numbers to implementations.
type Table struct {
	table map[uintptr]Fn
}

// NewTable returns a Table with the signal family registered.
func NewTable() *Table {
	return &Table{table: map[uintptr]Fn{
		SysExitGroup:      ExitGroup,
		SysRestartSyscall: RestartSyscall,
		SysKill:           Kill,
		SysTkill:          Tkill,
		SysTgkill:         Tgkill,
		SysSigaltstack:    Sigaltstack,
		SysSigsuspend:     Sigsuspend,
		SysSigaction:      Sigaction,
		SysSigprocmask:    Sigprocmask,
		SysSigpending:     Sigpending,
		SysSigreturn:      Sigreturn,
		SysPause:          Pause,
		SysWait4:          Wait4,
	}}
}

// Dispatch invokes the syscall selected by the task's trap frame, records
// its outcome in the return register, and runs the signal delivery pass the
// return to user mode constitutes. The returned RunState tells the trap
// plumbing whether the task may resume user execution.
func (tbl *Table) Dispatch(t *kernel.Task) kernel.RunState {
	ac := t.Arch()
	ac.BeginSyscall()
	no := ac.SyscallNo()

	fn, ok := tbl.table[no]
	if !ok {
		log.Debugf("Task %d invoked unknown syscall %d", t.ID(), no)
		t.SetSyscallReturn(0, kernelerr.ENOSYS)
		return t.DeliverPendingSignals()
	}

	rv, ctrl, err := fn(t, ac.SyscallArgs())
	if ctrl != nil {
		if !ctrl.IgnoreReturn {
			t.SetSyscallReturn(rv, err)
		}
		if ctrl.Run == kernel.RunExit {
			return kernel.RunExit
		}
	} else {
		t.SetSyscallReturn(rv, err)
	}
	return t.DeliverPendingSignals()
}
