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

// Package arch provides abstractions around architecture-dependent details,
// such as syscall calling conventions, trap frame layout, and signal frame
// construction.
//
// The kernel targets a single 64-bit load-store architecture with 31 general
// purpose registers. The calling convention places syscall and handler
// arguments in Regs[0] through Regs[5], the syscall number in Regs[8], the
// return value in Regs[0], and the return address in Regs[30]. The raw trap
// capture and restore mechanism is an external collaborator; the kernel sees
// only the Registers snapshot it produces.
package arch

// SyscallWidth is the width of a syscall instruction in bytes. Rewinding the
// program counter by this amount re-executes the trapping syscall.
const SyscallWidth = 4

// Registers is the set of general purpose registers captured at a trap.
type Registers struct {
	Regs  [31]uint64
	Sp    uint64
	Pc    uint64
	Flags uint64
}

// Context represents the user execution state of a task between traps. It is
// owned by the task and never shared; the scheduler swaps whole Contexts.
type Context struct {
	Registers

	// origArg0 is the value of Regs[0] captured at syscall entry. Regs[0]
	// doubles as the return value register, so a restarted syscall must have
	// its first argument put back before the program counter is rewound.
	origArg0 uint64
}

// NewContext returns a Context with a zeroed register file.
func NewContext() *Context {
	return &Context{}
}

// Fork returns an exact copy of this context.
func (c *Context) Fork() *Context {
	nc := *c
	return &nc
}

// IP returns the current instruction pointer.
func (c *Context) IP() uintptr {
	return uintptr(c.Pc)
}

// SetIP sets the current instruction pointer.
func (c *Context) SetIP(value uintptr) {
	c.Pc = uint64(value)
}

// Stack returns the current stack pointer.
func (c *Context) Stack() uintptr {
	return uintptr(c.Sp)
}

// SetStack sets the current stack pointer.
func (c *Context) SetStack(value uintptr) {
	c.Sp = uint64(value)
}

// Return returns the current syscall return value.
func (c *Context) Return() uintptr {
	return uintptr(c.Regs[0])
}

// SetReturn sets the syscall return value.
func (c *Context) SetReturn(value uintptr) {
	c.Regs[0] = uint64(value)
}

// BeginSyscall captures the state needed to restart the syscall in the
// current trap frame. It must be called before the return value register is
// overwritten.
func (c *Context) BeginSyscall() {
	c.origArg0 = c.Regs[0]
}

// SyscallNo returns the syscall number in the current trap frame.
func (c *Context) SyscallNo() uintptr {
	return uintptr(c.Regs[8])
}

// SyscallArgs returns the syscall arguments in the current trap frame.
func (c *Context) SyscallArgs() SyscallArguments {
	return SyscallArguments{
		SyscallArgument{Value: uintptr(c.Regs[0])},
		SyscallArgument{Value: uintptr(c.Regs[1])},
		SyscallArgument{Value: uintptr(c.Regs[2])},
		SyscallArgument{Value: uintptr(c.Regs[3])},
		SyscallArgument{Value: uintptr(c.Regs[4])},
		SyscallArgument{Value: uintptr(c.Regs[5])},
	}
}

// RestartSyscall rewinds the program counter to the trapping syscall
// instruction and restores the first argument register, so that the syscall
// re-executes with its original arguments when the task next returns to user
// mode.
//
// Preconditions: BeginSyscall was called for the trap being restarted.
func (c *Context) RestartSyscall() {
	c.Regs[0] = c.origArg0
	c.Pc -= SyscallWidth
}
