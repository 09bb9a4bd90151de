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

// Package kabi describes the user-visible ABI of the Kelvin kernel: signal
// numbers and sets, signal actions, signal information, the on-stack handler
// frame layout, and the wait-status encoding observed by parents.
package kabi

import (
	"kelvin.dev/kelvin/pkg/bits"
)

const (
	// SignalMaximum is the highest valid signal number.
	SignalMaximum = 64

	// FirstStdSignal is the lowest standard signal number.
	FirstStdSignal = 1

	// LastStdSignal is the highest standard signal number.
	LastStdSignal = 31

	// NumStdSignals is the number of standard signals.
	NumStdSignals = LastStdSignal - FirstStdSignal + 1
)

// Signal is a signal number.
type Signal int

// IsValid returns true if s is a valid signal. (0 is not considered valid;
// interfaces special-casing signal number 0 should check for 0 first before
// asserting validity.)
func (s Signal) IsValid() bool {
	return s > 0 && s <= SignalMaximum
}

// IsStandard returns true if s is a standard signal.
//
// Preconditions: s.IsValid().
func (s Signal) IsStandard() bool {
	return s <= LastStdSignal
}

// Index returns the index for signal s into arrays of both standard and
// reserved signals (e.g. signal masks).
//
// Preconditions: s.IsValid().
func (s Signal) Index() int {
	return int(s - 1)
}

// Signals.
const (
	SIGHUP    = Signal(1)
	SIGINT    = Signal(2)
	SIGQUIT   = Signal(3)
	SIGILL    = Signal(4)
	SIGTRAP   = Signal(5)
	SIGABRT   = Signal(6)
	SIGBUS    = Signal(7)
	SIGFPE    = Signal(8)
	SIGKILL   = Signal(9)
	SIGUSR1   = Signal(10)
	SIGSEGV   = Signal(11)
	SIGUSR2   = Signal(12)
	SIGPIPE   = Signal(13)
	SIGALRM   = Signal(14)
	SIGTERM   = Signal(15)
	SIGSTKFLT = Signal(16)
	SIGCHLD   = Signal(17)
	SIGCONT   = Signal(18)
	SIGSTOP   = Signal(19)
	SIGTSTP   = Signal(20)
	SIGTTIN   = Signal(21)
	SIGTTOU   = Signal(22)
	SIGURG    = Signal(23)
	SIGXCPU   = Signal(24)
	SIGXFSZ   = Signal(25)
	SIGVTALRM = Signal(26)
	SIGPROF   = Signal(27)
	SIGWINCH  = Signal(28)
	SIGIO     = Signal(29)
	SIGPWR    = Signal(30)
	SIGSYS    = Signal(31)
)

// SignalSet is a signal mask with a bit corresponding to each signal.
type SignalSet uint64

// SignalSetSize is the size in bytes of a SignalSet.
const SignalSetSize = 8

// StdSignalSet is the set of all standard signals.
const StdSignalSet = SignalSet(1<<LastStdSignal - 1)

// MakeSignalSet returns SignalSet with the bit corresponding to each of the
// given signals set.
func MakeSignalSet(sigs ...Signal) SignalSet {
	indices := make([]int, len(sigs))
	for i, sig := range sigs {
		indices[i] = sig.Index()
	}
	return SignalSet(bits.Mask64(indices...))
}

// SignalSetOf returns a SignalSet with a single signal set.
func SignalSetOf(sig Signal) SignalSet {
	return SignalSet(bits.MaskOf64(sig.Index()))
}

// ForEachSignal invokes f for each signal set in the given mask.
func ForEachSignal(mask SignalSet, f func(sig Signal)) {
	bits.ForEachSetBit64(uint64(mask), func(i int) {
		f(Signal(i + 1))
	})
}

// 'how' values for the mask syscall.
const (
	// SigBlock adds the signals in the set to the blocked set.
	SigBlock = 0

	// SigUnblock removes the signals in the set from the blocked set.
	SigUnblock = 1

	// SigSetmask replaces the blocked set.
	SigSetmask = 2
)

// Special values for SigAction.Handler.
const (
	// SigActionDefault specifies that the default behavior for a signal
	// should be taken.
	SigActionDefault = 0

	// SigActionIgnore specifies that a signal should be ignored.
	SigActionIgnore = 1
)

// Signal action flags.
const (
	SigFlagNoCldStop    = 0x00000001
	SigFlagSigInfo      = 0x00000004
	SigFlagRestorer     = 0x04000000
	SigFlagOnStack      = 0x08000000
	SigFlagRestart      = 0x10000000
	SigFlagNoDefer      = 0x40000000
	SigFlagResetHandler = 0x80000000
)

// SigAction represents the action that should be taken when a signal is
// delivered. One instance exists per signal number, owned by the process.
type SigAction struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     SignalSet
}

// IsSigInfo returns true iff the handler expects extended signal information.
func (s SigAction) IsSigInfo() bool {
	return s.Flags&SigFlagSigInfo != 0
}

// IsNoDefer returns true iff the delivered signal is not added to the mask
// while the handler runs.
func (s SigAction) IsNoDefer() bool {
	return s.Flags&SigFlagNoDefer != 0
}

// IsRestart returns true iff interrupted restartable syscalls should be
// restarted after the handler returns.
func (s SigAction) IsRestart() bool {
	return s.Flags&SigFlagRestart != 0
}

// IsResetHandler returns true iff the action reverts to the default once the
// signal has been delivered.
func (s SigAction) IsResetHandler() bool {
	return s.Flags&SigFlagResetHandler != 0
}

// IsOnStack returns true iff the handler runs on the alternate signal stack.
func (s SigAction) IsOnStack() bool {
	return s.Flags&SigFlagOnStack != 0
}

// HasRestorer returns true iff the action supplies its own return trampoline.
func (s SigAction) HasRestorer() bool {
	return s.Flags&SigFlagRestorer != 0
}

// SignalStack represents information about an alternate signal stack. It is
// a reserved extension point: the kernel records it but never places a
// handler frame on it.
type SignalStack struct {
	Addr  uint64
	Flags uint32
	_     uint32
	Size  uint64
}

// SignalStack flags.
const (
	SignalStackFlagOnStack = 1
	SignalStackFlagDisable = 2
)

// IsEnabled returns true iff the stack is marked usable.
func (s SignalStack) IsEnabled() bool {
	return s.Flags&SignalStackFlagDisable == 0
}

// Top returns the address just beyond the end of the stack.
func (s SignalStack) Top() uint64 {
	return s.Addr + s.Size
}

// Contains checks if the given address is within the stack range.
func (s SignalStack) Contains(addr uint64) bool {
	return s.Addr < addr && addr <= s.Addr+s.Size
}
