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

package arch

import (
	"errors"

	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/usermem"
)

// ErrBadSignalFrame is returned by SignalRestore when the frame at the stack
// pointer does not carry the frame magic. A cooperating user process can
// never trigger this; it indicates a bug or a forged frame, and the caller
// must treat it as fatal to the offending process.
var ErrBadSignalFrame = errors.New("signal frame magic mismatch")

// SignalContext is the complete machine context saved when a signal handler
// is invoked, and restored verbatim by the return-from-handler syscall.
type SignalContext struct {
	FaultAddr uint64
	Regs      [31]uint64
	Sp        uint64
	Pc        uint64
	Flags     uint64
}

// SignalFrame is the on-stack frame written below the interrupted stack
// pointer before transferring to a user handler. The layout is fixed ABI,
// versioned by Magic, and always placed on a kabi.SigFrameAlign boundary.
type SignalFrame struct {
	Magic   uint64
	Signo   uint8
	_       [7]byte
	OldMask kabi.SignalSet
	Context SignalContext
	Info    kabi.SignalInfo
}

// Layout of SignalFrame. The context and info offsets are handed to the
// handler in argument registers under the siginfo flag.
const (
	sigFrameContextOffset = 24
	sigFrameInfoOffset    = sigFrameContextOffset + (35 * 8)
	sigFrameSize          = sigFrameInfoOffset + kabi.SignalInfoSize
)

// NewSignalContext captures c into a SignalContext.
func (c *Context) NewSignalContext(faultAddr uint64) SignalContext {
	return SignalContext{
		FaultAddr: faultAddr,
		Regs:      c.Regs,
		Sp:        c.Sp,
		Pc:        c.Pc,
		Flags:     c.Flags,
	}
}

// SignalSetup builds a SignalFrame on st and rewrites c so that the next
// transfer to user mode enters the registered handler.
//
// The caller provides the mask in force before delivery (to be restored by
// SignalRestore) and the trampoline address used as the handler's return
// linkage when the action does not carry its own restorer.
func (c *Context) SignalSetup(st *Stack, act *kabi.SigAction, info *kabi.SignalInfo, sigset kabi.SignalSet, trampoline uint64) error {
	// Kernel-internal code bits must not reach user mode.
	info.FixSignalCodeForUser()

	frame := SignalFrame{
		Magic:   kabi.SigFrameMagic,
		Signo:   uint8(info.Signo),
		OldMask: sigset,
		Context: c.NewSignalContext(info.Addr()),
		Info:    *info,
	}

	// Place the frame fully below the interrupted stack pointer, on an
	// alignment boundary. Push writes exactly sigFrameSize bytes, so
	// pre-positioning Bottom at frameBottom+sigFrameSize makes the frame
	// land at frameBottom.
	frameBottom := (st.Bottom - usermem.Addr(sigFrameSize)).RoundDown(kabi.SigFrameAlign)
	st.Bottom = frameBottom + usermem.Addr(sigFrameSize)
	frameAddr, err := st.Push(&frame)
	if err != nil {
		return err
	}

	// Enter the handler per the calling convention: signal number in the
	// first argument register; under the siginfo flag, pointers to the info
	// and saved context in the second and third.
	c.Sp = uint64(frameAddr)
	c.Pc = act.Handler
	c.Regs[0] = uint64(info.Signo)
	if act.IsSigInfo() {
		c.Regs[1] = uint64(frameAddr) + sigFrameInfoOffset
		c.Regs[2] = uint64(frameAddr) + sigFrameContextOffset
	}

	// The handler returns to the trampoline, which invokes the
	// return-from-handler syscall.
	if act.HasRestorer() {
		c.Regs[30] = act.Restorer
	} else {
		c.Regs[30] = trampoline
	}
	return nil
}

// SignalRestore restores the context saved by SignalSetup from the frame at
// the current stack pointer and returns the saved signal mask. The caller
// must treat ErrBadSignalFrame as a fatal protocol violation.
func (c *Context) SignalRestore(st *Stack) (kabi.SignalSet, error) {
	var frame SignalFrame
	if err := st.Pop(&frame); err != nil {
		return 0, err
	}
	if frame.Magic != kabi.SigFrameMagic {
		return 0, ErrBadSignalFrame
	}
	c.Regs = frame.Context.Regs
	c.Sp = frame.Context.Sp
	c.Pc = frame.Context.Pc
	c.Flags = frame.Context.Flags
	return frame.OldMask, nil
}
