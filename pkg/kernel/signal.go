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
)

// SignalAction is an internal signal action: the disposition applied when a
// signal is selected for delivery and no user handler claims it.
type SignalAction int

// Available signal actions.
//
// Note that although the timing ignore-ness of signals is implemented
// through the default action, the stop and continue actions have scheduler
// side effects that reach every task in the process.
const (
	// SignalActionTerm: default action is to terminate the process.
	SignalActionTerm SignalAction = iota

	// SignalActionCore: default action is to terminate the process and
	// record the dump disposition. Dump production itself is a reserved
	// extension point.
	SignalActionCore

	// SignalActionStop: default action is to stop the process.
	SignalActionStop

	// SignalActionIgnore: default action is to ignore the signal.
	SignalActionIgnore

	// SignalActionCont: default action is to continue the process if it is
	// currently stopped.
	SignalActionCont
)

// UnblockableSignals contains the two signals that can never be masked,
// caught, or ignored.
var UnblockableSignals = kabi.MakeSignalSet(kabi.SIGKILL, kabi.SIGSTOP)

// StopSignals is the set of signals whose default action is
// SignalActionStop.
var StopSignals = kabi.MakeSignalSet(kabi.SIGSTOP, kabi.SIGTSTP, kabi.SIGTTIN, kabi.SIGTTOU)

// defaultActions is the immutable mapping from signal number to default
// action. Signals without an entry (including the reserved numbers above 31)
// default to termination.
var defaultActions = map[kabi.Signal]SignalAction{
	// POSIX.1-1990 standard.
	kabi.SIGHUP:  SignalActionTerm,
	kabi.SIGINT:  SignalActionTerm,
	kabi.SIGQUIT: SignalActionCore,
	kabi.SIGILL:  SignalActionCore,
	kabi.SIGABRT: SignalActionCore,
	kabi.SIGFPE:  SignalActionCore,
	kabi.SIGKILL: SignalActionTerm, // forced; see computeAction
	kabi.SIGSEGV: SignalActionCore,
	kabi.SIGPIPE: SignalActionTerm,
	kabi.SIGALRM: SignalActionTerm,
	kabi.SIGTERM: SignalActionTerm,
	kabi.SIGUSR1: SignalActionTerm,
	kabi.SIGUSR2: SignalActionTerm,
	kabi.SIGCHLD: SignalActionIgnore,
	kabi.SIGCONT: SignalActionCont, // applied at generation time; see prepareSignalLocked
	kabi.SIGSTOP: SignalActionStop, // forced; see computeAction
	kabi.SIGTSTP: SignalActionStop,
	kabi.SIGTTIN: SignalActionStop,
	kabi.SIGTTOU: SignalActionStop,
	// POSIX.1-2001 standard.
	kabi.SIGBUS:    SignalActionCore,
	kabi.SIGPROF:   SignalActionTerm,
	kabi.SIGSYS:    SignalActionCore,
	kabi.SIGTRAP:   SignalActionCore,
	kabi.SIGURG:    SignalActionIgnore,
	kabi.SIGVTALRM: SignalActionTerm,
	kabi.SIGXCPU:   SignalActionCore,
	kabi.SIGXFSZ:   SignalActionCore,
	// Nonstandard.
	kabi.SIGSTKFLT: SignalActionTerm,
	kabi.SIGIO:     SignalActionTerm,
	kabi.SIGPWR:    SignalActionTerm,
	kabi.SIGWINCH:  SignalActionIgnore,
}

// DefaultAction returns the default action for the given signal.
func DefaultAction(sig kabi.Signal) SignalAction {
	if act, ok := defaultActions[sig]; ok {
		return act
	}
	return SignalActionTerm
}

// computeAction converts the given SigAction to a SignalAction, honoring the
// forced dispositions of the two unblockable signals.
func computeAction(sig kabi.Signal, act kabi.SigAction) SignalAction {
	switch sig {
	case kabi.SIGKILL:
		return SignalActionTerm
	case kabi.SIGSTOP:
		return SignalActionStop
	}
	switch act.Handler {
	case kabi.SigActionDefault:
		return DefaultAction(sig)
	case kabi.SigActionIgnore:
		return SignalActionIgnore
	default:
		return SignalActionHandler
	}
}

// SignalActionHandler indicates that a registered user handler claims the
// signal.
const SignalActionHandler SignalAction = -1

// SignalInfoPriv returns a SignalInfo representing a signal sent by the
// kernel with full privilege.
func SignalInfoPriv(sig kabi.Signal) *kabi.SignalInfo {
	return &kabi.SignalInfo{
		Signo: int32(sig),
		Code:  kabi.SignalInfoKernel,
	}
}

// SignalInfoNoInfo returns a SignalInfo equivalent to a bare user-mode send
// from the given sender.
func SignalInfoNoInfo(sig kabi.Signal, sender *Task) *kabi.SignalInfo {
	info := &kabi.SignalInfo{
		Signo: int32(sig),
		Code:  kabi.SignalInfoUser,
	}
	info.SetPID(int32(sender.tg.ID()))
	info.SetUID(sender.tg.creds.UID)
	return info
}
