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
	"kelvin.dev/kelvin/pkg/sync"
)

// SignalHandlers holds information about signal actions, shared by all tasks
// in a process.
type SignalHandlers struct {
	// mu is the process signal mutex. It protects actions below, as well as
	// the signal and lifecycle state of the owning ThreadGroup and, by lock
	// order, may be held when acquiring any member Task's signal mutex (but
	// never the other way around). It is never held across a sleep.
	mu sync.Mutex

	// actions is the action to be taken upon receiving each signal, indexed
	// by signal number. Signals without an entry take their default action.
	actions map[kabi.Signal]kabi.SigAction
}

// NewSignalHandlers returns a new SignalHandlers with all signals set to
// their default actions.
func NewSignalHandlers() *SignalHandlers {
	return &SignalHandlers{
		actions: make(map[kabi.Signal]kabi.SigAction),
	}
}

// Fork returns a copy of sh for a new process, sharing no state with sh. The
// copy carries the same actions.
func (sh *SignalHandlers) Fork() *SignalHandlers {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fork := NewSignalHandlers()
	for sig, act := range sh.actions {
		fork.actions[sig] = act
	}
	return fork
}

// CopyForExec returns a copy of sh for a process that is undergoing an exec:
// ignored signals stay ignored, and all caught signals revert to their
// default actions.
func (sh *SignalHandlers) CopyForExec() *SignalHandlers {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cp := NewSignalHandlers()
	for sig, act := range sh.actions {
		if act.Handler == kabi.SigActionIgnore {
			cp.actions[sig] = kabi.SigAction{Handler: kabi.SigActionIgnore}
		}
	}
	return cp
}

// IsIgnored returns true if the signal is ignored.
func (sh *SignalHandlers) IsIgnored(sig kabi.Signal) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	act, ok := sh.actions[sig]
	return ok && act.Handler == kabi.SigActionIgnore
}

// dequeueAction returns the action to be taken upon delivery of the given
// signal, handling the one-shot semantics of reset-on-delivery handlers.
//
// Preconditions: sh.mu must be locked.
func (sh *SignalHandlers) dequeueActionLocked(sig kabi.Signal) kabi.SigAction {
	act := sh.actions[sig]
	if act.IsResetHandler() {
		delete(sh.actions, sig)
	}
	return act
}
