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

// pendingSignals holds a set of pending signals. Standard signals coalesce:
// at most one instance of each signal number is pending at a time, and the
// SignalInfo latched for a signal is the one from the first send.
type pendingSignals struct {
	// set is the bitmask of pending signal numbers.
	set kabi.SignalSet

	// infos holds the latched SignalInfo for each pending signal, indexed
	// by Signal.Index(). infos[i] is meaningful only while the
	// corresponding bit of set is on.
	infos [kabi.SignalMaximum]kabi.SignalInfo
}

// enqueue adds the given signal to the pending set. If the signal is already
// pending, the new instance coalesces into the old one: enqueue returns
// false and the previously latched SignalInfo is retained.
func (p *pendingSignals) enqueue(info *kabi.SignalInfo) bool {
	sig := kabi.Signal(info.Signo)
	if p.set&kabi.SignalSetOf(sig) != 0 {
		return false
	}
	p.set |= kabi.SignalSetOf(sig)
	p.infos[sig.Index()] = *info
	return true
}

// dequeueSpecific removes and returns the given pending signal, or nil if it
// is not pending.
func (p *pendingSignals) dequeueSpecific(sig kabi.Signal) *kabi.SignalInfo {
	if p.set&kabi.SignalSetOf(sig) == 0 {
		return nil
	}
	p.set &^= kabi.SignalSetOf(sig)
	info := p.infos[sig.Index()]
	return &info
}

// discardSpecific removes the given signal from the pending set without
// returning it.
func (p *pendingSignals) discardSpecific(sig kabi.Signal) {
	p.set &^= kabi.SignalSetOf(sig)
}
