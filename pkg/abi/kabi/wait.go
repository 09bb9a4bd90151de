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

package kabi

import "fmt"

// WaitStatus is the status reported to a waiting parent, encoding one of
// {normal-exit(code), signaled(number), stopped(number), continued} in the
// classic packed format consumed by the WIFEXITED predicate family.
type WaitStatus uint32

// WaitStatusExit returns a WaitStatus representing exit with the given
// (truncated) exit code.
func WaitStatusExit(code int32) WaitStatus {
	return WaitStatus(uint32(code&0xff) << 8)
}

// WaitStatusTerminationSignal returns a WaitStatus representing termination
// by the given signal.
func WaitStatusTerminationSignal(sig Signal) WaitStatus {
	return WaitStatus(uint32(sig & 0x7f))
}

// WaitStatusStopped returns a WaitStatus representing stoppage by the given
// signal.
func WaitStatusStopped(sig Signal) WaitStatus {
	return WaitStatus(0x7f | (uint32(sig&0xff) << 8))
}

// WithCoreDump returns ws with the dump-recorded bit set. Only meaningful
// for signal-termination statuses.
func (ws WaitStatus) WithCoreDump() WaitStatus {
	return ws | 0x80
}

// CoreDumped returns true if ws indicates that a dump was recorded.
func (ws WaitStatus) CoreDumped() bool {
	return ws&0x80 != 0
}

// WaitStatusContinued returns a WaitStatus representing continuation.
func WaitStatusContinued() WaitStatus {
	return WaitStatus(0xffff)
}

// Exited returns true if ws represents an exit.
func (ws WaitStatus) Exited() bool {
	return ws&0xff == 0
}

// Signaled returns true if ws represents termination by a signal.
func (ws WaitStatus) Signaled() bool {
	return ws&0x7f != 0x7f && ws&0x7f != 0
}

// Stopped returns true if ws represents stoppage by a signal.
func (ws WaitStatus) Stopped() bool {
	return ws != 0xffff && ws&0xff == 0x7f
}

// Continued returns true if ws represents continuation.
func (ws WaitStatus) Continued() bool {
	return ws == 0xffff
}

// ExitStatus returns the exit code, which is only meaningful if Exited().
func (ws WaitStatus) ExitStatus() int32 {
	return int32((ws >> 8) & 0xff)
}

// TerminationSignal returns the terminating signal, which is only meaningful
// if Signaled().
func (ws WaitStatus) TerminationSignal() Signal {
	return Signal(ws & 0x7f)
}

// StopSignal returns the stopping signal, which is only meaningful if
// Stopped().
func (ws WaitStatus) StopSignal() Signal {
	return Signal((ws >> 8) & 0xff)
}

// String implements fmt.Stringer.
func (ws WaitStatus) String() string {
	switch {
	case ws.Exited():
		return fmt.Sprintf("exited with code %d", ws.ExitStatus())
	case ws.Signaled():
		return fmt.Sprintf("killed by signal %d", ws.TerminationSignal())
	case ws.Stopped():
		return fmt.Sprintf("stopped by signal %d", ws.StopSignal())
	case ws.Continued():
		return "continued"
	default:
		return fmt.Sprintf("unknown status %#x", uint32(ws))
	}
}
