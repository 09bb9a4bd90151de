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

import (
	"encoding/binary"
)

// Signal info codes, recorded in SignalInfo.Code.
const (
	// SignalInfoUser indicates a signal sent by a user-mode send syscall.
	SignalInfoUser = 0

	// SignalInfoKernel indicates a signal generated by the kernel itself.
	SignalInfoKernel = 0x80

	// SignalInfoTkill indicates a signal sent by a task-directed send.
	SignalInfoTkill = -6
)

// Child-status codes for SIGCHLD, recorded in SignalInfo.Code.
const (
	// CLDExited indicates that a child has exited.
	CLDExited = 1

	// CLDKilled indicates that a child was killed by a signal.
	CLDKilled = 2

	// CLDDumped indicates that a child was killed by a signal whose default
	// action records a dump.
	CLDDumped = 3

	// CLDStopped indicates that a child has stopped.
	CLDStopped = 5

	// CLDContinued indicates that a stopped child has continued.
	CLDContinued = 6
)

// SignalInfoSize is the size in bytes of a marshaled SignalInfo.
const SignalInfoSize = 128

// SignalInfo carries the auxiliary payload of a signal: who sent it, why,
// and fault or child-status details where applicable. At most one SignalInfo
// is retained per pending standard signal; further occurrences coalesce into
// the pending bit alone.
type SignalInfo struct {
	Signo int32 // Signal number.
	Errno int32 // Errno value.
	Code  int32 // Signal code.
	_     uint32

	// Fields is a union, accessed through the methods below:
	//
	// - sends carry {pid int32, uid int32};
	// - child-status signals additionally carry {status int32};
	// - memory-fault signals carry {addr uint64}.
	Fields [SignalInfoSize - 16]byte
}

// byteOrder fixes the encoding of the Fields union. The ABI is
// little-endian on every architecture the kernel targets.
var byteOrder = binary.LittleEndian

// PID returns the pid field.
func (s *SignalInfo) PID() int32 {
	return int32(byteOrder.Uint32(s.Fields[0:4]))
}

// SetPID mutates the pid field.
func (s *SignalInfo) SetPID(val int32) {
	byteOrder.PutUint32(s.Fields[0:4], uint32(val))
}

// UID returns the uid field.
func (s *SignalInfo) UID() int32 {
	return int32(byteOrder.Uint32(s.Fields[4:8]))
}

// SetUID mutates the uid field.
func (s *SignalInfo) SetUID(val int32) {
	byteOrder.PutUint32(s.Fields[4:8], uint32(val))
}

// Status returns the status field for child-status signals.
func (s *SignalInfo) Status() int32 {
	return int32(byteOrder.Uint32(s.Fields[8:12]))
}

// SetStatus mutates the status field.
func (s *SignalInfo) SetStatus(val int32) {
	byteOrder.PutUint32(s.Fields[8:12], uint32(val))
}

// Addr returns the fault address field for memory-fault signals.
func (s *SignalInfo) Addr() uint64 {
	return byteOrder.Uint64(s.Fields[0:8])
}

// SetAddr sets the fault address field.
func (s *SignalInfo) SetAddr(val uint64) {
	byteOrder.PutUint64(s.Fields[0:8], val)
}

// FixSignalCodeForUser fixes up the code before copy-out. Kernel-internal
// code bits above the low 16 must not leak to user mode.
func (s *SignalInfo) FixSignalCodeForUser() {
	if s.Code > 0 {
		s.Code &= 0x0000ffff
	}
}
