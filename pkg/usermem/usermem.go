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

// Package usermem governs access to user memory. The address-space layer
// itself is an external collaborator; this package defines the Addr type and
// the IO interface through which the kernel reads and writes user memory.
package usermem

import (
	"encoding/binary"

	"kelvin.dev/kelvin/pkg/errors/kernelerr"
)

// Addr represents an address in an unknown address space.
type Addr uintptr

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
//
// Note: This function is usually used to get the end of an address range
// defined by its start address and length. Since such an end address is
// exclusive, end == 0 is technically valid, and corresponds to a range that
// extends to the end of the address space, but ok will be false in this case.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	// The second half of the following check is needed in case uintptr is
	// smaller than 64 bits.
	ok = end >= v && length <= uint64(^Addr(0))
	return
}

// RoundDown returns the address rounded down to the nearest multiple of
// align, which must be a power of 2.
func (v Addr) RoundDown(align uint) Addr {
	return v & ^Addr(align-1)
}

// IsAligned returns true if v is aligned to the given alignment, which must
// be a power of 2.
func (v Addr) IsAligned(align uint) bool {
	return v&Addr(align-1) == 0
}

// ByteOrder is the byte order of all ABI types marshaled through this
// package.
var ByteOrder = binary.LittleEndian

// IO provides access to the contents of a virtual memory space.
type IO interface {
	// CopyOut copies len(src) bytes from src to the memory mapped at addr. It
	// returns the number of bytes copied. If the number of bytes copied is <
	// len(src), it returns a non-nil error explaining why.
	CopyOut(addr Addr, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from the memory mapped at addr to dst.
	// It returns the number of bytes copied. If the number of bytes copied
	// is < len(dst), it returns a non-nil error explaining why.
	CopyIn(addr Addr, dst []byte) (int, error)
}

// CheckFullCopy converts a short copy into an EFAULT error.
func CheckFullCopy(n, want int, err error) error {
	if err != nil {
		return err
	}
	if n != want {
		return kernelerr.EFAULT
	}
	return nil
}
