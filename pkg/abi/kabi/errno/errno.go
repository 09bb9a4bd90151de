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

// Package errno holds the numeric error codes of the Kelvin syscall ABI.
package errno

// Errno is a syscall error number.
type Errno uint32

// The error numbers reportable by the signal subsystem's syscall surface.
// Values follow the conventional POSIX assignment so that user-mode runtimes
// can reuse stock errno tables.
const (
	NOERRNO = iota
	EPERM
	ENOENT
	ESRCH
	EINTR
	EIO
	ENXIO
	E2BIG
	ENOEXEC
	EBADF
	ECHILD
	EAGAIN
	ENOMEM
	EACCES
	EFAULT
	ENOTBLK
	EBUSY
	EEXIST
	EXDEV
	ENODEV
	ENOTDIR
	EISDIR
	EINVAL
)

// ENOSYS is an invalid system call number.
const ENOSYS = Errno(38)

// ETIMEDOUT is a timed-out wait.
const ETIMEDOUT = Errno(110)

// Kernel-internal error numbers, never visible to user mode. They direct the
// delivery engine's syscall restart decision.
const (
	// ERESTARTSYS: restart if the interrupting signal's action has the
	// restart flag, otherwise report EINTR.
	ERESTARTSYS = Errno(512)

	// ERESTARTNOINTR: always restart.
	ERESTARTNOINTR = Errno(513)

	// ERESTARTNOHAND: restart unless the signal was delivered to a user
	// handler, in which case report EINTR.
	ERESTARTNOHAND = Errno(514)
)
