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

// Package kernelerr contains syscall error codes exported as error interface
// pointers. Comparing against the exported singletons is cheap and is how
// callers classify failures:
//
//   - EINVAL covers out-of-range and protected signal numbers as well as
//     unrecognized mask operations;
//   - ESRCH covers send targets that do not exist;
//   - EPERM covers sends the caller is not entitled to make;
//   - EFAULT covers bad user memory during copy-in/copy-out;
//   - EINTR and the restart codes report syscall interruption.
package kernelerr

import (
	"kelvin.dev/kelvin/pkg/abi/kabi/errno"
	"kelvin.dev/kelvin/pkg/errors"
)

var (
	EPERM  = errors.New(errno.EPERM, "operation not permitted")
	ESRCH  = errors.New(errno.ESRCH, "no such process")
	EINTR  = errors.New(errno.EINTR, "interrupted system call")
	ECHILD = errors.New(errno.ECHILD, "no child processes")
	EAGAIN = errors.New(errno.EAGAIN, "try again")
	EFAULT = errors.New(errno.EFAULT, "bad address")
	EINVAL = errors.New(errno.EINVAL, "invalid argument")
	ENOSYS = errors.New(errno.ENOSYS, "invalid system call number")

	ETIMEDOUT = errors.New(errno.ETIMEDOUT, "timed out")
)

// ErrInterrupted is returned if a request is interrupted before it can
// complete.
var ErrInterrupted = errors.New(errno.EINTR, "request was interrupted")

// These errors are significant because the delivery engine inspects a
// syscall's return value when a signal interrupts it.
//
// For all of the following errors, if the syscall is not interrupted by a
// signal delivered to a user handler, the syscall is restarted.
var (
	// ERESTARTSYS is returned by an interrupted syscall to indicate that it
	// should be converted to EINTR if interrupted by a signal delivered to a
	// user handler without the restart flag set, and restarted otherwise.
	ERESTARTSYS = errors.New(errno.ERESTARTSYS, "to be restarted if the restart flag is set")

	// ERESTARTNOINTR is returned by an interrupted syscall to indicate that
	// it should always be restarted.
	ERESTARTNOINTR = errors.New(errno.ERESTARTNOINTR, "to be restarted")

	// ERESTARTNOHAND is returned by an interrupted syscall to indicate that
	// it should be converted to EINTR if interrupted by a signal delivered
	// to a user handler, and restarted otherwise.
	ERESTARTNOHAND = errors.New(errno.ERESTARTNOHAND, "to be restarted if no handler")
)

var restartMap = map[int]*errors.Error{
	-int(errno.ERESTARTSYS):    ERESTARTSYS,
	-int(errno.ERESTARTNOINTR): ERESTARTNOINTR,
	-int(errno.ERESTARTNOHAND): ERESTARTNOHAND,
}

// IsRestartError checks if a given error is a restart error.
func IsRestartError(err error) bool {
	switch err {
	case ERESTARTSYS, ERESTARTNOINTR, ERESTARTNOHAND:
		return true
	default:
		return false
	}
}

// SyscallRestartErrorFromReturn returns the restart error represented by rv,
// the value in a syscall return register.
func SyscallRestartErrorFromReturn(rv uintptr) (*errors.Error, bool) {
	err, ok := restartMap[int(rv)]
	return err, ok
}

// ConvertIntr converts the internal ErrInterrupted to the given syscall
// interruption error, leaving other errors untouched.
func ConvertIntr(err, intr error) error {
	if err == ErrInterrupted {
		return intr
	}
	return err
}

// Equals compares a *errors.Error to a given error by errno.
func Equals(e *errors.Error, err error) bool {
	if e == nil || err == nil {
		return (e == nil) == (err == nil)
	}
	if other, ok := err.(*errors.Error); ok {
		return other.Errno() == e.Errno()
	}
	return false
}
