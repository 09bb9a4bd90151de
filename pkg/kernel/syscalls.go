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

// SyscallControl is returned by syscalls to control the behavior of the
// return path.
type SyscallControl struct {
	// Run, when not RunApp, overrides the normal return to user mode.
	Run RunState

	// IgnoreReturn leaves the return value register untouched: the syscall
	// manipulated the machine context directly.
	IgnoreReturn bool
}
