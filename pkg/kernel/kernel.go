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

// Package kernel implements signal generation and delivery for a
// preemptible multitasking kernel.
//
// Signals exist at two levels. A SignalInfo sent to a Task or a ThreadGroup
// becomes pending at the corresponding level, coalescing with an already
// pending instance of the same number. Delivery happens at safe points: each
// return of a task to user mode runs a delivery pass that resolves the
// lowest-numbered deliverable signal against the process's action table,
// applying kernel dispositions inline and at most one user handler frame per
// pass.
//
// Lock order (outermost first):
//
//	TaskSet.mu
//	  ThreadGroup.signalHandlers.mu (a descendant's before an ancestor's)
//	    Task.mu
//
// No lock in this hierarchy is held while a task sleeps.
package kernel

import (
	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/log"
	"kelvin.dev/kelvin/pkg/sync"
)

// Kernel represents an instance of the kernel's signal subsystem: the task
// and process registries and the routing of externally generated signals.
type Kernel struct {
	// extMu serializes external signal injection.
	extMu sync.Mutex

	// tasks is the registry of all tasks and processes.
	tasks *TaskSet

	// initProcess is the first process created, the target of external
	// signals. Set once by CreateProcess.
	initProcess *ThreadGroup
}

// New returns an initialized Kernel with no processes.
func New() *Kernel {
	return &Kernel{
		tasks: newTaskSet(),
	}
}

// TaskSet returns the kernel's task and process registry.
func (k *Kernel) TaskSet() *TaskSet {
	return k.tasks
}

// GlobalInit returns the first process created by the kernel, or nil if none
// has been.
func (k *Kernel) GlobalInit() *ThreadGroup {
	k.extMu.Lock()
	defer k.extMu.Unlock()
	return k.initProcess
}

// SendExternalSignal injects the given signal, generated outside any task
// (e.g. by the platform's interrupt plumbing), into the init process.
// context is a description of the source for logs.
func (k *Kernel) SendExternalSignal(info *kabi.SignalInfo, context string) error {
	k.extMu.Lock()
	init := k.initProcess
	k.extMu.Unlock()
	if init == nil {
		return kernelerr.ESRCH
	}
	log.Infof("Routing external signal %d (%s) to process %d", info.Signo, context, init.id)
	return init.SendSignal(info)
}

// SignalAll sends the given process-directed signal to every live process.
// Used for shutdown. The first error is reported, but every process is
// still signaled.
func (k *Kernel) SignalAll(info *kabi.SignalInfo) error {
	var firstErr error
	k.tasks.ForEachThreadGroup(func(tg *ThreadGroup) {
		// Each target gets its own copy: pending sets latch the instance.
		cp := *info
		if err := tg.SendSignal(&cp); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}
