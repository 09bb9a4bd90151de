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
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/log"
	"kelvin.dev/kelvin/pkg/sync"
)

// ProcessConfig collects the parameters of a new process.
type ProcessConfig struct {
	// Image is the leader task's user memory and machine context.
	Image TaskImage

	// Credentials is the identity the process runs as.
	Credentials Credentials

	// Parent, if non-nil, observes the process's lifecycle events.
	Parent *ThreadGroup

	// TerminationSignal is sent to Parent when the process terminates,
	// conventionally SIGCHLD. 0 suppresses the signal.
	TerminationSignal kabi.Signal

	// SignalTrampoline is the user address handlers return through when
	// their action carries no restorer.
	SignalTrampoline uint64

	// SignalMask is the leader task's initial signal mask.
	SignalMask kabi.SignalSet
}

// CreateProcess creates a new process with a fresh action table and empty
// pending sets, and returns it along with its leader task. The first process
// created becomes the target of external signals.
func (k *Kernel) CreateProcess(cfg ProcessConfig) (*ThreadGroup, *Task, error) {
	if cfg.TerminationSignal != 0 && !cfg.TerminationSignal.IsValid() {
		return nil, nil, kernelerr.EINVAL
	}
	sh := NewSignalHandlers()
	tg := &ThreadGroup{
		k:                 k,
		creds:             cfg.Credentials,
		parent:            cfg.Parent,
		terminationSignal: cfg.TerminationSignal,
		signalTrampoline:  cfg.SignalTrampoline,
		signalHandlers:    sh,
		stopCond:          sync.NewCond(&sh.mu),
		lifecycle:         ProcessRunning,
	}
	t, err := k.newTask(tg, cfg.Image, cfg.SignalMask)
	if err != nil {
		return nil, nil, err
	}
	tg.id = t.tid
	tg.leader = t

	k.tasks.mu.Lock()
	k.tasks.groups[tg.id] = tg
	k.tasks.mu.Unlock()

	k.extMu.Lock()
	if k.initProcess == nil {
		k.initProcess = tg
	}
	k.extMu.Unlock()

	log.Infof("Created process %d", tg.id)
	return tg, t, nil
}

// newTask allocates a task in tg with the given image and mask and registers
// it. Pending sets always start empty.
func (k *Kernel) newTask(tg *ThreadGroup, image TaskImage, mask kabi.SignalSet) (*Task, error) {
	t := &Task{
		tg:            tg,
		image:         image,
		interruptChan: make(chan struct{}, 1),
	}
	t.signalMask.Store(uint64(mask &^ UnblockableSignals))

	k.tasks.mu.Lock()
	tid, err := k.tasks.newIDLocked()
	if err != nil {
		k.tasks.mu.Unlock()
		return nil, err
	}
	t.tid = tid
	k.tasks.tasks[tid] = t
	k.tasks.mu.Unlock()

	sh := tg.signalHandlers
	sh.mu.Lock()
	tg.tasks = append(tg.tasks, t)
	sh.mu.Unlock()
	return t, nil
}

// NewThread creates an additional task in the calling task's process. The
// new task inherits the caller's signal mask; its task-directed pending set
// starts empty.
//
// Only the task goroutine may call NewThread.
func (t *Task) NewThread(image TaskImage) (*Task, error) {
	sh := t.tg.signalHandlers
	sh.mu.Lock()
	alive := t.tg.lifecycle != ProcessZombie
	sh.mu.Unlock()
	if !alive {
		return nil, kernelerr.ESRCH
	}
	nt, err := t.tg.k.newTask(t.tg, image, t.SignalMask())
	if err != nil {
		return nil, err
	}
	log.Debugf("Task %d created thread %d in process %d", t.tid, nt.tid, t.tg.id)
	return nt, nil
}

// Fork creates a child process of the calling task's process. The child's
// leader inherits the caller's signal mask and a copy of the action table;
// both pending sets start empty. The caller provides the child's image,
// typically built around a Fork of its own machine context.
//
// Only the task goroutine may call Fork.
func (t *Task) Fork(image TaskImage) (*ThreadGroup, *Task, error) {
	k := t.tg.k
	sh := t.tg.signalHandlers
	tg := &ThreadGroup{
		k:                 k,
		creds:             t.tg.creds,
		parent:            t.tg,
		terminationSignal: kabi.SIGCHLD,
		signalTrampoline:  t.tg.signalTrampoline,
		signalHandlers:    sh.Fork(),
		lifecycle:         ProcessRunning,
	}
	tg.stopCond = sync.NewCond(&tg.signalHandlers.mu)
	nt, err := k.newTask(tg, image, t.SignalMask())
	if err != nil {
		return nil, nil, err
	}
	tg.id = nt.tid
	tg.leader = nt

	k.tasks.mu.Lock()
	k.tasks.groups[tg.id] = tg
	k.tasks.mu.Unlock()

	log.Debugf("Process %d forked process %d", t.tg.id, tg.id)
	return tg, nt, nil
}

// Exec replaces the task's image for a new program. Per convention the
// signal mask and pending sets survive an exec, caught signals revert to
// their default actions (ignored ones stay ignored), and the alternate
// signal stack record is cleared.
//
// Preconditions: t is the only task in its process, which is not stopped.
// Only the task goroutine may call Exec.
func (t *Task) Exec(image TaskImage, trampoline uint64) {
	sh := t.tg.signalHandlers.CopyForExec()
	t.tg.signalHandlers = sh
	t.tg.stopCond = sync.NewCond(&sh.mu)
	t.tg.signalTrampoline = trampoline
	t.image = image
	t.haveSavedSignalMask = false
	t.haveSyscallReturn = false
	t.mu.Lock()
	t.signalStack = kabi.SignalStack{Flags: kabi.SignalStackFlagDisable}
	t.mu.Unlock()
	log.Debugf("Task %d exec reset signal state", t.tid)
}
