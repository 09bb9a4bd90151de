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
	"time"

	"kelvin.dev/kelvin/pkg/errors/kernelerr"
)

// Every interruptible sleep in the kernel funnels through Task.block: it
// checks for a pending interrupt before sleeping, sleeps on the wait
// condition and the task's interrupt channel together, and re-checks on
// wake. A task therefore cannot sleep past a signal sent before or during
// the wait.

// Block blocks the task until C is readable or the task is interrupted,
// whichever happens first. A nil C blocks until interruption.
//
// Only the task goroutine may call Block.
func (t *Task) Block(C <-chan struct{}) error {
	return t.block(C, nil)
}

// BlockWithTimeout blocks the task until C is readable, the timeout expires,
// or the task is interrupted, whichever happens first. Interruption observed
// together with an expired timeout reports interruption, so a signal is
// never lost to a racing timer.
//
// Only the task goroutine may call BlockWithTimeout.
func (t *Task) BlockWithTimeout(C <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return t.block(C, timer.C)
}

func (t *Task) block(C <-chan struct{}, timerChan <-chan time.Time) error {
	// A signal pending before the wait begins interrupts it immediately.
	if t.interrupted() {
		return kernelerr.ErrInterrupted
	}

	select {
	case <-C:
		return nil

	case <-t.interruptChan:
		return kernelerr.ErrInterrupted

	case <-timerChan:
		// An interrupt racing with the timer wins.
		select {
		case <-t.interruptChan:
			return kernelerr.ErrInterrupted
		default:
		}
		if t.signalPending.Load() {
			return kernelerr.ErrInterrupted
		}
		return kernelerr.ETIMEDOUT
	}
}
