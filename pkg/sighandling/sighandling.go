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

// Package sighandling forwards signals received by the host process into a
// Kernel, where they surface as external sends to the init process. It is
// the bridge a hosted deployment uses in place of real interrupt plumbing.
package sighandling

import (
	"os"
	"os/signal"
	"reflect"

	"golang.org/x/sys/unix"

	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/kernel"
	"kelvin.dev/kelvin/pkg/log"
)

// numSignals is the number of standard signals.
const numSignals = 32

// forwardSignals listens for incoming host signals and delivers them to k.
//
// It starts when the start channel is closed, stops when the stop channel
// is closed, and closes done once it will no longer deliver signals to k.
func forwardSignals(k *kernel.Kernel, sigchans []chan os.Signal, start, stop, done chan struct{}) {
	// Build a select case per signal channel, with slot 0 reserved for the
	// start/stop protocol.
	sc := []reflect.SelectCase{{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(start)}}
	for _, sigchan := range sigchans {
		sc = append(sc, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sigchan)})
	}

	started := false
	for {
		index, _, ok := reflect.Select(sc)

		// Was it the start / stop channel?
		if index == 0 {
			if !ok {
				if !started {
					// start was closed; begin forwarding and swap this
					// case for the stop channel.
					started = true
					sc[0] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(stop)}
				} else {
					// stop was closed; stop forwarding and clear this
					// case so it is never selected again.
					started = false
					close(done)
					sc[0].Chan = reflect.Value{}
				}
			}
			continue
		}
		if !ok {
			panic("signal channel closed unexpectedly")
		}

		// Index N represents the channel for signal N.
		sig := kabi.Signal(index)

		if !started {
			// The kernel cannot receive signals yet, or is shutting down.
			// Die from signals that would have killed the host process
			// before forwarding began; ignore the rest.
			switch sig {
			case kabi.SIGHUP, kabi.SIGINT, kabi.SIGTERM:
				dieFromSignal(unix.Signal(sig))
			}
			continue
		}

		if err := k.SendExternalSignal(&kabi.SignalInfo{
			Signo: int32(sig),
			Code:  kabi.SignalInfoKernel,
		}, "host"); err != nil {
			log.Warningf("Unable to forward host signal %d: %v", sig, err)
		}
	}
}

// PrepareForwarding arranges for host signals to be forwarded to k and
// returns a callback that starts signal delivery, which itself returns a
// callback that stops signal forwarding.
//
// This permanently takes over host signal handling. After the stop
// callback, signals revert to the default Go runtime behavior.
func PrepareForwarding(k *kernel.Kernel, skipSignal unix.Signal) func() func() {
	start := make(chan struct{})
	stop := make(chan struct{})
	done := make(chan struct{})

	// One channel per standard signal: signal.Notify is non-blocking and a
	// shared channel may drop signals, while per-signal channels of size 1
	// match standard signal coalescing exactly.
	//
	// Host real-time signals are left to the Go runtime.
	var sigchans []chan os.Signal
	for sig := 1; sig <= numSignals; sig++ {
		sigchan := make(chan os.Signal, 1)
		sigchans = append(sigchans, sigchan)

		if unix.Signal(sig) == skipSignal {
			continue
		}
		signal.Notify(sigchan, unix.Signal(sig))
	}
	go forwardSignals(k, sigchans, start, stop, done)

	return func() func() {
		close(start)
		return func() {
			close(stop)
			<-done
		}
	}
}

// dieFromSignal restores the default host disposition for sig and re-raises
// it, bypassing the Go runtime handler.
func dieFromSignal(sig unix.Signal) {
	signal.Reset(os.Signal(sig))
	if err := unix.Kill(unix.Getpid(), sig); err != nil {
		log.Warningf("Unable to re-raise signal %d: %v", sig, err)
	}
}
