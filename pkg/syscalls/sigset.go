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

package syscalls

import (
	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/errors/kernelerr"
	"kelvin.dev/kelvin/pkg/kernel"
	"kelvin.dev/kelvin/pkg/usermem"
)

// copyInSigSet copies in a sigset_t, checks its size, and ensures that it
// does not contain the unblockable signals.
func copyInSigSet(t *kernel.Task, addr usermem.Addr, size uint) (kabi.SignalSet, error) {
	if size != kabi.SignalSetSize {
		return 0, kernelerr.EINVAL
	}
	var b [kabi.SignalSetSize]byte
	n, err := t.Memory().CopyIn(addr, b[:])
	if err := usermem.CheckFullCopy(n, len(b), err); err != nil {
		return 0, kernelerr.EFAULT
	}
	mask := kabi.SignalSet(usermem.ByteOrder.Uint64(b[:]))
	return mask &^ kernel.UnblockableSignals, nil
}

// copyOutSigSet copies out the given signal set.
func copyOutSigSet(t *kernel.Task, addr usermem.Addr, mask kabi.SignalSet) error {
	var b [kabi.SignalSetSize]byte
	usermem.ByteOrder.PutUint64(b[:], uint64(mask))
	n, err := t.Memory().CopyOut(addr, b[:])
	if err := usermem.CheckFullCopy(n, len(b), err); err != nil {
		return kernelerr.EFAULT
	}
	return nil
}

// sigActionSize is the size in bytes of a marshaled kabi.SigAction.
const sigActionSize = 32

func copyInSigAction(t *kernel.Task, addr usermem.Addr) (kabi.SigAction, error) {
	var b [sigActionSize]byte
	n, err := t.Memory().CopyIn(addr, b[:])
	if err := usermem.CheckFullCopy(n, len(b), err); err != nil {
		return kabi.SigAction{}, kernelerr.EFAULT
	}
	return kabi.SigAction{
		Handler:  usermem.ByteOrder.Uint64(b[0:8]),
		Flags:    usermem.ByteOrder.Uint64(b[8:16]),
		Restorer: usermem.ByteOrder.Uint64(b[16:24]),
		Mask:     kabi.SignalSet(usermem.ByteOrder.Uint64(b[24:32])),
	}, nil
}

func copyOutSigAction(t *kernel.Task, addr usermem.Addr, act kabi.SigAction) error {
	var b [sigActionSize]byte
	usermem.ByteOrder.PutUint64(b[0:8], act.Handler)
	usermem.ByteOrder.PutUint64(b[8:16], act.Flags)
	usermem.ByteOrder.PutUint64(b[16:24], act.Restorer)
	usermem.ByteOrder.PutUint64(b[24:32], uint64(act.Mask))
	n, err := t.Memory().CopyOut(addr, b[:])
	if err := usermem.CheckFullCopy(n, len(b), err); err != nil {
		return kernelerr.EFAULT
	}
	return nil
}

// signalStackSize is the size in bytes of a marshaled kabi.SignalStack.
const signalStackSize = 24

func copyInSignalStack(t *kernel.Task, addr usermem.Addr) (kabi.SignalStack, error) {
	var b [signalStackSize]byte
	n, err := t.Memory().CopyIn(addr, b[:])
	if err := usermem.CheckFullCopy(n, len(b), err); err != nil {
		return kabi.SignalStack{}, kernelerr.EFAULT
	}
	return kabi.SignalStack{
		Addr:  usermem.ByteOrder.Uint64(b[0:8]),
		Flags: usermem.ByteOrder.Uint32(b[8:12]),
		Size:  usermem.ByteOrder.Uint64(b[16:24]),
	}, nil
}

func copyOutSignalStack(t *kernel.Task, addr usermem.Addr, ss kabi.SignalStack) error {
	var b [signalStackSize]byte
	usermem.ByteOrder.PutUint64(b[0:8], ss.Addr)
	usermem.ByteOrder.PutUint32(b[8:12], ss.Flags)
	usermem.ByteOrder.PutUint64(b[16:24], ss.Size)
	n, err := t.Memory().CopyOut(addr, b[:])
	if err := usermem.CheckFullCopy(n, len(b), err); err != nil {
		return kernelerr.EFAULT
	}
	return nil
}
