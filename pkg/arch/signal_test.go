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

package arch

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"kelvin.dev/kelvin/pkg/abi/kabi"
	"kelvin.dev/kelvin/pkg/usermem"
)

const testStackSize = 0x2000

func newTestContext() (*Context, *Stack) {
	c := NewContext()
	for i := range c.Regs {
		c.Regs[i] = uint64(i) * 0x1111
	}
	c.Sp = testStackSize
	c.Pc = 0x400abc
	c.Flags = 0x5
	return c, &Stack{
		IO:     &usermem.BytesIO{Bytes: make([]byte, testStackSize)},
		Bottom: testStackSize,
	}
}

func TestSignalSetupEntersHandler(t *testing.T) {
	c, st := newTestContext()
	act := &kabi.SigAction{
		Handler: 0x500000,
		Flags:   kabi.SigFlagSigInfo,
	}
	info := &kabi.SignalInfo{Signo: int32(kabi.SIGUSR1), Code: kabi.SignalInfoUser}
	const trampoline = 0x600000

	if err := c.SignalSetup(st, act, info, kabi.SignalSetOf(kabi.SIGINT), trampoline); err != nil {
		t.Fatalf("SignalSetup: %v", err)
	}

	if c.Pc != act.Handler {
		t.Errorf("Pc: got %#x, wanted handler %#x", c.Pc, act.Handler)
	}
	if got, want := c.Regs[0], uint64(kabi.SIGUSR1); got != want {
		t.Errorf("first argument: got %d, wanted %d", got, want)
	}
	if c.Regs[30] != trampoline {
		t.Errorf("return linkage: got %#x, wanted trampoline %#x", c.Regs[30], trampoline)
	}
	if !usermem.Addr(c.Sp).IsAligned(kabi.SigFrameAlign) {
		t.Errorf("frame at %#x is not %d-byte aligned", c.Sp, kabi.SigFrameAlign)
	}
	if c.Regs[1] != c.Sp+sigFrameInfoOffset || c.Regs[2] != c.Sp+sigFrameContextOffset {
		t.Errorf("siginfo arguments: got (%#x, %#x)", c.Regs[1], c.Regs[2])
	}
}

func TestSignalRoundTrip(t *testing.T) {
	c, st := newTestContext()
	saved := c.Registers
	act := &kabi.SigAction{Handler: 0x500000}
	info := &kabi.SignalInfo{Signo: int32(kabi.SIGTERM)}
	oldMask := kabi.MakeSignalSet(kabi.SIGUSR1, kabi.SIGUSR2)

	if err := c.SignalSetup(st, act, info, oldMask, 0x600000); err != nil {
		t.Fatalf("SignalSetup: %v", err)
	}

	// Return from the handler: the frame sits at the handler's entry Sp.
	rst := &Stack{IO: st.IO, Bottom: usermem.Addr(c.Sp)}
	gotMask, err := c.SignalRestore(rst)
	if err != nil {
		t.Fatalf("SignalRestore: %v", err)
	}
	if gotMask != oldMask {
		t.Errorf("restored mask: got %#x, wanted %#x", gotMask, oldMask)
	}
	if diff := cmp.Diff(saved, c.Registers); diff != "" {
		t.Errorf("restored registers mismatch (-want +got):\n%s", diff)
	}
}

func TestSignalRestoreBadMagic(t *testing.T) {
	c, st := newTestContext()
	act := &kabi.SigAction{Handler: 0x500000}
	info := &kabi.SignalInfo{Signo: int32(kabi.SIGTERM)}
	if err := c.SignalSetup(st, act, info, 0, 0x600000); err != nil {
		t.Fatalf("SignalSetup: %v", err)
	}

	// Corrupt the magic in place.
	bio := st.IO.(*usermem.BytesIO)
	bio.Bytes[c.Sp] ^= 0xff

	rst := &Stack{IO: st.IO, Bottom: usermem.Addr(c.Sp)}
	if _, err := c.SignalRestore(rst); err != ErrBadSignalFrame {
		t.Fatalf("SignalRestore: got %v, wanted ErrBadSignalFrame", err)
	}
}

func TestStackPushPop(t *testing.T) {
	st := &Stack{IO: &usermem.BytesIO{Bytes: make([]byte, 256)}, Bottom: 256}
	in := uint64(0xdeadbeefcafef00d)
	addr, err := st.Push(&in)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if addr != st.Bottom {
		t.Errorf("Push address: got %#x, wanted bottom %#x", addr, st.Bottom)
	}
	var out uint64
	if err := st.Pop(&out); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if out != in {
		t.Errorf("Pop: got %#x, wanted %#x", out, in)
	}
	if st.Bottom != 256 {
		t.Errorf("Bottom after push/pop: got %#x, wanted 256", st.Bottom)
	}
}

func TestStackPushOverflow(t *testing.T) {
	st := &Stack{IO: &usermem.BytesIO{Bytes: make([]byte, 4)}, Bottom: 4}
	in := uint64(1)
	if _, err := st.Push(&in); err == nil {
		t.Fatalf("Push into tiny stack should have failed")
	}
}
