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
	"bytes"
	"encoding/binary"
	"fmt"

	"kelvin.dev/kelvin/pkg/usermem"
)

// Stack is a simple wrapper around a usermem.IO and an address. Stack
// implements grows-down semantics: the stack is initialized at Bottom (the
// highest address) and Push decrements it.
type Stack struct {
	// IO is the access mechanism for the target stack.
	IO usermem.IO

	// Bottom is the current lowest used address.
	Bottom usermem.Addr
}

// Push pushes the given binary-encodable value on to the stack and returns
// the address at which it was written. Values are encoded with the ABI byte
// order and natural (packed) layout; callers are responsible for alignment.
func (s *Stack) Push(val any) (usermem.Addr, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, usermem.ByteOrder, val); err != nil {
		return 0, fmt.Errorf("couldn't encode %T: %w", val, err)
	}
	n := buf.Len()
	if usermem.Addr(n) > s.Bottom {
		return 0, fmt.Errorf("stack overflow: can't push %d bytes at %#x", n, s.Bottom)
	}
	s.Bottom -= usermem.Addr(n)
	cn, err := s.IO.CopyOut(s.Bottom, buf.Bytes())
	if err = usermem.CheckFullCopy(cn, n, err); err != nil {
		s.Bottom += usermem.Addr(n)
		return 0, err
	}
	return s.Bottom, nil
}

// Pop reads a binary-encodable value from the current stack bottom and
// advances past it. val must be a pointer to a fixed-size type.
func (s *Stack) Pop(val any) error {
	n := binary.Size(val)
	if n < 0 {
		return fmt.Errorf("couldn't size %T", val)
	}
	b := make([]byte, n)
	cn, err := s.IO.CopyIn(s.Bottom, b)
	if err = usermem.CheckFullCopy(cn, n, err); err != nil {
		return err
	}
	if err := binary.Read(bytes.NewReader(b), usermem.ByteOrder, val); err != nil {
		return fmt.Errorf("couldn't decode %T: %w", val, err)
	}
	s.Bottom += usermem.Addr(n)
	return nil
}
