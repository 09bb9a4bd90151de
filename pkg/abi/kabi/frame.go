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

package kabi

// SigFrameMagic is the versioned magic value written at the top of every
// on-stack handler frame. The return-from-handler syscall refuses to restore
// a frame that does not carry it; see SigFrameAlign for placement rules.
//
// The value spells "kelsig1\x7f" and changes whenever the frame layout does.
const SigFrameMagic = uint64(0x7f316769736c656b)

// SigFrameAlign is the stack alignment required at handler entry by the
// calling convention. Frames are always placed on a SigFrameAlign boundary.
const SigFrameAlign = 16
