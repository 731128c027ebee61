// Copyright 2026 The gVisor Authors.
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

// Package sighandling reads and adjusts process signal dispositions without
// going through the Go runtime's os/signal machinery.
//
// It is meant for low-level fault handling where the caller needs to know
// which handler the kernel will invoke for a synchronous signal, not for
// receiving asynchronous notifications.
package sighandling

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned on platforms where dispositions cannot be
// inspected directly.
var ErrNotSupported = errors.New("signal dispositions not supported on this platform")

// Handler values with special meaning to the kernel.
const (
	SIG_DFL = 0
	SIG_IGN = 1
)

// Flags for SigAction.Flags.
const (
	SA_SIGINFO  = 0x00000004
	SA_RESTORER = 0x04000000
	SA_ONSTACK  = 0x08000000
	SA_RESTART  = 0x10000000
)

// SigAction mirrors the kernel's struct sigaction on 64-bit Linux.
type SigAction struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     uint64
}

// IsDefault returns true if the kernel's default action applies, i.e. no
// handler function is installed.
func (sa SigAction) IsDefault() bool {
	return sa.Handler == SIG_DFL
}

// IsIgnored returns true if the signal is ignored.
func (sa SigAction) IsIgnored() bool {
	return sa.Handler == SIG_IGN
}

// String implements fmt.Stringer.
func (sa SigAction) String() string {
	switch {
	case sa.IsDefault():
		return "SIG_DFL"
	case sa.IsIgnored():
		return "SIG_IGN"
	default:
		return fmt.Sprintf("handler=%#x flags=%#x", sa.Handler, sa.Flags)
	}
}
