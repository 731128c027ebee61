// Copyright 2018 The gVisor Authors.
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

// Package safecopy provides functions to access memory that may fault,
// returning an error instead of crashing the process.
//
// Every access runs as a guarded call (see package faultguard). None of these
// functions may be called from inside another guarded call: they return
// faultguard.ErrAlreadyGuarded in that case.
//
// An unsafe.Pointer holding an address in the first page (other than nil) is
// not a valid Go value: the runtime aborts the process if it finds one on a
// goroutine stack, which no guarded call can recover. Memory identified only
// by a raw address, such as one read from the command line, must be accessed
// through the *Addr variants, which report first-page addresses as a
// SegvError without converting them to pointers.
package safecopy

import (
	"fmt"
	"os"
	"syscall"

	"gvisor.dev/faultguard/pkg/faultguard"
)

// SegvError is returned when a safecopy function faults.
type SegvError struct {
	// Addr is the address at which the fault occurred. For faults the
	// platform reports without an address, it is the lowest address the
	// failed access touched.
	Addr uintptr
}

// Error implements error.Error.
func (e SegvError) Error() string {
	return fmt.Sprintf("SIGSEGV at %#x", e.Addr)
}

// Is reports a fault as EFAULT.
func (e SegvError) Is(target error) bool {
	return target == syscall.EFAULT
}

// AlignmentError is returned when a safecopy function is passed an address
// that does not meet alignment requirements.
type AlignmentError struct {
	// Addr is the invalid address.
	Addr uintptr

	// Alignment is the required alignment.
	Alignment uintptr
}

// Error implements error.Error.
func (e AlignmentError) Error() string {
	return fmt.Sprintf("address %#x is not aligned to a %d-byte boundary", e.Addr, e.Alignment)
}

// Is reports a misaligned address as EFAULT.
func (e AlignmentError) Is(target error) bool {
	return target == syscall.EFAULT
}

// pageSize bounds each guarded access, so a fault never discards progress
// made in an earlier page.
var pageSize = uintptr(os.Getpagesize())

// pageLeft returns the number of bytes from addr to the end of its page.
func pageLeft(addr uintptr) uintptr {
	return pageSize - addr&(pageSize-1)
}

// nilPageEnd is the lowest address the runtime accepts in a pointer value.
const nilPageEnd = 4096

func init() {
	if err := faultguard.Install(); err != nil {
		panic(fmt.Sprintf("Unable to install fault trap: %v", err))
	}
}
