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

//go:build linux && (amd64 || arm64)
// +build linux
// +build amd64 arm64

package sighandling

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// signalSetSize is the size of the kernel's sigset_t in bytes.
const signalSetSize = 8

// rt_sigprocmask "how" values.
const (
	sigBlock   = 0
	sigUnblock = 1
)

func sigmask(sigs []syscall.Signal) uint64 {
	var mask uint64
	for _, sig := range sigs {
		mask |= 1 << (uint(sig) - 1)
	}
	return mask
}

// GetAction returns the current disposition of sig.
func GetAction(sig syscall.Signal) (SigAction, error) {
	var sa SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(&sa)), signalSetSize, 0, 0); e != 0 {
		return SigAction{}, e
	}
	return sa, nil
}

// SetAction installs sa as the disposition of sig and returns the disposition
// it replaced. This bypasses the Go runtime signal handlers, and should only
// be used to adjust low-level handlers where signal.Notify is not
// appropriate.
func SetAction(sig syscall.Signal, sa SigAction) (SigAction, error) {
	var old SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Pointer(&old)), signalSetSize, 0, 0); e != 0 {
		return SigAction{}, e
	}
	return old, nil
}

// UnblockSignals removes sigs from the signal mask of the calling thread.
//
// The mask is per thread; callers that need it to hold for a particular
// goroutine must lock that goroutine to its thread first.
func UnblockSignals(sigs ...syscall.Signal) error {
	mask := sigmask(sigs)
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, sigUnblock, uintptr(unsafe.Pointer(&mask)), 0, signalSetSize, 0, 0); e != 0 {
		return e
	}
	return nil
}

// Blocked returns true if sig is blocked on the calling thread.
func Blocked(sig syscall.Signal) (bool, error) {
	var empty, cur uint64
	// Blocking the empty set is a read of the current mask.
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, sigBlock, uintptr(unsafe.Pointer(&empty)), uintptr(unsafe.Pointer(&cur)), signalSetSize, 0, 0); e != 0 {
		return false, e
	}
	return cur&sigmask([]syscall.Signal{sig}) != 0, nil
}
