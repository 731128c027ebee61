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

//go:build !linux || !(amd64 || arm64)
// +build !linux !amd64,!arm64

package sighandling

import "syscall"

// GetAction returns the current disposition of sig.
func GetAction(sig syscall.Signal) (SigAction, error) {
	return SigAction{}, ErrNotSupported
}

// SetAction installs sa as the disposition of sig.
func SetAction(sig syscall.Signal, sa SigAction) (SigAction, error) {
	return SigAction{}, ErrNotSupported
}

// UnblockSignals removes sigs from the signal mask of the calling thread.
func UnblockSignals(sigs ...syscall.Signal) error {
	return ErrNotSupported
}

// Blocked returns true if sig is blocked on the calling thread.
func Blocked(sig syscall.Signal) (bool, error) {
	return false, ErrNotSupported
}
