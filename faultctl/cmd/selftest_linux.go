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

//go:build linux
// +build linux

package cmd

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/faultguard/pkg/faultguard"
	"gvisor.dev/faultguard/pkg/safecopy"
)

// withGuardPage maps two pages and makes the second inaccessible.
func withGuardPage(fn func(mapping []byte) (string, error)) (string, error) {
	ps := os.Getpagesize()
	mapping, err := unix.Mmap(-1, 0, 2*ps, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return "", fmt.Errorf("mmap: %w", err)
	}
	defer unix.Munmap(mapping)
	if err := unix.Mprotect(mapping[ps:], unix.PROT_NONE); err != nil {
		return "", fmt.Errorf("mprotect: %w", err)
	}
	return fn(mapping)
}

func platformScenarios() []scenario {
	return []scenario{
		{
			name: "recovers from protected page access",
			want: "recovered at guard page offset 16",
			run: func() (string, error) {
				return withGuardPage(func(mapping []byte) (string, error) {
					ps := os.Getpagesize()
					guard := uintptr(unsafe.Pointer(&mapping[ps]))
					err := faultguard.Try(func() { mapping[ps+16] = 1 })
					var fe *faultguard.FaultError
					if !errors.As(err, &fe) {
						return fmt.Sprintf("no fault: %v", err), nil
					}
					if !fe.HasAddr {
						return "recovered without address", nil
					}
					return fmt.Sprintf("recovered at guard page offset %d", fe.Addr-guard), nil
				})
			},
		},
		{
			name: "safecopy stops at guard page",
			want: "copied 100 bytes, faulted in guard page",
			run: func() (string, error) {
				return withGuardPage(func(mapping []byte) (string, error) {
					ps := os.Getpagesize()
					guard := uintptr(unsafe.Pointer(&mapping[ps]))
					n, err := safecopy.CopyIn(make([]byte, ps), unsafe.Pointer(&mapping[ps-100]))
					var segv safecopy.SegvError
					if !errors.As(err, &segv) {
						return fmt.Sprintf("copied %d bytes, error %v", n, err), nil
					}
					where := "outside guard page"
					if segv.Addr >= guard && segv.Addr < guard+uintptr(ps) {
						where = "in guard page"
					}
					return fmt.Sprintf("copied %d bytes, faulted %s", n, where), nil
				})
			},
		},
	}
}
