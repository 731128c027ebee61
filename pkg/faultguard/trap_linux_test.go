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

package faultguard

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sink keeps reads from being optimized away.
var sink byte

// protectedPage maps a page that faults on any access.
func protectedPage(t testing.TB) []byte {
	b, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_NONE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("Mmap failed: %v", err)
	}
	t.Cleanup(func() { unix.Munmap(b) })
	return b
}

func TestProtectedPageFault(t *testing.T) {
	b := protectedPage(t)
	want := uintptr(unsafe.Pointer(&b[0])) + 7

	for _, tc := range []struct {
		name string
		f    func()
	}{
		{"read", func() { sink = b[7] }},
		{"write", func() { b[7] = 1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Try(tc.f)
			var fe *FaultError
			if !errors.As(err, &fe) {
				t.Fatalf("Try = %v, want *FaultError", err)
			}
			if !fe.HasAddr || fe.Addr != want {
				t.Errorf("fault address = %#x (reported %t), want %#x", fe.Addr, fe.HasAddr, want)
			}
		})
	}
}

func TestHandlersRecorded(t *testing.T) {
	ds := Handlers()
	var names []string
	for _, d := range ds {
		names = append(names, d.Name)
		if d.Handler == 0 {
			t.Errorf("%s: no handler recorded", d.Name)
		}
		if d.Route == "" {
			t.Errorf("%s: no route recorded", d.Name)
		}
	}
	if got, want := strings.Join(names, ","), "SIGSEGV,SIGBUS"; got != want {
		t.Errorf("recorded signals = %q, want %q", got, want)
	}
}

const unguardedChildEnv = "FAULTGUARD_UNGUARDED_CHILD"

// unguardedFault faults on the calling goroutine while another goroutine is
// inside a guarded call. Only the faulting goroutine's context matters, so the
// process must crash.
func unguardedFault() {
	b, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_NONE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Mmap failed: %v\n", err)
		os.Exit(3)
	}
	armed := make(chan struct{})
	go func() {
		outcome := Call(func(any) {
			close(armed)
			select {}
		}, nil)
		fmt.Fprintf(os.Stderr, "armed goroutine returned %v\n", outcome)
	}()
	<-armed
	b[0] = 1
	fmt.Fprintf(os.Stderr, "unguarded fault did not crash\n")
	os.Exit(0)
}

func TestUnguardedFaultCrashes(t *testing.T) {
	if os.Getenv(unguardedChildEnv) == "1" {
		unguardedFault()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestUnguardedFaultCrashes$")
	cmd.Env = append(os.Environ(), unguardedChildEnv+"=1")
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("child did not fail: err=%v, output:\n%s", err, out)
	}
	if code := exitErr.ExitCode(); code == 0 || code == 3 {
		t.Fatalf("child exit code %d, output:\n%s", code, out)
	}
	if !strings.Contains(string(out), "unexpected fault address") {
		t.Errorf("child output does not report the fault:\n%s", out)
	}
	if strings.Contains(string(out), "armed goroutine returned") {
		t.Errorf("armed goroutine observed the other goroutine's fault:\n%s", out)
	}
}
