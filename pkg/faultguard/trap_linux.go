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
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
	"gvisor.dev/faultguard/pkg/cleanup"
	"gvisor.dev/faultguard/pkg/log"
	"gvisor.dev/faultguard/pkg/sighandling"
)

// faultSignals are the signals the kernel raises for invalid memory accesses.
var faultSignals = []struct {
	sig  syscall.Signal
	name string
}{
	{unix.SIGSEGV, "SIGSEGV"},
	{unix.SIGBUS, "SIGBUS"},
}

// installTrap checks that a handler able to reach the runtime is installed
// for every fault signal and records it.
//
// The runtime's handler is what recovers: on a fault in an armed goroutine it
// rewrites the signal context so the goroutine panics once the handler
// returns, which restores the signal mask through sigreturn. On an unarmed
// goroutine it falls back to the default action, or to a handler that was
// installed before the runtime's, so nothing recorded here is ever called by
// this package directly.
//
// A handler installed by foreign code after the runtime is kept, since it may
// chain to the runtime. The runtime aborts if such a handler runs without
// SA_ONSTACK, so the flag is added when missing.
func installTrap() ([]Disposition, error) {
	var cu cleanup.Cleanup
	defer cu.Clean()

	ds := make([]Disposition, 0, len(faultSignals))
	for _, fs := range faultSignals {
		sa, err := sighandling.GetAction(fs.sig)
		if err != nil {
			return nil, fmt.Errorf("reading %s disposition: %w", fs.name, err)
		}
		if sa.IsDefault() || sa.IsIgnored() {
			return nil, fmt.Errorf("no handler installed for %s (%v), faults cannot be recovered", fs.name, sa)
		}
		d := Disposition{
			Name:    fs.name,
			Handler: uintptr(sa.Handler),
			Flags:   sa.Flags,
			Route:   "runtime signal handler",
		}
		if sa.Flags&sighandling.SA_ONSTACK == 0 {
			patched := sa
			patched.Flags |= sighandling.SA_ONSTACK
			if _, err := sighandling.SetAction(fs.sig, patched); err != nil {
				return nil, fmt.Errorf("adding SA_ONSTACK to %s handler: %w", fs.name, err)
			}
			sig, orig := fs.sig, sa
			cu.Add(func() {
				if _, err := sighandling.SetAction(sig, orig); err != nil {
					log.Warningf("Restoring %v handler failed: %v", sig, err)
				}
			})
			log.Warningf("%s handler %#x was installed without SA_ONSTACK, flag added", fs.name, sa.Handler)
			d.Patched = true
			d.Route = "foreign signal handler"
		}
		ds = append(ds, d)
	}

	// A thread that left a handler through a non-local jump (foreign code
	// using setjmp/longjmp, say) keeps the fault signals blocked. The runtime
	// unblocks them on threads it creates, not on the one running init code.
	sigs := make([]syscall.Signal, 0, len(faultSignals))
	for _, fs := range faultSignals {
		sigs = append(sigs, fs.sig)
	}
	if err := sighandling.UnblockSignals(sigs...); err != nil {
		return nil, fmt.Errorf("unblocking fault signals: %w", err)
	}

	cu.Release()
	return ds, nil
}
