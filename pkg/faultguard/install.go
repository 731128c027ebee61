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

package faultguard

import (
	"runtime"
	"sync"
	"sync/atomic"

	"gvisor.dev/faultguard/pkg/log"
)

// Disposition records how one class of fault was routed when the trap was
// installed.
type Disposition struct {
	// Name is the signal or exception code, e.g. "SIGSEGV".
	Name string `json:"name"`

	// Handler is the address of the handler found at install time. It is
	// zero where the platform does not expose one.
	Handler uintptr `json:"handler,omitempty"`

	// Flags are the handler flags found at install time.
	Flags uint64 `json:"flags,omitempty"`

	// Code is the exception code on Windows.
	Code uint32 `json:"code,omitempty"`

	// Patched is true if the trap had to adjust the handler flags.
	Patched bool `json:"patched,omitempty"`

	// Route describes who converts the fault into a recovery.
	Route string `json:"route"`
}

// trapState is the process-wide fault trap bookkeeping. It is written once,
// by the first call to Install, and is read-only afterwards.
type trapState struct {
	once sync.Once

	// err is the result of the first installation attempt.
	err error

	// installed is set once installation succeeded. It is the only field
	// read on the guarded call path.
	installed atomic.Bool

	// dispositions holds what the platform trap found for each fault class.
	// On POSIX these are the previously installed handlers that unguarded
	// faults continue to reach.
	dispositions []Disposition
}

var traps trapState

func (t *trapState) mustBeInstalled() {
	if !t.installed.Load() {
		panic("faultguard: guarded call before a successful Install")
	}
}

// Install installs the process-wide fault trap. It must be called during
// startup, before any goroutine makes a guarded call.
//
// Install is idempotent: only the first call does any work, and every call
// returns the result of the first. The trap cannot be uninstalled.
func Install() error {
	traps.once.Do(func() {
		ds, err := installTrap()
		if err != nil {
			log.Warningf("Fault trap installation failed on %s/%s: %v", runtime.GOOS, runtime.GOARCH, err)
			traps.err = err
			return
		}
		traps.dispositions = ds
		for _, d := range ds {
			log.Infof("Fault trap: %s routed by %s (handler %#x, flags %#x, patched %t)", d.Name, d.Route, d.Handler, d.Flags, d.Patched)
		}
		traps.installed.Store(true)
	})
	return traps.err
}

// Installed returns true if Install completed successfully.
func Installed() bool {
	return traps.installed.Load()
}

// Handlers returns the dispositions recorded by Install, or nil if the trap
// is not installed.
func Handlers() []Disposition {
	if !traps.installed.Load() {
		return nil
	}
	return append([]Disposition(nil), traps.dispositions...)
}
