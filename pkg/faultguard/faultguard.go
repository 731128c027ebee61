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

// Package faultguard runs a function and reports whether it triggered a
// hardware memory access violation, instead of letting the fault kill the
// process.
//
// A guarded call arms the calling goroutine's recovery context and invokes the
// function on the current stack. If the function faults (SIGSEGV or SIGBUS on
// POSIX, an access violation on Windows), the runtime's fault trap unwinds the
// goroutine back into the guarded call, which reports Recovered. Faults on
// goroutines that are not inside a guarded call keep their default behaviour.
//
// Recovery does not repair anything: memory touched by the faulting function
// is left as it was, and resources it acquired are not released unless its
// own deferred calls release them while unwinding.
//
// Install must be called once during startup, before the first guarded call.
package faultguard

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"gvisor.dev/faultguard/pkg/log"
)

// Outcome is the result of a guarded call.
type Outcome int

const (
	// Completed means the function returned normally.
	Completed Outcome = iota

	// Recovered means the function caused a memory access violation, which
	// was caught. Any partial work done by the function is unreliable.
	Recovered

	// AlreadyGuarded means a guarded call was already in progress on the
	// calling goroutine. The function was not invoked.
	AlreadyGuarded
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Recovered:
		return "recovered"
	case AlreadyGuarded:
		return "already guarded"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ErrAlreadyGuarded is returned by Try when the calling goroutine is already
// inside a guarded call.
var ErrAlreadyGuarded = errors.New("faultguard: guarded call already in progress on this goroutine")

// FaultError describes a recovered memory access violation.
type FaultError struct {
	// Addr is the faulting address. It is only meaningful if HasAddr is set;
	// the runtime does not report addresses in the first page.
	Addr uintptr

	// HasAddr is true if Addr was reported by the platform.
	HasAddr bool

	// Err is the runtime error the fault was converted into.
	Err runtime.Error
}

// Error implements error.Error.
func (e *FaultError) Error() string {
	if e.HasAddr {
		return fmt.Sprintf("memory fault at %#x", e.Addr)
	}
	return "memory fault (nil or near-nil address)"
}

// Unwrap returns the underlying runtime error.
func (e *FaultError) Unwrap() error {
	return e.Err
}

// faultLog reports recovered faults. Code that probes memory in a loop can
// fault at a high rate, so it is rate limited.
var faultLog = log.BasicRateLimitedLogger(100 * time.Millisecond)

// SetFaultLogInterval sets the minimum interval between logged recovered
// faults. Zero logs every fault.
func SetFaultLogInterval(every time.Duration) {
	log.SetInterval(faultLog, every)
}

// trigger is reached at the resume point of a guarded call with the value the
// goroutine panicked with, and reports whether r is a memory fault. Anything
// else belongs to the caller and must be re-raised.
//
// Above the first page, the runtime's fault trap only turns a fault into a
// panic when the faulting goroutine is armed, so such a fault was raised
// inside this call. Faults in the first page panic on any goroutine, and the
// value carries no origin: one recovered elsewhere and panicked again inside
// the call is indistinguishable from a fault raised by the call itself.
func trigger(r any) (*FaultError, bool) {
	rerr, ok := r.(runtime.Error)
	if !ok {
		return nil, false
	}
	if a, ok := rerr.(interface{ Addr() uintptr }); ok {
		return &FaultError{Addr: a.Addr(), HasAddr: true, Err: rerr}, true
	}
	// Faults in the first page, and explicit nil checks, are reported
	// without an address.
	if strings.Contains(rerr.Error(), "invalid memory address") {
		return &FaultError{Err: rerr}, true
	}
	return nil, false
}

// guard implements the guarded call protocol shared by Call and Try.
func guard(f func(arg any), arg any) (outcome Outcome, fault *FaultError) {
	traps.mustBeInstalled()
	if f == nil {
		panic("faultguard: guarded call of nil function")
	}

	// The runtime's per-goroutine panic-on-fault flag is the armed bit.
	if debug.SetPanicOnFault(true) {
		stats.alreadyGuarded.Add(1)
		return AlreadyGuarded, nil
	}

	returned := false
	defer func() {
		debug.SetPanicOnFault(false)
		if returned {
			return
		}
		r := recover()
		if r == nil {
			// runtime.Goexit; let it continue.
			return
		}
		fe, ok := trigger(r)
		if !ok {
			stats.propagated.Add(1)
			panic(r)
		}
		stats.recovered.Add(1)
		if fe.HasAddr {
			faultLog.Debugf("Recovered memory fault at %#x", fe.Addr)
		} else {
			faultLog.Debugf("Recovered memory fault: %v", fe.Err)
		}
		outcome, fault = Recovered, fe
	}()

	f(arg)
	returned = true
	stats.completed.Add(1)
	return Completed, nil
}

// Call invokes f(arg) on the calling goroutine with fault recovery armed.
//
// If the goroutine is already inside a guarded call, Call returns
// AlreadyGuarded without invoking f. If f returns normally, Call returns
// Completed. If f causes a memory access violation, Call returns Recovered.
// Any other panic raised by f propagates to the caller unchanged.
//
// f must not change the goroutine's panic-on-fault setting. Goroutines started
// by f are not guarded. If f re-panics with a first-page fault value it
// recovered from somewhere else, Call reports Recovered, since such values do
// not record where they were raised.
//
// Call panics if Install has not completed successfully, or if f is nil.
func Call(f func(arg any), arg any) Outcome {
	outcome, _ := guard(f, arg)
	return outcome
}

// Try is like Call, but reports the outcome as an error: nil if f completed,
// a *FaultError if it faulted, or ErrAlreadyGuarded if f was not invoked.
func Try(f func()) error {
	if f == nil {
		panic("faultguard: guarded call of nil function")
	}
	outcome, fault := guard(func(any) { f() }, nil)
	switch outcome {
	case Recovered:
		return fault
	case AlreadyGuarded:
		return ErrAlreadyGuarded
	default:
		return nil
	}
}

// Stats counts guarded call outcomes since process start.
type Stats struct {
	// Completed counts calls whose function returned normally.
	Completed uint64

	// Recovered counts calls whose function faulted.
	Recovered uint64

	// AlreadyGuarded counts calls rejected because of reentrancy.
	AlreadyGuarded uint64

	// Propagated counts calls whose function panicked with something other
	// than a memory fault.
	Propagated uint64
}

type counters struct {
	completed      atomic.Uint64
	recovered      atomic.Uint64
	alreadyGuarded atomic.Uint64
	propagated     atomic.Uint64
}

var stats counters

// ReadStats returns a snapshot of the outcome counters.
func ReadStats() Stats {
	return Stats{
		Completed:      stats.completed.Load(),
		Recovered:      stats.recovered.Load(),
		AlreadyGuarded: stats.alreadyGuarded.Load(),
		Propagated:     stats.propagated.Load(),
	}
}
