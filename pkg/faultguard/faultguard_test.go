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
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// invalidPtr is nil. The first page is never mapped, so accessing it faults.
// Other first-page addresses are not valid pointer values.
var invalidPtr *int32

func writeInvalid(any) {
	*invalidPtr = 1
}

var sinkInt int32

func readInvalid(any) {
	sinkInt = *invalidPtr
}

func noop(any) {}

func TestMain(m *testing.M) {
	if err := Install(); err != nil {
		fmt.Fprintf(os.Stderr, "Install failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// armed reports whether the calling goroutine is armed, without changing it.
func armed() bool {
	prev := debug.SetPanicOnFault(false)
	debug.SetPanicOnFault(prev)
	return prev
}

func TestCompletedRunsOnce(t *testing.T) {
	calls := 0
	var got any
	outcome := Call(func(arg any) {
		calls++
		got = arg
	}, "payload")
	if outcome != Completed {
		t.Errorf("Call returned %v, want %v", outcome, Completed)
	}
	if calls != 1 {
		t.Errorf("function ran %d times, want 1", calls)
	}
	if got != "payload" {
		t.Errorf("function got argument %v, want %q", got, "payload")
	}
	if armed() {
		t.Errorf("goroutine still armed after Completed")
	}
}

func TestRecovered(t *testing.T) {
	for _, tc := range []struct {
		name string
		f    func(any)
	}{
		{"write", writeInvalid},
		{"read", readInvalid},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if outcome := Call(tc.f, nil); outcome != Recovered {
				t.Errorf("Call returned %v, want %v", outcome, Recovered)
			}
			if armed() {
				t.Errorf("goroutine still armed after Recovered")
			}
		})
	}
}

func TestRecoveredTwice(t *testing.T) {
	// The second fault only recovers if the first left nothing behind.
	for i := 0; i < 2; i++ {
		if outcome := Call(writeInvalid, nil); outcome != Recovered {
			t.Fatalf("attempt %d: Call returned %v, want %v", i, outcome, Recovered)
		}
	}
}

func TestCompletedAfterRecovered(t *testing.T) {
	if outcome := Call(writeInvalid, nil); outcome != Recovered {
		t.Fatalf("Call returned %v, want %v", outcome, Recovered)
	}
	if outcome := Call(noop, nil); outcome != Completed {
		t.Errorf("Call after recovery returned %v, want %v", outcome, Completed)
	}
}

func TestNested(t *testing.T) {
	for _, tc := range []struct {
		name  string
		fault bool
		want  Outcome
	}{
		{"no fault", false, Completed},
		{"fault after nested call", true, Recovered},
	} {
		t.Run(tc.name, func(t *testing.T) {
			innerRan := false
			var inner Outcome
			outer := Call(func(any) {
				inner = Call(func(any) { innerRan = true }, nil)
				if tc.fault {
					writeInvalid(nil)
				}
			}, nil)
			if inner != AlreadyGuarded {
				t.Errorf("inner Call returned %v, want %v", inner, AlreadyGuarded)
			}
			if innerRan {
				t.Errorf("inner function ran")
			}
			if outer != tc.want {
				t.Errorf("outer Call returned %v, want %v", outer, tc.want)
			}
			if armed() {
				t.Errorf("goroutine still armed after nested calls")
			}
		})
	}
}

func TestOtherPanicsPropagate(t *testing.T) {
	var got any
	func() {
		defer func() { got = recover() }()
		Call(func(any) { panic("boom") }, nil)
	}()
	if got != "boom" {
		t.Fatalf("recovered %v, want %q", got, "boom")
	}
	if armed() {
		t.Errorf("goroutine still armed after propagated panic")
	}

	// Runtime errors other than memory faults propagate as well.
	func() {
		defer func() { got = recover() }()
		Call(func(any) {
			var s []int
			i := 3
			_ = s[i]
		}, nil)
	}()
	if _, ok := got.(runtime.Error); !ok {
		t.Fatalf("recovered %v, want an index runtime.Error", got)
	}
	if _, ok := trigger(got); ok {
		t.Errorf("index error classified as memory fault")
	}
}

func TestNilFunctionPanics(t *testing.T) {
	for _, tc := range []struct {
		name string
		call func()
	}{
		{"Call", func() { Call(nil, nil) }},
		{"Try", func() { Try(nil) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			before := ReadStats()
			var got any
			func() {
				defer func() { got = recover() }()
				tc.call()
			}()
			if got == nil {
				t.Fatalf("%s(nil) did not panic", tc.name)
			}
			if _, ok := trigger(got); ok {
				t.Errorf("%s(nil) panicked with a memory fault: %v", tc.name, got)
			}
			if diff := cmp.Diff(before, ReadStats()); diff != "" {
				t.Errorf("stats changed (-want +got):\n%s", diff)
			}
			if armed() {
				t.Errorf("goroutine armed after %s(nil)", tc.name)
			}
		})
	}
}

func TestRepanickedFirstPageFault(t *testing.T) {
	// A first-page fault recovered on an unguarded goroutine carries no
	// origin, so re-raising it inside a guarded call counts as a fault there.
	faults := make(chan any, 1)
	go func() {
		defer func() { faults <- recover() }()
		writeInvalid(nil)
	}()
	v := <-faults
	if _, ok := trigger(v); !ok {
		t.Fatalf("unguarded goroutine recovered %v, want a memory fault", v)
	}
	if outcome := Call(func(any) { panic(v) }, nil); outcome != Recovered {
		t.Errorf("Call returned %v, want %v", outcome, Recovered)
	}
}

func TestGoexit(t *testing.T) {
	done := make(chan bool)
	go func() {
		defer func() { done <- armed() }()
		Call(func(any) { runtime.Goexit() }, nil)
		t.Errorf("Call returned after Goexit")
	}()
	if <-done {
		t.Errorf("goroutine still armed during Goexit")
	}
}

func TestTry(t *testing.T) {
	if err := Try(func() {}); err != nil {
		t.Errorf("Try(noop) = %v, want nil", err)
	}

	err := Try(func() { writeInvalid(nil) })
	var fe *FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("Try(writeInvalid) = %v, want *FaultError", err)
	}
	var rerr runtime.Error
	if !errors.As(err, &rerr) {
		t.Errorf("FaultError does not unwrap to runtime.Error")
	}

	var nested error
	err = Try(func() { nested = Try(func() {}) })
	if err != nil {
		t.Errorf("outer Try = %v, want nil", err)
	}
	if !errors.Is(nested, ErrAlreadyGuarded) {
		t.Errorf("nested Try = %v, want %v", nested, ErrAlreadyGuarded)
	}
}

func TestConcurrentContextsAreIndependent(t *testing.T) {
	bArmed := make(chan struct{})
	release := make(chan struct{})
	var a, b Outcome

	var g errgroup.Group
	g.Go(func() error {
		b = Call(func(any) {
			close(bArmed)
			<-release
		}, nil)
		return nil
	})
	g.Go(func() error {
		<-bArmed
		a = Call(writeInvalid, nil)
		close(release)
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}
	if a != Recovered {
		t.Errorf("faulting goroutine got %v, want %v", a, Recovered)
	}
	if b != Completed {
		t.Errorf("armed goroutine got %v, want %v", b, Completed)
	}
}

func TestManyGoroutines(t *testing.T) {
	const n = 16
	outcomes := make([]Outcome, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if i%2 == 0 {
				outcomes[i] = Call(writeInvalid, nil)
			} else {
				outcomes[i] = Call(noop, nil)
			}
			return nil
		})
	}
	g.Wait()
	for i, got := range outcomes {
		want := Completed
		if i%2 == 0 {
			want = Recovered
		}
		if got != want {
			t.Errorf("goroutine %d: got %v, want %v", i, got, want)
		}
	}
}

func TestStats(t *testing.T) {
	before := ReadStats()
	Call(noop, nil)
	Call(writeInvalid, nil)
	Call(func(any) { Call(noop, nil) }, nil)
	func() {
		defer func() { recover() }()
		Call(func(any) { panic("boom") }, nil)
	}()
	after := ReadStats()

	got := Stats{
		Completed:      after.Completed - before.Completed,
		Recovered:      after.Recovered - before.Recovered,
		AlreadyGuarded: after.AlreadyGuarded - before.AlreadyGuarded,
		Propagated:     after.Propagated - before.Propagated,
	}
	want := Stats{Completed: 2, Recovered: 1, AlreadyGuarded: 1, Propagated: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats delta mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallIdempotent(t *testing.T) {
	before := Handlers()
	if err := Install(); err != nil {
		t.Fatalf("second Install failed: %v", err)
	}
	if !Installed() {
		t.Fatalf("Installed() = false after Install")
	}
	if diff := cmp.Diff(before, Handlers()); diff != "" {
		t.Errorf("dispositions changed on second Install (-want +got):\n%s", diff)
	}
	if len(before) == 0 {
		t.Errorf("no dispositions recorded")
	}
}

func TestCallBeforeInstallPanics(t *testing.T) {
	var fresh trapState
	defer func() {
		if recover() == nil {
			t.Errorf("mustBeInstalled did not panic on a fresh trap state")
		}
	}()
	fresh.mustBeInstalled()
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{
		Completed:      "completed",
		Recovered:      "recovered",
		AlreadyGuarded: "already guarded",
		Outcome(9):     "Outcome(9)",
	} {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}

func TestFaultErrorMessage(t *testing.T) {
	for _, tc := range []struct {
		err  *FaultError
		want string
	}{
		{&FaultError{Addr: 0x7f0000001000, HasAddr: true}, "memory fault at 0x7f0000001000"},
		{&FaultError{}, "memory fault (nil or near-nil address)"},
	} {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}
