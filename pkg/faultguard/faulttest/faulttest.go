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

// Package faulttest provides test assertions about memory faults.
package faulttest

import (
	"errors"
	"fmt"
	"testing"

	"gvisor.dev/faultguard/pkg/faultguard"
)

// Check runs f in a guarded call and returns true if it caused a memory
// access violation. The fault trap is installed if needed.
//
// Panics from f that are not memory faults propagate. Check panics if it is
// called from inside f.
func Check(f func()) bool {
	if err := faultguard.Install(); err != nil {
		panic(fmt.Sprintf("installing fault trap: %v", err))
	}
	err := faultguard.Try(f)
	switch {
	case err == nil:
		return false
	case errors.Is(err, faultguard.ErrAlreadyGuarded):
		panic("nested fault assertion is not supported")
	default:
		return true
	}
}

// MustFault fails t unless f causes a memory access violation. msgAndArgs,
// if given, is a format string and its arguments replacing the default
// failure message.
func MustFault(t testing.TB, f func(), msgAndArgs ...any) {
	t.Helper()
	if Check(f) {
		return
	}
	msg := "expected a memory fault"
	if len(msgAndArgs) > 0 {
		if format, ok := msgAndArgs[0].(string); ok {
			msg = fmt.Sprintf(format, msgAndArgs[1:]...)
		} else {
			msg = fmt.Sprint(msgAndArgs...)
		}
	}
	t.Error(msg)
}
