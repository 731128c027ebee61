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

//go:build windows
// +build windows

package faultguard

import (
	"golang.org/x/sys/windows"
)

// installTrap records the exception codes that are recoverable.
//
// Nothing is registered: the runtime adds its vectored exception handler at
// the head of the chain during startup. For an access violation on an armed
// goroutine it redirects the thread into the goroutine's panic path, and
// otherwise continues the search so default handling (and the crash report)
// is unchanged. Other exception codes never become memory faults.
func installTrap() ([]Disposition, error) {
	const route = "runtime vectored exception handler"
	return []Disposition{
		{Name: "EXCEPTION_ACCESS_VIOLATION", Code: uint32(windows.STATUS_ACCESS_VIOLATION), Route: route},
		{Name: "EXCEPTION_IN_PAGE_ERROR", Code: uint32(windows.STATUS_IN_PAGE_ERROR), Route: route},
	}, nil
}
