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

//go:build !windows && !(linux && (amd64 || arm64))
// +build !windows
// +build !linux !amd64,!arm64

package faultguard

// installTrap records the fault signals. Dispositions are not inspected on
// this platform; the runtime's handler is trusted to be in place.
func installTrap() ([]Disposition, error) {
	const route = "runtime signal handler (not inspected)"
	return []Disposition{
		{Name: "SIGSEGV", Route: route},
		{Name: "SIGBUS", Route: route},
	}, nil
}
