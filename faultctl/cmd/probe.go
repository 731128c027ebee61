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

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"
	"gvisor.dev/faultguard/pkg/faultguard"
	"gvisor.dev/faultguard/pkg/log"
	"gvisor.dev/faultguard/pkg/safecopy"
)

// Probe implements subcommands.Command for the "probe" command.
type Probe struct {
	addr   string
	op     string
	size   uint
	expect string
}

// probeOps maps -op values to the access they perform on the n bytes at
// addr. "write" stores back the bytes it read, so a probe of valid memory
// leaves it unchanged.
var probeOps = map[string]func(addr, n uintptr) error{
	"read": func(addr, n uintptr) error {
		_, err := safecopy.CopyInAddr(make([]byte, n), addr)
		return err
	},
	"write": func(addr, n uintptr) error {
		buf := make([]byte, n)
		if _, err := safecopy.CopyInAddr(buf, addr); err != nil {
			return err
		}
		_, err := safecopy.CopyOutAddr(addr, buf)
		return err
	},
	"zero": func(addr, n uintptr) error {
		_, err := safecopy.ZeroOutAddr(addr, n)
		return err
	},
}

// Name implements subcommands.Command.Name.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Probe) Synopsis() string {
	return "Access an address in a guarded call and report the outcome."
}

// Usage implements subcommands.Command.Usage.
func (*Probe) Usage() string {
	return `probe -addr=ADDR [options] - Access ADDR in a guarded call and print whether it completed or faulted.

The access goes through safecopy, one page at a time. "zero" overwrites
memory: probing an address that belongs to this process with it may crash
faultctl later.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *Probe) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.addr, "addr", "", "address to access, in Go integer syntax (e.g. 0x1000).")
	f.StringVar(&p.op, "op", "read", "access to perform: read, write (read and store back), zero.")
	f.UintVar(&p.size, "size", 1, "number of bytes to access.")
	f.StringVar(&p.expect, "expect", "", "if set, exit with failure unless the outcome is this one: completed, recovered.")
}

// Execute implements subcommands.Command.Execute.
func (p *Probe) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || p.addr == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	addr, err := strconv.ParseUint(p.addr, 0, 64)
	if err != nil {
		Fatalf("invalid address %q: %v", p.addr, err)
	}
	op, ok := probeOps[p.op]
	if !ok {
		Fatalf("invalid operation %q, must be 'read', 'write', or 'zero'", p.op)
	}
	switch p.expect {
	case "", faultguard.Completed.String(), faultguard.Recovered.String():
	default:
		Fatalf("invalid expected outcome %q, must be 'completed' or 'recovered'", p.expect)
	}
	if p.size == 0 {
		Fatalf("size must be positive")
	}

	outcome := faultguard.Completed
	err = op(uintptr(addr), uintptr(p.size))
	var segv safecopy.SegvError
	switch {
	case err == nil:
	case errors.As(err, &segv):
		outcome = faultguard.Recovered
	default:
		Fatalf("probe failed: %v", err)
	}
	log.Infof("Probe %s of %d bytes at %#x: %v", p.op, p.size, addr, outcome)
	if err != nil {
		fmt.Fprintf(os.Stdout, "%s %#x: %v (%v)\n", p.op, addr, outcome, err)
	} else {
		fmt.Fprintf(os.Stdout, "%s %#x: %v\n", p.op, addr, outcome)
	}

	if p.expect != "" && p.expect != outcome.String() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
