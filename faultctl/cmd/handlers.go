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
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"
	"gvisor.dev/faultguard/pkg/faultguard"
)

// Handlers implements subcommands.Command for the "handlers" command.
type Handlers struct {
	output string
}

// handlerRecord is one line of "handlers" output.
type handlerRecord struct {
	Name    string `json:"name" yaml:"name"`
	Handler string `json:"handler,omitempty" yaml:"handler,omitempty"`
	Flags   string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
	Patched bool   `json:"patched" yaml:"patched"`
	Route   string `json:"route" yaml:"route"`
}

type handlerRecords []handlerRecord

func (handlerRecords) header() []string {
	return []string{"FAULT", "HANDLER", "FLAGS", "CODE", "PATCHED", "ROUTE"}
}

func (hs handlerRecords) rows() [][]string {
	rows := make([][]string, 0, len(hs))
	for _, h := range hs {
		rows = append(rows, []string{h.Name, dash(h.Handler), dash(h.Flags), dash(h.Code), strconv.FormatBool(h.Patched), h.Route})
	}
	return rows
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func hexOrEmpty[T uintptr | uint64 | uint32](v T) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%#x", v)
}

func newHandlerRecords(ds []faultguard.Disposition) handlerRecords {
	hs := make(handlerRecords, 0, len(ds))
	for _, d := range ds {
		hs = append(hs, handlerRecord{
			Name:    d.Name,
			Handler: hexOrEmpty(d.Handler),
			Flags:   hexOrEmpty(d.Flags),
			Code:    hexOrEmpty(d.Code),
			Patched: d.Patched,
			Route:   d.Route,
		})
	}
	return hs
}

// Name implements subcommands.Command.Name.
func (*Handlers) Name() string {
	return "handlers"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Handlers) Synopsis() string {
	return "Print how memory faults are routed in this process."
}

// Usage implements subcommands.Command.Usage.
func (*Handlers) Usage() string {
	return `handlers [options] - Print the fault handlers recorded when the fault trap was installed.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (h *Handlers) SetFlags(f *flag.FlagSet) {
	f.StringVar(&h.output, "o", "table", "Output format ("+outputFormats+").")
}

// Execute implements subcommands.Command.Execute.
func (h *Handlers) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	checkOutput(h.output)

	if !faultguard.Installed() {
		Fatalf("fault trap is not installed")
	}
	if err := writeOutput(os.Stdout, h.output, newHandlerRecords(faultguard.Handlers())); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}
