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

// Package cmd holds implementations of the faultctl commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
	"gvisor.dev/faultguard/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the caller of faultctl, not by a human reading debug logs.
var ErrorLogger io.Writer = os.Stderr

// Fatalf logs to stderr and the debug log, and exits.
func Fatalf(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(ErrorLogger, "faultctl: "+format+"\n", args...)
	os.Exit(128)
}

// outputFormats lists the values accepted by the -o flag of commands that
// print records.
const outputFormats = "table, json, yaml"

// table is implemented by record sets that can be printed as a table.
type table interface {
	header() []string
	rows() [][]string
}

// writeOutput writes v in the named format. v must implement table for the
// "table" format.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "table":
		t, ok := v.(table)
		if !ok {
			return fmt.Errorf("%T cannot be printed as a table", v)
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeRow(tw, t.header())
		for _, r := range t.rows() {
			writeRow(tw, r)
		}
		return tw.Flush()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q, must be one of: %s", format, outputFormats)
	}
}

func writeRow(w io.Writer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprint(w, "\n")
}

// checkOutput fails early on an unsupported -o value.
func checkOutput(format string) {
	switch format {
	case "table", "json", "yaml":
	default:
		Fatalf("Unsupported output format %q, must be one of: %s", format, outputFormats)
	}
}
