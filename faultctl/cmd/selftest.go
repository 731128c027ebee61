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
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/faultguard/pkg/faultguard"
	"gvisor.dev/faultguard/pkg/log"
)

// SelfTest implements subcommands.Command for the "selftest" command.
type SelfTest struct {
	output   string
	metrics  bool
	parallel int
}

// scenario is one recovery behaviour checked by selftest.
type scenario struct {
	name string
	want string

	// run exercises the behaviour and describes what happened in the same
	// terms as want.
	run func() (string, error)
}

// scenarioResult is one line of "selftest" output.
type scenarioResult struct {
	Name     string        `json:"name" yaml:"name"`
	Want     string        `json:"want" yaml:"want"`
	Got      string        `json:"got" yaml:"got"`
	Pass     bool          `json:"pass" yaml:"pass"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

type scenarioResults []scenarioResult

func (scenarioResults) header() []string {
	return []string{"SCENARIO", "RESULT", "WANT", "GOT", "DURATION"}
}

func (rs scenarioResults) rows() [][]string {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		result := "FAIL"
		if r.Pass {
			result = "ok"
		}
		rows = append(rows, []string{r.Name, result, r.Want, r.Got, r.Duration.String()})
	}
	return rows
}

// nilPagePtr is nil, so writing through it faults in the unmapped first page.
var nilPagePtr *int32

func writeNilPage(any) {
	*nilPagePtr = 1
}

func noop(any) {}

// armed reports whether the calling goroutine is inside a guarded call.
func armed() bool {
	prev := debug.SetPanicOnFault(false)
	debug.SetPanicOnFault(prev)
	return prev
}

// coreScenarios are the behaviours that hold on every platform.
func coreScenarios() []scenario {
	return []scenario{
		{
			name: "completes without fault",
			want: "completed, ran 1 time(s)",
			run: func() (string, error) {
				calls := 0
				outcome := faultguard.Call(func(any) { calls++ }, nil)
				return fmt.Sprintf("%v, ran %d time(s)", outcome, calls), nil
			},
		},
		{
			name: "recovers from nil-page write",
			want: "recovered",
			run: func() (string, error) {
				return faultguard.Call(writeNilPage, nil).String(), nil
			},
		},
		{
			name: "reusable after recovery",
			want: "recovered, recovered, completed",
			run: func() (string, error) {
				var got []string
				for _, f := range []func(any){writeNilPage, writeNilPage, noop} {
					got = append(got, faultguard.Call(f, nil).String())
				}
				return strings.Join(got, ", "), nil
			},
		},
		{
			name: "rejects nested call",
			want: "outer completed, inner already guarded, inner ran false",
			run: func() (string, error) {
				var inner faultguard.Outcome
				innerRan := false
				outer := faultguard.Call(func(any) {
					inner = faultguard.Call(func(any) { innerRan = true }, nil)
				}, nil)
				return fmt.Sprintf("outer %v, inner %v, inner ran %t", outer, inner, innerRan), nil
			},
		},
		{
			name: "isolates goroutines",
			want: "faulting recovered, armed completed",
			run: func() (string, error) {
				bArmed := make(chan struct{})
				release := make(chan struct{})
				var a, b faultguard.Outcome
				var g errgroup.Group
				g.Go(func() error {
					b = faultguard.Call(func(any) {
						close(bArmed)
						<-release
					}, nil)
					return nil
				})
				g.Go(func() error {
					<-bArmed
					a = faultguard.Call(writeNilPage, nil)
					close(release)
					return nil
				})
				if err := g.Wait(); err != nil {
					return "", err
				}
				return fmt.Sprintf("faulting %v, armed %v", a, b), nil
			},
		},
		{
			name: "propagates other panics",
			want: "panic boom propagated, armed false",
			run: func() (got string, err error) {
				defer func() {
					r := recover()
					got = fmt.Sprintf("panic %v propagated, armed %t", r, armed())
				}()
				faultguard.Call(func(any) { panic("boom") }, nil)
				return "no panic", nil
			},
		},
	}
}

// Name implements subcommands.Command.Name.
func (*SelfTest) Name() string {
	return "selftest"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*SelfTest) Synopsis() string {
	return "Check that memory faults are recovered in this process."
}

// Usage implements subcommands.Command.Usage.
func (*SelfTest) Usage() string {
	return `selftest [options] - Run fault recovery scenarios in-process and print one result per scenario.

Exits with failure if any scenario does not behave as expected.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *SelfTest) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format ("+outputFormats+").")
	f.BoolVar(&s.metrics, "metrics", false, "print guarded call counters in Prometheus text format after the results.")
	f.IntVar(&s.parallel, "parallel", 1, "number of scenarios to run concurrently.")
}

// Execute implements subcommands.Command.Execute.
func (s *SelfTest) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	checkOutput(s.output)
	if s.parallel < 1 {
		Fatalf("parallel must be positive: %d", s.parallel)
	}

	results, err := runScenarios(ctx, append(coreScenarios(), platformScenarios()...), s.parallel)
	if err != nil {
		Fatalf("%v", err)
	}
	if err := writeOutput(os.Stdout, s.output, results); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	if s.metrics {
		if err := writeMetrics(os.Stdout); err != nil {
			Fatalf("Error writing metrics: %v", err)
		}
	}

	failed := 0
	for _, r := range results {
		if !r.Pass {
			failed++
		}
	}
	if failed > 0 {
		log.Warningf("%d of %d scenarios failed", failed, len(results))
		return subcommands.ExitFailure
	}
	log.Infof("All %d scenarios passed", len(results))
	return subcommands.ExitSuccess
}

// runScenarios runs scenarios with at most parallel in flight. Results are in
// scenario order.
func runScenarios(ctx context.Context, scenarios []scenario, parallel int) (scenarioResults, error) {
	if err := faultguard.Install(); err != nil {
		return nil, fmt.Errorf("installing fault trap: %w", err)
	}

	results := make(scenarioResults, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			got, err := sc.run()
			if err != nil {
				got = "error: " + err.Error()
			}
			results[i] = scenarioResult{
				Name:     sc.name,
				Want:     sc.want,
				Got:      got,
				Pass:     err == nil && got == sc.want,
				Duration: time.Since(start),
			}
			log.Debugf("Scenario %q: got %q, want %q", sc.name, got, sc.want)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
