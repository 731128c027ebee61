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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

// output returns everything written so far.
func (w *testWriter) output() string {
	return strings.Join(w.lines, "")
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterAppendsNewline(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("no newline")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}
	if diff := cmp.Diff([]string{"no newline", "\n"}, tw.lines); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
}

func TestBasicLoggerLevels(t *testing.T) {
	for _, tc := range []struct {
		level Level
		want  string
	}{
		{Warning, "warn\n"},
		{Info, "info\nwarn\n"},
		{Debug, "debug\ninfo\nwarn\n"},
	} {
		t.Run(tc.level.String(), func(t *testing.T) {
			tw := &testWriter{}
			l := BasicLogger{Level: tc.level, Emitter: &Writer{Next: tw}}
			l.Debugf("debug")
			l.Infof("info")
			l.Warningf("warn")
			if diff := cmp.Diff(tc.want, tw.output()); diff != "" {
				t.Errorf("emitted lines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMultiEmitter(t *testing.T) {
	a, b := &testWriter{}, &testWriter{}
	m := MultiEmitter{&Writer{Next: a}, &Writer{Next: b}}
	l := BasicLogger{Level: Info, Emitter: &m}
	l.Infof("hello %d", 1)
	for _, tw := range []*testWriter{a, b} {
		if diff := cmp.Diff("hello 1\n", tw.output()); diff != "" {
			t.Errorf("emitted lines mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestGoogleEmitterFormat(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Info, Emitter: GoogleEmitter{&Writer{Next: tw}}}
	l.Infof("value=%d", 42)
	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(tw.lines), tw.lines)
	}
	re := regexp.MustCompile(`^I\d{4} \d{2}:\d{2}:\d{2}\.\d{6} +\d+ log_test\.go:\d+\] value=42\n$`)
	if !re.MatchString(tw.lines[0]) {
		t.Errorf("line %q does not match %v", tw.lines[0], re)
	}
}

func TestPatternOpts(t *testing.T) {
	start := time.Date(2026, 3, 4, 5, 6, 7, 8000, time.UTC)
	opts := PatternOpts{Command: "probe", Start: start}
	for _, tc := range []struct {
		pattern string
		want    string
	}{
		{"/tmp/x.log", "/tmp/x.log"},
		{"/tmp/%COMMAND%.log", "/tmp/probe.log"},
		{"/tmp/logs/", "/tmp/logs/faultctl.20260304-050607.000008.probe.txt"},
	} {
		if got := opts.Build(tc.pattern); got != tc.want {
			t.Errorf("Build(%q) = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "sub", "%COMMAND%.log"), os.O_WRONLY|os.O_CREATE, PatternOpts{Command: "selftest"})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if want := filepath.Join(dir, "sub", "selftest.log"); f.Name() != want {
		t.Errorf("file name = %q, want %q", f.Name(), want)
	}

	f, err = OpenFile("", os.O_WRONLY, PatternOpts{})
	if f != nil || err != nil {
		t.Errorf("OpenFile(\"\") = %v, %v, want nil, nil", f, err)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour)
	for i := 0; i < 5; i++ {
		rl.Debugf("message %d", i)
	}
	if diff := cmp.Diff("message 0\n", tw.output()); diff != "" {
		t.Errorf("emitted lines mismatch (-want +got):\n%s", diff)
	}

	// Suppressed messages are reported with the next allowed one.
	SetInterval(rl, 0)
	rl.Warningf("later")
	if want := "message 0\nlater (4 similar messages suppressed)\n"; tw.output() != want {
		t.Errorf("output = %q, want %q", tw.output(), want)
	}
}

func TestRateLimitedLoggerRespectsLevel(t *testing.T) {
	tw := &testWriter{}
	rl := RateLimitedLogger(&BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}, time.Nanosecond)
	rl.Debugf("hidden")
	if len(tw.lines) != 0 {
		t.Errorf("debug message emitted at info level: %v", tw.lines)
	}
	if rl.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = true at info level")
	}
}
