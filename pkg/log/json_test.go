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
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLevelUnmarshal(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{`"warning"`, Warning},
		{`"info"`, Info},
		{`"debug"`, Debug},
		{"0", Warning},
		{"1", Info},
		{"2", Debug},
	} {
		var lv Level
		if err := lv.UnmarshalJSON([]byte(tc.in)); err != nil {
			t.Errorf("UnmarshalJSON(%s) failed: %v", tc.in, err)
			continue
		}
		if lv != tc.want {
			t.Errorf("UnmarshalJSON(%s) = %v, want %v", tc.in, lv, tc.want)
		}
	}

	var lv Level
	if err := lv.UnmarshalJSON([]byte(`"loud"`)); err == nil {
		t.Errorf("UnmarshalJSON(\"loud\") succeeded, want error")
	}
	if _, err := Level(7).MarshalJSON(); err == nil {
		t.Errorf("MarshalJSON(7) succeeded, want error")
	}
}

func TestJSONEmitters(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, tc := range []struct {
		name    string
		emitter func(*Writer) Emitter
		msgKey  string
	}{
		{"json", func(w *Writer) Emitter { return JSONEmitter{w} }, "msg"},
		{"json-k8s", func(w *Writer) Emitter { return K8sJSONEmitter{w} }, "log"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tw := &testWriter{}
			tc.emitter(&Writer{Next: tw}).Emit(0, Warning, ts, "fault at %#x", 0x8)
			if len(tw.lines) == 0 {
				t.Fatalf("nothing emitted")
			}
			var got map[string]any
			if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
				t.Fatalf("emitted invalid json %q: %v", tw.lines[0], err)
			}
			if got["level"] != "warning" {
				t.Errorf("level = %v, want warning", got["level"])
			}
			if got["time"] != "2026-01-02T03:04:05Z" {
				t.Errorf("time = %v, want 2026-01-02T03:04:05Z", got["time"])
			}
			msg, _ := got[tc.msgKey].(string)
			if !strings.HasSuffix(msg, "] fault at 0x8") {
				t.Errorf("%s = %q, want suffix %q", tc.msgKey, msg, "] fault at 0x8")
			}
		})
	}
}
