// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package simled

import (
	"bytes"
	"strings"
	"testing"
)

func TestSet(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Opts{Label: "upload", Writer: buf})
	if l.State() {
		t.Error("lamp starts on")
	}
	if err := l.Set(true); err != nil {
		t.Fatal(err)
	}
	if !l.State() {
		t.Error("State()=false after Set(true)")
	}
	out := buf.String()
	if !strings.Contains(out, "upload: on") {
		t.Errorf("output %q missing label and state", out)
	}
	if !strings.Contains(out, "\033[") {
		t.Errorf("output %q has no ANSI escape", out)
	}
	buf.Reset()
	if err := l.Set(false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "upload: off") {
		t.Errorf("output %q missing off state", buf.String())
	}
}

func TestHalt(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Opts{Label: "status", Writer: buf})
	if err := l.Halt(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "\033[0m") {
		t.Errorf("Halt() did not reset terminal attributes: %q", buf.String())
	}
}
