// Copyright 2017 The Periph Authors. All rights reserved.
// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package simled implements a status lamp that outputs to terminal (stdout)
// using ANSI color codes.
//
// Useful when the agent runs in simulated mode without a physical status LED
// wired to a GPIO pin.
package simled

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Opts represents the options available for the lamp.
type Opts struct {
	// Label is printed next to the lamp, e.g. "upload".
	Label string
	// On and Off are the colors rendered for the two states. Zero values
	// default to green/dark gray.
	On  color.NRGBA
	Off color.NRGBA
	// Writer overrides the output. Defaults to a colorable stdout.
	Writer io.Writer
	// Palette used to map colors to ANSI codes.
	Palette *ansi256.Palette
}

// Lamp is a single LED emulator that outputs to the console.
type Lamp struct {
	w       io.Writer
	label   string
	on      color.NRGBA
	off     color.NRGBA
	palette ansi256.Palette

	mu    sync.Mutex
	state bool
	buf   bytes.Buffer
}

// New returns a Lamp that displays at the console.
//
// Permits local testing of the status LED behavior.
func New(opts *Opts) *Lamp {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.Writer
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	on := opts.On
	if on == (color.NRGBA{}) {
		on = color.NRGBA{G: 255, A: 255}
	}
	off := opts.Off
	if off == (color.NRGBA{}) {
		off = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
	}
	return &Lamp{w: w, label: opts.Label, on: on, off: off, palette: *p}
}

func (l *Lamp) String() string {
	return fmt.Sprintf("simled{%s}", l.label)
}

// Set renders the lamp in the given state.
func (l *Lamp) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = on
	c := l.off
	word := "off"
	if on {
		c = l.on
		word = "on"
	}
	// This code is designed to minimize the amount of memory allocated per
	// call.
	l.buf.Reset()
	_, _ = l.buf.WriteString("\r\033[0m")
	_, _ = io.WriteString(&l.buf, l.palette.Block(c))
	_, _ = l.buf.WriteString("\033[0m ")
	_, _ = l.buf.WriteString(l.label)
	_, _ = l.buf.WriteString(": ")
	_, _ = l.buf.WriteString(word)
	_, _ = l.buf.WriteString("  ")
	_, err := l.buf.WriteTo(l.w)
	return err
}

// State returns the last state set.
func (l *Lamp) State() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Halt implements conn.Resource.
//
// It resets the terminal state so the display is not corrupted.
func (l *Lamp) Halt() error {
	_, err := l.w.Write([]byte("\n\033[0m"))
	return err
}
