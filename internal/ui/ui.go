// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ui drives the device's local controls: two momentary buttons and a
// status light that mirrors the telemetry upload switch. Buttons are wired
// active low with pull-ups and sampled on a poll timer rather than with edge
// interrupts, so a press is a high to low transition between polls.
package ui

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Button is a poll-sampled momentary button, active low.
type Button struct {
	pin  gpio.PinIn
	last gpio.Level
}

// NewButton configures the pin with a pull-up and returns the button in the
// released state.
func NewButton(pin gpio.PinIn) (*Button, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("ui: configuring button %s: %w", pin, err)
	}
	return &Button{pin: pin, last: gpio.High}, nil
}

// Pressed samples the pin and reports whether the button went down since the
// previous call. Holding the button yields a single press.
func (b *Button) Pressed() bool {
	level := b.pin.Read()
	pressed := level == gpio.Low && b.last == gpio.High
	b.last = level
	return pressed
}

// Light is a boolean status indicator.
type Light interface {
	Set(on bool) error
	State() bool
}

// PinLight drives an LED on a GPIO pin.
type PinLight struct {
	pin       gpio.PinOut
	activeLow bool
	on        bool
}

// NewPinLight returns a light driving pin, initially off. activeLow matches
// LEDs wired between the supply rail and the pin.
func NewPinLight(pin gpio.PinOut, activeLow bool) (*PinLight, error) {
	l := &PinLight{pin: pin, activeLow: activeLow}
	if err := l.Set(false); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PinLight) Set(on bool) error {
	if err := l.pin.Out(gpio.Level(on != l.activeLow)); err != nil {
		return fmt.Errorf("ui: driving light %s: %w", l.pin, err)
	}
	l.on = on
	return nil
}

func (l *PinLight) State() bool {
	return l.on
}

// Panel groups the thermometer's controls. The upload button toggles
// telemetry upload, the moved button signals the device was moved and the
// light shows whether upload is enabled.
type Panel struct {
	uploadButton *Button
	movedButton  *Button
	light        Light
}

// NewPanel configures both button pins and wires the light.
func NewPanel(uploadPin, movedPin gpio.PinIn, light Light) (*Panel, error) {
	upload, err := NewButton(uploadPin)
	if err != nil {
		return nil, err
	}
	moved, err := NewButton(movedPin)
	if err != nil {
		return nil, err
	}
	return &Panel{uploadButton: upload, movedButton: moved, light: light}, nil
}

// SimPanel is a panel without physical buttons for simulated devices. The
// controls are driven through the status API instead; only the light is real.
type SimPanel struct {
	light Light
}

// NewSimPanel wraps a light as a buttonless panel.
func NewSimPanel(light Light) *SimPanel {
	return &SimPanel{light: light}
}

func (p *SimPanel) Poll() (uploadToggled, moved bool) { return false, false }

func (p *SimPanel) SetLight(on bool) error { return p.light.Set(on) }

func (p *SimPanel) LightState() bool { return p.light.State() }

// Poll samples both buttons once.
func (p *Panel) Poll() (uploadToggled, moved bool) {
	return p.uploadButton.Pressed(), p.movedButton.Pressed()
}

// SetLight updates the status light.
func (p *Panel) SetLight(on bool) error {
	return p.light.Set(on)
}

// LightState reports the status light's current state.
func (p *Panel) LightState() bool {
	return p.light.State()
}
