// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package simtherm implements a simulated thermometer for running the agent
// without sensor hardware.
//
// Each reading takes a small random step from the previous one, bounded to a
// plausible range, so the produced series looks like a slowly drifting room
// measurement. It implements physic.SenseEnv and can be used anywhere an
// sht3x device can.
package simtherm

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Opts holds the configuration options for the simulated device.
type Opts struct {
	// StartTemperature is the initial reading in °C.
	StartTemperature float64
	// StartHumidity is the initial reading in %RH.
	StartHumidity float64
	// MaxStep bounds the absolute change per reading, in °C and %RH.
	MaxStep float64
	// Seed for the random walk. 0 seeds from the current time.
	Seed int64
}

// DefaultOpts holds the default configuration options: a 50°C start with
// steps in [-1, +1], matching the vendor thermometer sample this simulator
// stands in for.
var DefaultOpts = Opts{
	StartTemperature: 50.0,
	StartHumidity:    60.0,
	MaxStep:          1.0,
}

const (
	minTemperature = -40.0
	maxTemperature = 125.0
	minHumidity    = 0.0
	maxHumidity    = 100.0
)

// Dev is a simulated temperature/humidity sensor.
type Dev struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	temperature float64
	humidity    float64
	step        float64
	shutdown    chan struct{}
}

// New returns a simulated sensor. The Opts can be nil, in which case
// DefaultOpts is used.
func New(opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	step := opts.MaxStep
	if step <= 0 {
		step = DefaultOpts.MaxStep
	}
	return &Dev{
		rnd:         rand.New(rand.NewSource(seed)),
		temperature: opts.StartTemperature,
		humidity:    opts.StartHumidity,
		step:        step,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sense advances the random walk and writes the new reading to the specified
// env variable. Implements physic.SenseEnv.
func (dev *Dev) Sense(e *physic.Env) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.temperature = clamp(dev.temperature+(dev.rnd.Float64()*2-1)*dev.step, minTemperature, maxTemperature)
	dev.humidity = clamp(dev.humidity+(dev.rnd.Float64()*2-1)*dev.step, minHumidity, maxHumidity)
	e.Temperature = physic.Temperature(dev.temperature*float64(physic.Kelvin)) + physic.ZeroCelsius
	e.Humidity = physic.RelativeHumidity(dev.humidity * float64(physic.PercentRH))
	e.Pressure = 0
	return nil
}

// SenseContinuous produces a reading on the returned channel at the given
// interval. Implements physic.SenseEnv. To terminate, call Halt().
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval <= 0 {
		return nil, errors.New("simtherm: interval must be positive")
	}
	dev.mu.Lock()
	if dev.shutdown != nil {
		dev.mu.Unlock()
		return nil, errors.New("simtherm: SenseContinuous already running")
	}
	dev.shutdown = make(chan struct{})
	shutdown := dev.shutdown
	dev.mu.Unlock()

	ch := make(chan physic.Env, 16)
	go func(ch chan<- physic.Env) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				env := physic.Env{}
				if err := dev.Sense(&env); err == nil {
					ch <- env
				}
			}
		}
	}(ch)
	return ch, nil
}

// Precision reports the granularity of the simulated readings. Implements
// physic.SenseEnv.
func (dev *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.MilliKelvin
	e.Humidity = physic.MilliRH
	e.Pressure = 0
}

// Halt terminates a SenseContinuous command if one is running. Implements
// conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		close(dev.shutdown)
		dev.shutdown = nil
	}
	return nil
}

// String returns a string representation of the device.
func (dev *Dev) String() string {
	return "simtherm"
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
