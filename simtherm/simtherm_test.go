// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package simtherm

import (
	"math"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestSenseWalkBounds(t *testing.T) {
	dev := New(&Opts{StartTemperature: 21.5, StartHumidity: 40, MaxStep: 1, Seed: 1})
	last := 21.5
	e := physic.Env{}
	for i := 0; i < 100; i++ {
		if err := dev.Sense(&e); err != nil {
			t.Fatal(err)
		}
		c := e.Temperature.Celsius()
		if step := math.Abs(c - last); step > 1.000001 {
			t.Fatalf("step %f exceeds the configured bound", step)
		}
		last = c
		rh := float64(e.Humidity) / float64(physic.PercentRH)
		if rh < 0 || rh > 100 {
			t.Fatalf("humidity %f out of range", rh)
		}
		if e.Pressure != 0 {
			t.Fatalf("pressure %s, expected 0", e.Pressure)
		}
	}
}

func TestSenseClamp(t *testing.T) {
	dev := New(&Opts{StartTemperature: 125, StartHumidity: 100, MaxStep: 1, Seed: 7})
	e := physic.Env{}
	for i := 0; i < 50; i++ {
		if err := dev.Sense(&e); err != nil {
			t.Fatal(err)
		}
		if c := e.Temperature.Celsius(); c > 125.000001 {
			t.Fatalf("temperature %f above the device range", c)
		}
		if rh := float64(e.Humidity) / float64(physic.PercentRH); rh > 100.000001 {
			t.Fatalf("humidity %f above 100%%", rh)
		}
	}
}

func TestDeterministicSeed(t *testing.T) {
	a := New(&Opts{StartTemperature: 50, StartHumidity: 60, MaxStep: 1, Seed: 42})
	b := New(&Opts{StartTemperature: 50, StartHumidity: 60, MaxStep: 1, Seed: 42})
	ea, eb := physic.Env{}, physic.Env{}
	for i := 0; i < 10; i++ {
		if err := a.Sense(&ea); err != nil {
			t.Fatal(err)
		}
		if err := b.Sense(&eb); err != nil {
			t.Fatal(err)
		}
		if ea != eb {
			t.Fatalf("same seed diverged at step %d: %v != %v", i, ea, eb)
		}
	}
}

func TestSenseContinuous(t *testing.T) {
	dev := New(&Opts{StartTemperature: 50, StartHumidity: 60, MaxStep: 1, Seed: 3})
	if _, err := dev.SenseContinuous(0); err == nil {
		t.Error("SenseContinuous() accepted a non-positive interval")
	}
	ch, err := dev.SenseContinuous(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(time.Second); err == nil {
		t.Error("expected an error for concurrent SenseContinuous")
	}
	count := 0
	for range ch {
		count++
		if count == 3 {
			if err := dev.Halt(); err != nil {
				t.Error(err)
			}
		}
	}
	if count < 3 {
		t.Errorf("expected at least 3 readings, received %d", count)
	}
}

func TestHaltIdempotent(t *testing.T) {
	dev := New(&DefaultOpts)
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	ch, err := dev.SenseContinuous(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	for range ch {
	}
}
