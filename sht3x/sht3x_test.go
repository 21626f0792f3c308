// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sht3x

import (
	"errors"
	"math"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestNew(t *testing.T) {
	bus := i2ctest.Playback{DontPanic: true}
	if _, err := New(&bus, DefaultAddress, &Opts{Repeatability: Repeatability(42)}); err == nil {
		t.Error("New() accepted an invalid repeatability")
	}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dev.opts.Repeatability != RepeatabilityHigh {
		t.Errorf("default repeatability %d, expected high", dev.opts.Repeatability)
	}
	if len(dev.String()) == 0 {
		t.Error("String() returned empty")
	}
}

func TestSense(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			// Single-shot high repeatability measurement.
			{Addr: uint16(DefaultAddress), W: measureHigh},
			// Temperature word 0x6588 and humidity word 0x9f12, each
			// followed by its CRC.
			{Addr: uint16(DefaultAddress), R: []byte{0x65, 0x88, 0x60, 0x9f, 0x12, 0x74}},
		},
	}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	e := physic.Env{}
	if err := dev.Sense(&e); err != nil {
		t.Fatal(err)
	}
	// T = -45 + 175*0x6588/65535 = 24.4072°C
	if diff := math.Abs(e.Temperature.Celsius() - 24.4072); diff > 0.001 {
		t.Errorf("temperature %s, expected 24.4072°C (diff %f)", e.Temperature, diff)
	}
	// RH = 100*0x9f12/65535 = 62.1378%
	expectedRH := physic.RelativeHumidity(62.1378 * float64(physic.PercentRH))
	if diff := e.Humidity - expectedRH; diff > 2*physic.MilliRH || diff < -2*physic.MilliRH {
		t.Errorf("humidity %s, expected %s", e.Humidity, expectedRH)
	}
	if e.Pressure != 0 {
		t.Errorf("pressure %s, expected 0", e.Pressure)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSenseCorruptData(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: uint16(DefaultAddress), W: measureHigh},
			// Temperature CRC is off by one.
			{Addr: uint16(DefaultAddress), R: []byte{0x65, 0x88, 0x61, 0x9f, 0x12, 0x74}},
		},
		DontPanic: true,
	}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	e := physic.Env{}
	if err := dev.Sense(&e); !errors.Is(err, errInvalidCRC) {
		t.Errorf("Sense() on corrupt data returned %v, expected crc error", err)
	}
}

func TestCountToTemp(t *testing.T) {
	if temp := countToTemp(0); temp != minTemperature {
		t.Errorf("countToTemp(0)=%s, expected clamp to -40°C", temp)
	}
	if temp := countToTemp(0xffff); temp != maxTemperature {
		t.Errorf("countToTemp(0xffff)=%s, expected clamp to 125°C", temp)
	}
	temp := countToTemp(0x8000)
	if diff := math.Abs(temp.Celsius() - 42.5013); diff > 0.001 {
		t.Errorf("countToTemp(0x8000)=%s, expected 42.5013°C", temp)
	}
}

func TestCountToHumidity(t *testing.T) {
	if rh := countToHumidity(0); rh != minRH {
		t.Errorf("countToHumidity(0)=%s, expected 0%%", rh)
	}
	if rh := countToHumidity(0xffff); rh != maxRH {
		t.Errorf("countToHumidity(0xffff)=%s, expected 100%%", rh)
	}
	rh := countToHumidity(0x8000)
	expected := physic.RelativeHumidity(50.0008 * float64(physic.PercentRH))
	if diff := rh - expected; diff > 2*physic.MilliRH || diff < -2*physic.MilliRH {
		t.Errorf("countToHumidity(0x8000)=%s, expected %s", rh, expected)
	}
}

func TestSerialNumber(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: uint16(DefaultAddress), W: readSerial},
			{Addr: uint16(DefaultAddress), R: []byte{0xbe, 0xef, 0x92, 0x12, 0x34, 0x37}},
		},
	}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	sn, err := dev.SerialNumber()
	if err != nil {
		t.Fatal(err)
	}
	if sn != 0xbeef1234 {
		t.Errorf("SerialNumber()=0x%08x, expected 0xbeef1234", sn)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadStatus(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: uint16(DefaultAddress), W: readStatus},
			{Addr: uint16(DefaultAddress), R: []byte{0x80, 0x10, 0xe1}},
		},
	}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	status, err := dev.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status&StatusPendingAlerts == 0 {
		t.Error("expected pending alerts bit set")
	}
	if status&StatusResetDetected == 0 {
		t.Error("expected reset detected bit set")
	}
	if status&StatusHeaterEnabled != 0 {
		t.Error("heater bit set unexpectedly")
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestHeaterAndReset(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: uint16(DefaultAddress), W: heaterEnable},
			{Addr: uint16(DefaultAddress), W: heaterDisable},
			{Addr: uint16(DefaultAddress), W: softReset},
			{Addr: uint16(DefaultAddress), W: clearStatus},
		},
	}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetHeater(true); err != nil {
		t.Error(err)
	}
	if err := dev.SetHeater(false); err != nil {
		t.Error(err)
	}
	if err := dev.Reset(); err != nil {
		t.Error(err)
	}
	if err := dev.ClearStatus(); err != nil {
		t.Error(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSenseContinuous(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: uint16(DefaultAddress), W: measureHigh},
			{Addr: uint16(DefaultAddress), R: []byte{0x65, 0x88, 0x60, 0x9f, 0x12, 0x74}},
			{Addr: uint16(DefaultAddress), W: measureHigh},
			{Addr: uint16(DefaultAddress), R: []byte{0xbe, 0xef, 0x92, 0xbe, 0xef, 0x92}},
		},
		DontPanic: true,
	}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(time.Millisecond); err == nil {
		t.Error("SenseContinuous() accepted too short an interval")
	}
	ch, err := dev.SenseContinuous(20 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(time.Second); err == nil {
		t.Error("expected an error for concurrent SenseContinuous")
	}
	count := 0
	for e := range ch {
		count++
		t.Logf("env=%s %s", e.Temperature, e.Humidity)
		if count == 2 {
			if err := dev.Halt(); err != nil {
				t.Error(err)
			}
		}
	}
	if count != 2 {
		t.Errorf("expected 2 readings, received %d", count)
	}
}

func TestHaltIdempotent(t *testing.T) {
	bus := i2ctest.Playback{DontPanic: true}
	dev, err := New(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	ch, err := dev.SenseContinuous(20 * time.Millisecond)
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
