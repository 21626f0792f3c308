// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sht3x provides a driver for the Sensirion SHT30/SHT31/SHT35 I2C
// temperature/humidity sensors, including the Grove SHT31 breakout.
//
// The device frames every value it returns as a 16-bit big-endian word
// followed by an 8-bit CRC (polynomial 0x31). Readings that fail the CRC
// check are rejected.
//
// # Datasheet
//
// https://sensirion.com/media/documents/213E6A3B/63A5A569/Datasheet_SHT3x_DIS.pdf
package sht3x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/mtnrbq/tempmon/common"
)

// Repeatability selects the measurement repeatability level. Higher
// repeatability means lower noise, longer measurement duration and higher
// power draw.
type Repeatability int

const (
	RepeatabilityLow Repeatability = iota
	RepeatabilityMedium
	RepeatabilityHigh
)

const (
	// DefaultAddress is the I2C address with the ADDR pin tied to ground.
	DefaultAddress i2c.Addr = 0x44
	// AltAddress is the I2C address with the ADDR pin tied to VDD.
	AltAddress i2c.Addr = 0x45
)

type devCommand []byte

// Single-shot measurement commands with clock stretching disabled.
var measureHigh = devCommand{0x24, 0x00}
var measureMedium = devCommand{0x24, 0x0b}
var measureLow = devCommand{0x24, 0x16}

var measureCommands = []devCommand{measureLow, measureMedium, measureHigh}

// Worst-case measurement durations per the datasheet, indexed by
// Repeatability.
var measureDurations = []time.Duration{4 * time.Millisecond, 6 * time.Millisecond, 15 * time.Millisecond}

// Other device commands.
var softReset = devCommand{0x30, 0xa2}
var heaterEnable = devCommand{0x30, 0x6d}
var heaterDisable = devCommand{0x30, 0x66}
var readStatus = devCommand{0xf3, 0x2d}
var clearStatus = devCommand{0x30, 0x41}
var readSerial = devCommand{0x37, 0x80}

// StatusWord is the device's 16-bit status register.
type StatusWord uint16

const (
	// At least one pending alert.
	StatusPendingAlerts StatusWord = 1 << 15
	// Heater element is on.
	StatusHeaterEnabled StatusWord = 1 << 13
	StatusRHAlert       StatusWord = 1 << 11
	StatusTempAlert     StatusWord = 1 << 10
	// Set after power-up or soft reset until the status is cleared.
	StatusResetDetected StatusWord = 1 << 4
	// Last command was not processed.
	StatusCommandFailed StatusWord = 1 << 1
	// Checksum of the last write transfer was invalid.
	StatusWriteCRCFailed StatusWord = 1 << 0
)

var errInvalidCRC = errors.New("sht3x: invalid crc")

const (
	countDivisor = float64(65535)

	minTemperature = -40*physic.Kelvin + physic.ZeroCelsius
	maxTemperature = 125*physic.Kelvin + physic.ZeroCelsius

	minRH = 0 * physic.PercentRH
	maxRH = 100 * physic.PercentRH

	minSampleDuration = 15 * time.Millisecond
)

// Opts holds the configuration options for the device.
type Opts struct {
	// Repeatability selects the single-shot measurement repeatability.
	// Default is RepeatabilityHigh, matching the Grove SHT31 sample code.
	Repeatability Repeatability
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{Repeatability: RepeatabilityHigh}

// Dev represents a SHT3x series temperature/humidity sensor.
type Dev struct {
	d        *i2c.Dev
	opts     Opts
	shutdown chan struct{}
	mu       sync.Mutex
}

// New returns a Dev for an SHT3x on the specified bus and address. The Opts
// can be nil, in which case DefaultOpts is used.
func New(b i2c.Bus, addr i2c.Addr, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Repeatability < RepeatabilityLow || opts.Repeatability > RepeatabilityHigh {
		return nil, fmt.Errorf("sht3x: invalid repeatability %d", opts.Repeatability)
	}
	return &Dev{d: &i2c.Dev{Bus: b, Addr: uint16(addr)}, opts: *opts}, nil
}

// The device NAKs reads issued while a measurement is in flight, so a write
// is always followed by a delay before the read leg.
func (dev *Dev) txWithDelay(w devCommand, r []byte, delay time.Duration) error {
	if err := dev.d.Tx(w, nil); err != nil {
		return fmt.Errorf("sht3x: error transmitting %w", err)
	}
	time.Sleep(delay)
	if r != nil {
		if err := dev.d.Tx(nil, r); err != nil {
			return fmt.Errorf("sht3x: error reading %w", err)
		}
	}
	return nil
}

// Convert the raw count to a temperature. T = -45 + 175*(count/65535),
// clamped to the device's measurement range.
func countToTemp(count uint16) physic.Temperature {
	val := physic.Temperature(float64(physic.Kelvin)*(-45.0+175.0*(float64(count)/countDivisor))) + physic.ZeroCelsius
	if val < minTemperature {
		val = minTemperature
	} else if val > maxTemperature {
		val = maxTemperature
	}
	return val
}

// Convert the raw count to a humidity value. RH = 100*(count/65535).
func countToHumidity(count uint16) physic.RelativeHumidity {
	val := physic.RelativeHumidity((100.0 * (float64(count) / countDivisor)) * float64(physic.PercentRH))
	if val < minRH {
		val = minRH
	} else if val > maxRH {
		val = maxRH
	}
	return val
}

// Sense reads temperature and humidity from the device and writes the values
// to the specified env variable. The pressure is always 0 since the SHT3x
// does not measure pressure. Implements physic.SenseEnv.
func (dev *Dev) Sense(e *physic.Env) error {
	e.Pressure = 0
	dev.mu.Lock()
	defer dev.mu.Unlock()
	r := make([]byte, 6)
	err := dev.txWithDelay(measureCommands[dev.opts.Repeatability], r, measureDurations[dev.opts.Repeatability])
	if err != nil {
		e.Temperature = minTemperature
		e.Humidity = minRH
		return err
	}
	tRaw, err := common.Word(r[:3])
	if err != nil {
		return errInvalidCRC
	}
	hRaw, err := common.Word(r[3:])
	if err != nil {
		return errInvalidCRC
	}
	e.Temperature = countToTemp(tRaw)
	e.Humidity = countToHumidity(hRaw)
	return nil
}

// SenseContinuous continuously reads from the device and writes the values to
// the returned channel. Implements physic.SenseEnv. To terminate the
// continuous read, call Halt().
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < minSampleDuration {
		return nil, errors.New("sht3x: sample interval is < device sample rate")
	}
	dev.mu.Lock()
	if dev.shutdown != nil {
		dev.mu.Unlock()
		return nil, errors.New("sht3x: SenseContinuous already running")
	}
	shutdown := make(chan struct{})
	dev.shutdown = shutdown
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

// Precision returns the sensor's precision, or the smallest change in
// readings the device can produce. Implements physic.SenseEnv.
func (dev *Dev) Precision(e *physic.Env) {
	div := countDivisor
	e.Temperature = physic.Temperature(175.0 / div * float64(physic.Kelvin))
	e.Humidity = physic.RelativeHumidity(100.0 / div * float64(physic.PercentRH))
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

// Reset performs a soft-reset of the device.
func (dev *Dev) Reset() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.d.Tx(softReset, nil); err != nil {
		return fmt.Errorf("sht3x: error resetting %w", err)
	}
	// The datasheet allows up to 1.5ms for the soft reset to complete.
	time.Sleep(2 * time.Millisecond)
	return nil
}

// SetHeater turns the built-in heater element on or off. The heater can be
// used to check the sensor's plausibility and for operation in condensing
// environments.
func (dev *Dev) SetHeater(on bool) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	cmd := heaterDisable
	if on {
		cmd = heaterEnable
	}
	if err := dev.d.Tx(cmd, nil); err != nil {
		return fmt.Errorf("sht3x: error setting heater %w", err)
	}
	return nil
}

// ReadStatus returns the device's status register. Refer to the Status*
// constants and the datasheet for interpretation.
func (dev *Dev) ReadStatus() (StatusWord, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	r := make([]byte, 3)
	if err := dev.txWithDelay(readStatus, r, time.Millisecond); err != nil {
		return 0, err
	}
	w, err := common.Word(r)
	if err != nil {
		return 0, errInvalidCRC
	}
	return StatusWord(w), nil
}

// ClearStatus clears the alert, heater and reset flags in the status
// register.
func (dev *Dev) ClearStatus() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.d.Tx(clearStatus, nil); err != nil {
		return fmt.Errorf("sht3x: error clearing status %w", err)
	}
	return nil
}

// SerialNumber returns the device serial number set at the factory.
func (dev *Dev) SerialNumber() (uint32, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	r := make([]byte, 6)
	if err := dev.txWithDelay(readSerial, r, time.Millisecond); err != nil {
		return 0, err
	}
	hi, err := common.Word(r[:3])
	if err != nil {
		return 0, errInvalidCRC
	}
	lo, err := common.Word(r[3:])
	if err != nil {
		return 0, errInvalidCRC
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

// String returns a string representation of the device.
func (dev *Dev) String() string {
	return fmt.Sprintf("sht3x: %s", dev.d.String())
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
