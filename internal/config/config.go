// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the agent configuration from the environment.
//
// All variables are prefixed with TEMPMON_. A .env file in the working
// directory is honored when the caller imports godotenv/autoload.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the full agent configuration.
type Config struct {
	// DeviceID is the device identity at the hub.
	DeviceID string
	// SerialNumber is reported to the cloud as a read-only device detail.
	SerialNumber string

	// HubHost is the IoT hub hostname. When set, the agent connects with
	// TLS on port 8883 using the device certificate.
	HubHost string
	// BrokerURL overrides the hub connection with a plain MQTT broker,
	// e.g. tcp://localhost:1883 for local testing.
	BrokerURL string

	// X.509 device certificate, key, and the CA bundle used to verify the
	// hub. Required when HubHost is set.
	CertFile string
	KeyFile  string
	CAFile   string

	// TelemetryInterval is the time between telemetry samples.
	TelemetryInterval time.Duration

	// I2CBus names the bus for the sensor; empty selects the first
	// available. I2CAddr is the sensor address, 0x44 or 0x45.
	I2CBus  string
	I2CAddr uint16

	// GPIO pin names for the user interface. Empty disables the pin.
	ButtonAPin string
	ButtonBPin string
	LEDPin     string

	// Simulate replaces the I2C sensor with a simulated thermometer and
	// the LED with a terminal lamp.
	Simulate bool

	// StatusAddr is the local status API listen address. Empty disables
	// the server.
	StatusAddr string

	// LogPath appends logs to a file in addition to stdout when set.
	LogPath string
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		DeviceID:     envOr("TEMPMON_DEVICE_ID", "tempmon-01"),
		SerialNumber: envOr("TEMPMON_SERIAL_NUMBER", "TEMPMON-01234"),
		HubHost:      os.Getenv("TEMPMON_HUB_HOST"),
		BrokerURL:    os.Getenv("TEMPMON_BROKER_URL"),
		CertFile:     os.Getenv("TEMPMON_CERT_FILE"),
		KeyFile:      os.Getenv("TEMPMON_KEY_FILE"),
		CAFile:       os.Getenv("TEMPMON_CA_FILE"),
		I2CBus:       os.Getenv("TEMPMON_I2C_BUS"),
		ButtonAPin:   os.Getenv("TEMPMON_BUTTON_A"),
		ButtonBPin:   os.Getenv("TEMPMON_BUTTON_B"),
		LEDPin:       os.Getenv("TEMPMON_LED"),
		StatusAddr:   envOr("TEMPMON_STATUS_ADDR", ":8880"),
		LogPath:      os.Getenv("TEMPMON_LOG_PATH"),
	}

	interval := envOr("TEMPMON_TELEMETRY_INTERVAL", "5s")
	d, err := time.ParseDuration(interval)
	if err != nil {
		return cfg, fmt.Errorf("config: invalid TEMPMON_TELEMETRY_INTERVAL %q: %w", interval, err)
	}
	if d <= 0 {
		return cfg, fmt.Errorf("config: TEMPMON_TELEMETRY_INTERVAL %q must be positive", interval)
	}
	cfg.TelemetryInterval = d

	addr := envOr("TEMPMON_I2C_ADDR", "0x44")
	a, err := strconv.ParseUint(addr, 0, 16)
	if err != nil {
		return cfg, fmt.Errorf("config: invalid TEMPMON_I2C_ADDR %q: %w", addr, err)
	}
	cfg.I2CAddr = uint16(a)

	if v := os.Getenv("TEMPMON_SIMULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid TEMPMON_SIMULATE %q: %w", v, err)
		}
		cfg.Simulate = b
	}

	if cfg.HubHost == "" && cfg.BrokerURL == "" {
		return cfg, errors.New("config: one of TEMPMON_HUB_HOST or TEMPMON_BROKER_URL is required")
	}
	if cfg.HubHost != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return cfg, errors.New("config: TEMPMON_CERT_FILE and TEMPMON_KEY_FILE are required with TEMPMON_HUB_HOST")
		}
	}
	return cfg, nil
}
