// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tempmon is the root of a cloud-connected thermometer device agent.
//
// The agent reads a Sensirion SHT31 temperature/humidity sensor over I2C (or
// a simulated thermometer when no hardware is present), uploads telemetry to
// an IoT hub over MQTT, and mirrors a "telemetry upload enabled" flag between
// local state, a button/LED user interface, and a cloud-side device twin
// property.
package tempmon
