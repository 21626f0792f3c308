// Copyright 2025 The Periph Authors. All rights reserved.
// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, a CRC8 calculation
package common

import "fmt"

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value. CRC bytes are used in sensors from TI and Sensirion.
func CRC8(bytes []byte) byte {
	var crc byte = 0xff
	for _, val := range bytes {
		crc ^= val
		for i := 0; i < 8; i++ {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (byte)((crc << 1) ^ 0x31)
			}
		}
	}
	return crc
}

// Word extracts a 16-bit big-endian value from a 3-byte group of 2 data
// bytes followed by a CRC byte, verifying the CRC. Sensirion devices frame
// all returned data this way.
func Word(group []byte) (uint16, error) {
	if len(group) != 3 {
		return 0, fmt.Errorf("common: word group must be 3 bytes, got %d", len(group))
	}
	if CRC8(group[:2]) != group[2] {
		return 0, fmt.Errorf("common: crc mismatch: computed 0x%02x, read 0x%02x", CRC8(group[:2]), group[2])
	}
	return uint16(group[0])<<8 | uint16(group[1]), nil
}

// AppendWord appends a 16-bit big-endian value followed by its CRC byte to
// dst and returns the extended slice. Used when writing CRC-protected
// arguments to a device.
func AppendWord(dst []byte, word uint16) []byte {
	dst = append(dst, byte(word>>8), byte(word))
	return append(dst, CRC8(dst[len(dst)-2:]))
}
