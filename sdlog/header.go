// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdlog

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/xerrors"
)

// SD-log header byte offsets.
const (
	hdrSampleRate0  = 0   // u16le, ticks of the 32768 Hz clock per sample
	hdrSensors0     = 3   // sensor-enable bitmask 0
	hdrSensors1     = 4   // sensor-enable bitmask 1
	hdrSensors2     = 5   // sensor-enable bitmask 2
	hdrConfigByte3  = 11  // config setup byte 3
	hdrMACAddr      = 24  // 6 bytes
	hdrRTCDiff      = 44  // u64le, low 40 bits meaningful
	hdrConfigTime   = 52  // u32le, phone wall-clock at config time
	hdrCalAccelWR   = 76  // 21-byte calibration block
	hdrCalGyro      = 97  // 21-byte calibration block
	hdrCalMag       = 118 // 21-byte calibration block
	hdrCalAccelLN   = 139 // 21-byte calibration block
	hdrLocalTimeMSB = 251 // 5th (high) byte of the initial local-time ticks
	hdrLocalTime0   = 252 // u32le, low 4 bytes of the initial local-time ticks
)

// CalBlockLength is the size of one per-sensor calibration sub-block.
const CalBlockLength = 21

// CalSensor names one of the four inertial sensor families carrying a
// calibration sub-block in the file header.
type CalSensor int

const (
	CalAccelWR CalSensor = iota // wide-range accelerometer
	CalGyro                     // gyroscope
	CalMag                      // magnetometer
	CalAccelLN                  // low-noise accelerometer

	NumCalSensors
)

func (s CalSensor) String() string {
	switch s {
	case CalAccelWR:
		return "Accel_WR"
	case CalGyro:
		return "Gyro"
	case CalMag:
		return "Mag"
	case CalAccelLN:
		return "Accel_LN"
	}
	return fmt.Sprintf("CalSensor(%d)", int(s))
}

// Header is the typed view over the 256-byte SD-log file header.
// It is decoded once per file and read-only afterwards.
type Header struct {
	SampleRateTicks uint16  // ticks of the 32768 Hz clock per sample
	Sensors         [3]byte // sensor-enable bitmasks
	ConfigByte3     byte
	MAC             [6]byte

	RTCRef       uint64 // RTC reference, low 40 bits meaningful
	PhoneTime    uint32 // phone wall-clock captured at config time
	InitialTicks uint64 // 40-bit local-time tick count at first sample

	Cal [NumCalSensors][CalBlockLength]byte // raw calibration sub-blocks
}

// DecodeHeader decodes the typed header fields from the first
// HeaderLength bytes of p. Bitmask values are taken as-is: they are
// validated only by their effect on schema construction.
func DecodeHeader(p []byte) (Header, error) {
	var h Header
	if len(p) < HeaderLength {
		return h, xerrors.Errorf("sdlog: could not read %d header bytes (got=%d): %w",
			HeaderLength, len(p), ErrMalformedHeader)
	}

	h.SampleRateTicks = binary.LittleEndian.Uint16(p[hdrSampleRate0 : hdrSampleRate0+2])
	h.Sensors[0] = p[hdrSensors0]
	h.Sensors[1] = p[hdrSensors1]
	h.Sensors[2] = p[hdrSensors2]
	h.ConfigByte3 = p[hdrConfigByte3]
	copy(h.MAC[:], p[hdrMACAddr:hdrMACAddr+6])

	h.RTCRef = binary.LittleEndian.Uint64(p[hdrRTCDiff : hdrRTCDiff+8])
	h.PhoneTime = binary.LittleEndian.Uint32(p[hdrConfigTime : hdrConfigTime+4])
	h.InitialTicks = uint64(p[hdrLocalTimeMSB])<<32 |
		uint64(binary.LittleEndian.Uint32(p[hdrLocalTime0:hdrLocalTime0+4]))

	for s, off := range calOffsets {
		copy(h.Cal[s][:], p[off:off+CalBlockLength])
	}

	return h, nil
}

var calOffsets = [NumCalSensors]int{
	CalAccelWR: hdrCalAccelWR,
	CalGyro:    hdrCalGyro,
	CalMag:     hdrCalMag,
	CalAccelLN: hdrCalAccelLN,
}

// SampleRate returns the sampling frequency in Hz, or NaN when the
// header carries a zero tick divider (rate undefined, not an error).
func (h *Header) SampleRate() float64 {
	if h.SampleRateTicks == 0 {
		return math.NaN()
	}
	return ClockRate / float64(h.SampleRateTicks)
}

// MACString returns the device MAC address in AA:BB:CC:DD:EE:FF form.
func (h *Header) MACString() string {
	m := h.MAC
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		m[0], m[1], m[2], m[3], m[4], m[5],
	)
}
