// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdlog

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Sensor-enable bits, one constant block per bitmask byte.
const (
	// sensors0
	maskAccelLN = 0x80
	maskGyro    = 0x40
	maskMag     = 0x20
	maskEXG124  = 0x10
	maskEXG224  = 0x08
	maskGSR     = 0x04
	maskExtA7   = 0x02
	maskExtA6   = 0x01

	// sensors1
	maskStrain  = 0x80
	maskVBatt   = 0x20
	maskAccelWR = 0x10
	maskExtA15  = 0x08
	maskIntA1   = 0x04
	maskIntA12  = 0x02
	maskIntA13  = 0x01

	// sensors2
	maskIntA14   = 0x80
	maskAccelMPU = 0x40
	maskMagMPU   = 0x20
	maskEXG116   = 0x10
	maskEXG216   = 0x08
	maskBMP      = 0x04
)

// Kind is the numeric interpretation of a channel value.
type Kind uint8

const (
	Uint8 Kind = iota
	Int16
	Uint16
	Int24
)

// Width returns the on-disk size of a value of kind k, in bytes.
func (k Kind) Width() int {
	switch k {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int24:
		return 3
	}
	panic(fmt.Sprintf("sdlog: invalid channel kind %d", k))
}

func (k Kind) String() string {
	switch k {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int24:
		return "int24"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ChanID identifies one physical data channel of the device.
type ChanID uint8

const (
	ChanAccelLNX ChanID = iota
	ChanAccelLNY
	ChanAccelLNZ
	ChanVSenseBatt
	ChanExtA7
	ChanExtA6
	ChanExtA15
	ChanIntA12
	ChanStrainHigh
	ChanStrainLow
	ChanIntA13
	ChanIntA14
	ChanGSR
	ChanIntA1
	ChanGyroX
	ChanGyroY
	ChanGyroZ
	ChanAccelWRX
	ChanAccelWRY
	ChanAccelWRZ
	ChanMagX
	ChanMagY
	ChanMagZ
	ChanAccelMPUX
	ChanAccelMPUY
	ChanAccelMPUZ
	ChanMagMPUX
	ChanMagMPUY
	ChanMagMPUZ
	ChanBMPTemp
	ChanBMPPress
	ChanEXG1Status
	ChanEXG1CH1
	ChanEXG1CH2
	ChanEXG2Status
	ChanEXG2CH1
	ChanEXG2CH2

	numChanIDs
)

var chanNames = [numChanIDs]string{
	ChanAccelLNX:   "Accel_LN_X",
	ChanAccelLNY:   "Accel_LN_Y",
	ChanAccelLNZ:   "Accel_LN_Z",
	ChanVSenseBatt: "VSenseBatt",
	ChanExtA7:      "EXT_A7",
	ChanExtA6:      "EXT_A6",
	ChanExtA15:     "EXT_A15",
	ChanIntA12:     "INT_A12",
	ChanStrainHigh: "Strain_High",
	ChanStrainLow:  "Strain_Low",
	ChanIntA13:     "INT_A13",
	ChanIntA14:     "INT_A14",
	ChanGSR:        "GSR_Raw",
	ChanIntA1:      "INT_A1",
	ChanGyroX:      "Gyro_X",
	ChanGyroY:      "Gyro_Y",
	ChanGyroZ:      "Gyro_Z",
	ChanAccelWRX:   "Accel_WR_X",
	ChanAccelWRY:   "Accel_WR_Y",
	ChanAccelWRZ:   "Accel_WR_Z",
	ChanMagX:       "Mag_X",
	ChanMagY:       "Mag_Y",
	ChanMagZ:       "Mag_Z",
	ChanAccelMPUX:  "Accel_MPU_X",
	ChanAccelMPUY:  "Accel_MPU_Y",
	ChanAccelMPUZ:  "Accel_MPU_Z",
	ChanMagMPUX:    "Mag_MPU_X",
	ChanMagMPUY:    "Mag_MPU_Y",
	ChanMagMPUZ:    "Mag_MPU_Z",
	ChanBMPTemp:    "BMP_Temperature",
	ChanBMPPress:   "BMP_Pressure",
	ChanEXG1Status: "EXG1_Status",
	ChanEXG1CH1:    "EXG1_CH1",
	ChanEXG1CH2:    "EXG1_CH2",
	ChanEXG2Status: "EXG2_Status",
	ChanEXG2CH1:    "EXG2_CH1",
	ChanEXG2CH2:    "EXG2_CH2",
}

// Name returns the canonical channel name, as written by the device
// firmware in its own log tooling.
func (id ChanID) Name() string {
	if int(id) < len(chanNames) {
		return chanNames[id]
	}
	return fmt.Sprintf("ChanID(%d)", uint8(id))
}

func (id ChanID) String() string { return id.Name() }

// Channel describes one channel slot of a data packet.
type Channel struct {
	ID        ChanID
	Kind      Kind
	BigEndian bool
}

// Width returns the on-disk size of the channel value, in bytes.
func (ch Channel) Width() int { return ch.Kind.Width() }

// Name returns the canonical channel name.
func (ch Channel) Name() string { return ch.ID.Name() }

// Schema is the ordered list of channels of one recording.
// Order is fixed for the life of a recording: it determines the byte
// offsets of every channel inside every packet.
type Schema []Channel

// Stride returns the fixed packet size, in bytes: the 3-byte tick
// counter plus the widths of all channels.
func (s Schema) Stride() int {
	n := TimestampBytes
	for _, ch := range s {
		n += ch.Width()
	}
	return n
}

// IndexOf returns the position of the channel with the given ID inside
// the schema, or -1 when the channel is not part of the recording.
func (s Schema) IndexOf(id ChanID) int {
	for i, ch := range s {
		if ch.ID == id {
			return i
		}
	}
	return -1
}

// BuildSchema derives the channel schema from the three sensor-enable
// bitmasks. The enable bit to channel mapping is an external contract
// with the device firmware: the test order below fixes the byte layout
// of every packet and must not be reordered.
//
// Two exclusivity rules apply: the strain-gauge bridge shares pins with
// the INT_A13/INT_A14 analog inputs and suppresses them, and the GSR
// front-end similarly suppresses INT_A1. The EXG channels exist in a
// 24-bit and a 16-bit variant selected by distinct bits; the 24-bit
// variant wins when both are set.
func BuildSchema(sensors [3]byte) (Schema, error) {
	var (
		s0 = sensors[0]
		s1 = sensors[1]
		s2 = sensors[2]

		strain = s1&maskStrain != 0
		gsr    = s0&maskGSR != 0
		exg124 = s0&maskEXG124 != 0
		exg224 = s0&maskEXG224 != 0

		sch Schema
	)

	le := func(id ChanID, kind Kind) {
		sch = append(sch, Channel{ID: id, Kind: kind})
	}
	be := func(id ChanID, kind Kind) {
		sch = append(sch, Channel{ID: id, Kind: kind, BigEndian: true})
	}

	if s0&maskAccelLN != 0 {
		le(ChanAccelLNX, Int16)
		le(ChanAccelLNY, Int16)
		le(ChanAccelLNZ, Int16)
	}
	if s1&maskVBatt != 0 {
		le(ChanVSenseBatt, Uint16)
	}
	if s0&maskExtA7 != 0 {
		le(ChanExtA7, Uint16)
	}
	if s0&maskExtA6 != 0 {
		le(ChanExtA6, Uint16)
	}
	if s1&maskExtA15 != 0 {
		le(ChanExtA15, Uint16)
	}
	if s1&maskIntA12 != 0 {
		le(ChanIntA12, Uint16)
	}
	if strain {
		le(ChanStrainHigh, Uint16)
		le(ChanStrainLow, Uint16)
	}
	if s1&maskIntA13 != 0 && !strain {
		le(ChanIntA13, Uint16)
	}
	if s2&maskIntA14 != 0 && !strain {
		le(ChanIntA14, Uint16)
	}
	if gsr {
		le(ChanGSR, Uint16)
	}
	if s1&maskIntA1 != 0 && !gsr {
		le(ChanIntA1, Uint16)
	}
	if s0&maskGyro != 0 {
		be(ChanGyroX, Int16)
		be(ChanGyroY, Int16)
		be(ChanGyroZ, Int16)
	}
	if s1&maskAccelWR != 0 {
		le(ChanAccelWRX, Int16)
		le(ChanAccelWRY, Int16)
		le(ChanAccelWRZ, Int16)
	}
	if s0&maskMag != 0 {
		// the magnetometer streams its axes in X,Z,Y order.
		be(ChanMagX, Int16)
		be(ChanMagZ, Int16)
		be(ChanMagY, Int16)
	}
	if s2&maskAccelMPU != 0 {
		be(ChanAccelMPUX, Int16)
		be(ChanAccelMPUY, Int16)
		be(ChanAccelMPUZ, Int16)
	}
	if s2&maskMagMPU != 0 {
		le(ChanMagMPUX, Int16)
		le(ChanMagMPUY, Int16)
		le(ChanMagMPUZ, Int16)
	}
	if s2&maskBMP != 0 {
		be(ChanBMPTemp, Int16)
		be(ChanBMPPress, Int24)
	}
	if exg124 {
		le(ChanEXG1Status, Uint8)
		be(ChanEXG1CH1, Int24)
		be(ChanEXG1CH2, Int24)
	}
	if exg224 {
		le(ChanEXG2Status, Uint8)
		be(ChanEXG2CH1, Int24)
		be(ChanEXG2CH2, Int24)
	}
	if s2&maskEXG116 != 0 && !exg124 {
		le(ChanEXG1Status, Uint8)
		be(ChanEXG1CH1, Int16)
		be(ChanEXG1CH2, Int16)
	}
	if s2&maskEXG216 != 0 && !exg224 {
		le(ChanEXG2Status, Uint8)
		be(ChanEXG2CH1, Int16)
		be(ChanEXG2CH2, Int16)
	}

	if len(sch) == 0 {
		return nil, xerrors.Errorf("sdlog: masks=[0x%02x 0x%02x 0x%02x]: %w",
			s0, s1, s2, ErrNoChannels)
	}

	return sch, nil
}
