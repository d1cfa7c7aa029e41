// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sdlog describes and handles data in the on-device SD-log format.
//
// An SD-log file starts with a fixed 256-byte header describing the device
// configuration, followed by a stream of fixed-stride packets. Each packet
// carries a 3-byte tick counter and one value per enabled channel.
package sdlog // import "github.com/wearlog/shim/sdlog"

import (
	"golang.org/x/xerrors"
)

const (
	// HeaderLength is the size of the SD-log file header, in bytes.
	HeaderLength = 256

	// TimestampBytes is the size of the per-packet tick counter, in bytes.
	TimestampBytes = 3

	// ClockRate is the frequency of the on-device sampling clock, in Hz.
	ClockRate = 32768
)

var (
	// ErrMalformedHeader is returned when fewer than HeaderLength bytes
	// are available to decode a file header.
	ErrMalformedHeader = xerrors.New("sdlog: malformed header")

	// ErrNoChannels is returned when the sensor-enable bitmasks select
	// no channel at all and the packet stride reduces to the bare
	// tick counter.
	ErrNoChannels = xerrors.New("sdlog: no channels enabled")

	// ErrEmptyRecording is returned when a file holds a header but not
	// a single full data packet.
	ErrEmptyRecording = xerrors.New("sdlog: empty recording")

	// ErrShortPacket is returned when a trailing read yields fewer bytes
	// than one full packet. Decoding up to that point is still valid.
	ErrShortPacket = xerrors.New("sdlog: short trailing packet")
)

// Sample is one decoded data packet: the raw 24-bit tick counter and one
// value per channel, in schema order. Channel values are widened to int32
// so that 24-bit channels keep their sign without a dedicated storage type.
type Sample struct {
	Tick   uint32
	Values []int32
}
