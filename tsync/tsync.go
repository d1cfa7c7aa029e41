// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tsync reconstructs absolute timestamps from the wrapping
// 24-bit on-device tick counter.
//
// The device counter increments once per sample at 32768 Hz and wraps at
// 2^24 ticks. Two clock references recorded during the phone-device
// handshake anchor the unwrapped tick sequence to wall-clock time: the
// device RTC value (40 bits meaningful) and the phone wall-clock.
package tsync // import "github.com/wearlog/shim/tsync"

import (
	"math"
)

const (
	// ClockRate is the tick frequency of the on-device counter, in Hz.
	ClockRate = 32768

	wrapPeriod = 1 << 24 // tick counter range
	rtcMask    = 1<<40 - 1
)

// Clock holds the header clock references of one recording.
type Clock struct {
	InitialTicks uint64 // 40-bit local-time tick count at first sample
	RTCRef       uint64 // RTC reference; only the low 40 bits are used
	PhoneTime    uint32 // phone wall-clock captured at the handshake
}

// Unwrap folds the raw tick sequence into a monotonic one. Whenever a
// successive difference drops below -2^23 the counter is assumed to have
// wrapped and a cumulative +2^24 correction is applied to every later
// sample. The returned ticks are offset by initial, the local-time tick
// count of the first sample.
//
// The correction at index i depends on all wraps at indices < i, so this
// is an explicit sequential fold, not a whole-array transform.
func Unwrap(raw []uint32, initial uint64) []int64 {
	if len(raw) == 0 {
		return nil
	}
	var (
		out  = make([]int64, len(raw))
		corr = int64(0)
	)
	out[0] = int64(initial)
	for i := 1; i < len(raw); i++ {
		if int64(raw[i])-int64(raw[i-1]) < -wrapPeriod/2 {
			corr += wrapPeriod
		}
		out[i] = int64(initial) + int64(raw[i]) - int64(raw[0]) + corr
	}
	return out
}

// Align maps unwrapped ticks to absolute time in the units of the phone
// reference wall-clock (seconds).
func Align(ticks []int64, clk Clock) []float64 {
	if len(ticks) == 0 {
		return nil
	}
	var (
		out = make([]float64, len(ticks))
		rtc = float64(clk.RTCRef & rtcMask)
	)
	for i, t := range ticks {
		out[i] = float64(clk.PhoneTime) + (float64(t)-rtc)/ClockRate
	}
	return out
}

// Smooth suppresses isolated clock-jump artifacts. Successive
// differences whose magnitude exceeds ten times the mean difference are
// clamped to the mean -- once, against the original mean, not
// iteratively -- and the sequence is rebuilt by cumulative summation
// from the first value. The overall duration is preserved except for
// the clamped jumps.
//
// With fewer than two samples there is nothing to smooth.
func Smooth(ts []float64) []float64 {
	if len(ts) < 2 {
		return ts
	}

	var (
		diffs = make([]float64, len(ts)-1)
		mean  = 0.0
	)
	for i := range diffs {
		diffs[i] = ts[i+1] - ts[i]
		mean += diffs[i]
	}
	mean /= float64(len(diffs))

	threshold := 10 * math.Abs(mean)
	if mean == 0 {
		threshold = 10
	}

	out := make([]float64, len(ts))
	out[0] = ts[0]
	for i, d := range diffs {
		if math.Abs(d) > threshold {
			d = mean
		}
		out[i+1] = out[i] + d
	}
	return out
}

// Timestamps runs the full reconstruction: unwrap, anchor, smooth.
func Timestamps(raw []uint32, clk Clock) []float64 {
	return Smooth(Align(Unwrap(raw, clk.InitialTicks), clk))
}
