// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package calib applies offset/gain/alignment calibration to the raw
// triaxial output of the inertial sensors.
package calib // import "github.com/wearlog/shim/calib"

import (
	"gonum.org/v1/gonum/mat"

	"github.com/wearlog/shim/sdlog"
)

// GyroScale converts calibrated gyroscope output from the device's
// native angular-rate units to degrees/second. It is a firmware unit
// constant, applied after the general calibration formula, and must not
// be generalized to the other sensors.
const GyroScale = 100.0

// Params holds the calibration parameters of one inertial sensor,
// decoded once per recording from its 21-byte header sub-block and
// read-only afterwards.
type Params struct {
	Offset    [3]float64
	Gain      [3]float64 // zero gains are clamped to 1
	Alignment *mat.Dense // 3x3 alignment matrix, raw coefficients / 100
}

// DecodeParams decodes one 21-byte calibration sub-block: three int16
// big-endian offsets, three uint16 big-endian gains and a 3x3 row-major
// int8 alignment matrix scaled by 100. A gain of exactly zero is
// replaced by 1 so the calibration divide stays defined.
func DecodeParams(blk [sdlog.CalBlockLength]byte) Params {
	var p Params
	for i := 0; i < 3; i++ {
		p.Offset[i] = float64(int16(uint16(blk[2*i])<<8 | uint16(blk[2*i+1])))
		gain := float64(uint16(blk[6+2*i])<<8 | uint16(blk[6+2*i+1]))
		if gain == 0 {
			gain = 1
		}
		p.Gain[i] = gain
	}

	align := make([]float64, 9)
	for i := range align {
		align[i] = float64(int8(blk[12+i])) / 100
	}
	p.Alignment = mat.NewDense(3, 3, align)

	return p
}

// Axes returns the three channel IDs carrying the X, Y and Z axes of
// the given sensor family. Calibration of a sensor applies only when
// all three are present in the decoded output.
func Axes(s sdlog.CalSensor) [3]sdlog.ChanID {
	switch s {
	case sdlog.CalAccelWR:
		return [3]sdlog.ChanID{sdlog.ChanAccelWRX, sdlog.ChanAccelWRY, sdlog.ChanAccelWRZ}
	case sdlog.CalGyro:
		return [3]sdlog.ChanID{sdlog.ChanGyroX, sdlog.ChanGyroY, sdlog.ChanGyroZ}
	case sdlog.CalMag:
		return [3]sdlog.ChanID{sdlog.ChanMagX, sdlog.ChanMagY, sdlog.ChanMagZ}
	case sdlog.CalAccelLN:
		return [3]sdlog.ChanID{sdlog.ChanAccelLNX, sdlog.ChanAccelLNY, sdlog.ChanAccelLNZ}
	}
	panic("calib: invalid sensor family")
}

// Calibrate applies the calibration transform to the raw triaxial
// sample stream:
//
//	calibrated = alignment * ((raw - offset) / gain)
//
// computed independently per sample. The gyroscope family additionally
// gets the GyroScale unit conversion. The three input arrays must have
// the same length; the three returned arrays are parallel to them.
func Calibrate(s sdlog.CalSensor, p Params, x, y, z []int32) [3][]float64 {
	n := len(x)
	out := [3][]float64{
		make([]float64, n),
		make([]float64, n),
		make([]float64, n),
	}

	scale := 1.0
	if s == sdlog.CalGyro {
		scale = GyroScale
	}

	var (
		in  = mat.NewVecDense(3, nil)
		res = mat.NewVecDense(3, nil)
	)
	for i := 0; i < n; i++ {
		in.SetVec(0, (float64(x[i])-p.Offset[0])/p.Gain[0])
		in.SetVec(1, (float64(y[i])-p.Offset[1])/p.Gain[1])
		in.SetVec(2, (float64(z[i])-p.Offset[2])/p.Gain[2])

		res.MulVec(p.Alignment, in)

		out[0][i] = res.AtVec(0) * scale
		out[1][i] = res.AtVec(1) * scale
		out[2][i] = res.AtVec(2) * scale
	}

	return out
}
