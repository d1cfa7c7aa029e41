// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package record decodes whole SD-log recordings: header, channel
// schema, packet stream, inertial calibration and timestamp
// reconstruction, assembled into one aggregate value.
package record // import "github.com/wearlog/shim/record"

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/wearlog/shim/calib"
	"github.com/wearlog/shim/internal/mmap"
	"github.com/wearlog/shim/sdlog"
	"github.com/wearlog/shim/tsync"
)

// DiagKind classifies the recoverable conditions met while decoding.
type DiagKind int

const (
	DiagPartialTrailingPacket DiagKind = iota
	DiagUndefinedSampleRate
	DiagCalibrationUnavailable
)

func (k DiagKind) String() string {
	switch k {
	case DiagPartialTrailingPacket:
		return "partial-trailing-packet"
	case DiagUndefinedSampleRate:
		return "undefined-sample-rate"
	case DiagCalibrationUnavailable:
		return "calibration-unavailable"
	}
	return "unknown"
}

// Diagnostic is a recoverable decode condition. Diagnostics never abort
// a decode: they accompany the output.
type Diagnostic struct {
	Kind DiagKind
	Msg  string
}

func (d Diagnostic) String() string {
	return d.Kind.String() + ": " + d.Msg
}

// Recording is the fully decoded content of one SD-log file.
// All per-sample arrays have the same length N.
type Recording struct {
	Header sdlog.Header
	Schema sdlog.Schema
	N      int // number of fully decoded packets

	Ticks      []uint32                    // raw 24-bit tick counters
	Raw        map[sdlog.ChanID][]int32    // raw channel values, one array per channel
	Timestamps []float64                   // absolute time, one entry per sample
	Cal        map[sdlog.CalSensor][3][]float64 // calibrated triaxial output

	Warnings []Diagnostic
}

// Decode decodes a complete SD-log file held in memory.
func Decode(data []byte) (*Recording, error) {
	return Read(bytes.NewReader(data), int64(len(data)))
}

// DecodeFile memory-maps and decodes the SD-log file at path. The
// mapping is released before DecodeFile returns, on success and on
// failure alike.
func DecodeFile(path string) (*Recording, error) {
	h, err := mmap.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("record: could not map %q: %w", path, err)
	}
	defer h.Close()

	rec, err := Decode(h.Bytes())
	if err != nil {
		return nil, xerrors.Errorf("record: could not decode %q: %w", path, err)
	}
	return rec, nil
}

// Read decodes a complete SD-log recording from r, whose total length
// (header included) must be size bytes. The packet stream is consumed
// strictly once, one packet at a time.
func Read(r io.Reader, size int64) (*Recording, error) {
	hdr := make([]byte, sdlog.HeaderLength)
	if n, err := io.ReadFull(r, hdr); err != nil {
		return nil, xerrors.Errorf("record: could not read %d header bytes (got=%d): %w",
			sdlog.HeaderLength, n, sdlog.ErrMalformedHeader)
	}

	h, err := sdlog.DecodeHeader(hdr)
	if err != nil {
		return nil, xerrors.Errorf("record: could not decode header: %w", err)
	}

	sch, err := sdlog.BuildSchema(h.Sensors)
	if err != nil {
		return nil, xerrors.Errorf("record: could not build channel schema: %w", err)
	}

	var (
		stride  = sch.Stride()
		payload = size - sdlog.HeaderLength
	)
	if payload <= 0 {
		return nil, xerrors.Errorf("record: no packet bytes after header: %w",
			sdlog.ErrEmptyRecording)
	}
	npkts := int(payload / int64(stride))

	rec := &Recording{
		Header: h,
		Schema: sch,
		Ticks:  make([]uint32, npkts),
		Raw:    make(map[sdlog.ChanID][]int32, len(sch)),
	}
	cols := make([][]int32, len(sch))
	for i, ch := range sch {
		cols[i] = make([]int32, npkts)
		rec.Raw[ch.ID] = cols[i]
	}

	if math.IsNaN(h.SampleRate()) {
		rec.warnf(DiagUndefinedSampleRate, "sample-rate ticks is zero")
	}

	var (
		dec = sdlog.NewDecoder(sch, r)
		smp = sdlog.Sample{Values: make([]int32, len(sch))}
	)
loop:
	for i := 0; i < npkts; i++ {
		err := dec.Decode(&smp)
		switch {
		case err == nil:
			rec.Ticks[i] = smp.Tick
			for j := range cols {
				cols[j][i] = smp.Values[j]
			}
			rec.N++
		case xerrors.Is(err, io.EOF):
			break loop
		case xerrors.Is(err, sdlog.ErrShortPacket):
			rec.warnf(DiagPartialTrailingPacket, "%v", err)
			break loop
		default:
			return nil, xerrors.Errorf("record: could not decode packet %d: %w", i, err)
		}
	}

	if rec.N < npkts {
		rec.truncate(rec.N)
	}
	if rem := payload - int64(rec.N)*int64(stride); rem > 0 && rec.N == npkts {
		rec.warnf(DiagPartialTrailingPacket,
			"%d trailing bytes do not form a full %d-byte packet", rem, stride)
	}

	rec.Timestamps = tsync.Timestamps(rec.Ticks, tsync.Clock{
		InitialTicks: h.InitialTicks,
		RTCRef:       h.RTCRef,
		PhoneTime:    h.PhoneTime,
	})

	rec.calibrate()

	return rec, nil
}

func (rec *Recording) warnf(kind DiagKind, format string, args ...interface{}) {
	rec.Warnings = append(rec.Warnings, Diagnostic{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	})
}

func (rec *Recording) truncate(n int) {
	rec.Ticks = rec.Ticks[:n]
	for id, col := range rec.Raw {
		rec.Raw[id] = col[:n]
	}
}

// calibrate runs the calibration transform for every inertial sensor
// family whose three axis channels are all present. The four sensors
// are independent: read-only raw arrays in, distinct output arrays out,
// so they run in parallel.
func (rec *Recording) calibrate() {
	var (
		grp errgroup.Group
		out [sdlog.NumCalSensors]*[3][]float64
	)

	for s := sdlog.CalSensor(0); s < sdlog.NumCalSensors; s++ {
		s := s
		axes := calib.Axes(s)
		var (
			present int
			x, y, z []int32
		)
		if v, ok := rec.Raw[axes[0]]; ok {
			x, present = v, present+1
		}
		if v, ok := rec.Raw[axes[1]]; ok {
			y, present = v, present+1
		}
		if v, ok := rec.Raw[axes[2]]; ok {
			z, present = v, present+1
		}
		switch present {
		case 3:
			params := calib.DecodeParams(rec.Header.Cal[s])
			res := new([3][]float64)
			out[s] = res
			grp.Go(func() error {
				*res = calib.Calibrate(s, params, x, y, z)
				return nil
			})
		case 0:
			// sensor not part of this recording. fine.
		default:
			rec.warnf(DiagCalibrationUnavailable,
				"sensor %v has %d of 3 axis channels", s, present)
		}
	}

	_ = grp.Wait() // the workers can not fail.

	rec.Cal = make(map[sdlog.CalSensor][3][]float64)
	for s, res := range out {
		if res != nil {
			rec.Cal[sdlog.CalSensor(s)] = *res
		}
	}
}

// Magnitude returns the per-sample vector norm of the calibrated output
// of the given sensor, or nil when that sensor was not calibrated.
func (rec *Recording) Magnitude(s sdlog.CalSensor) []float64 {
	cal, ok := rec.Cal[s]
	if !ok {
		return nil
	}
	out := make([]float64, rec.N)
	for i := range out {
		out[i] = math.Sqrt(cal[0][i]*cal[0][i] + cal[1][i]*cal[1][i] + cal[2][i]*cal[2][i])
	}
	return out
}

// Range returns max-min of the calibrated magnitude of the given
// sensor, or 0 when that sensor was not calibrated or the recording is
// empty.
func (rec *Recording) Range(s sdlog.CalSensor) float64 {
	mag := rec.Magnitude(s)
	if len(mag) == 0 {
		return 0
	}
	min, max := mag[0], mag[0]
	for _, v := range mag[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max - min
}
