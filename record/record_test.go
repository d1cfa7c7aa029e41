// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/xerrors"

	"github.com/wearlog/shim/sdlog"
)

// testHeader builds a 256-byte header with the given sample-rate ticks
// and sensor bitmasks, identity calibration blocks for the four
// inertial sensors, and a fixed clock reference:
//
//	InitialTicks = 32768, RTCRef = 0, PhoneTime = 1000
func testHeader(ticks uint16, sensors [3]byte) []byte {
	hdr := make([]byte, sdlog.HeaderLength)
	binary.LittleEndian.PutUint16(hdr[0:2], ticks)
	hdr[3] = sensors[0]
	hdr[4] = sensors[1]
	hdr[5] = sensors[2]
	copy(hdr[24:30], []byte{0xd0, 0x2b, 0x46, 0x01, 0x02, 0x03})
	binary.LittleEndian.PutUint64(hdr[44:52], 0)    // rtc reference
	binary.LittleEndian.PutUint32(hdr[52:56], 1000) // phone wall-clock
	for _, off := range []int{76, 97, 118, 139} {
		// zero offsets, unit gains, identity alignment.
		for i := 0; i < 3; i++ {
			hdr[off+6+2*i+1] = 0x01
		}
		hdr[off+12+0] = 100
		hdr[off+12+4] = 100
		hdr[off+12+8] = 100
	}
	hdr[251] = 0
	binary.LittleEndian.PutUint32(hdr[252:256], 32768) // initial ticks
	return hdr
}

// testRecording builds a complete in-memory SD-log file: header plus
// one packet per sample.
func testRecording(t *testing.T, ticks uint16, sensors [3]byte, smps []sdlog.Sample) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	buf.Write(testHeader(ticks, sensors))

	sch, err := sdlog.BuildSchema(sensors)
	if err != nil {
		t.Fatalf("could not build schema: %+v", err)
	}
	enc := sdlog.NewEncoder(sch, buf)
	for i := range smps {
		if err := enc.Encode(&smps[i]); err != nil {
			t.Fatalf("could not encode packet %d: %+v", i, err)
		}
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	sensors := [3]byte{0x80, 0, 0} // low-noise accelerometer
	raw := testRecording(t, 64, sensors, []sdlog.Sample{
		{Tick: 0, Values: []int32{3, 4, 0}},
		{Tick: 32768, Values: []int32{-3, -4, 0}},
	})

	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode recording: %+v", err)
	}

	if got, want := rec.N, 2; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if got, want := rec.Header.SampleRate(), 512.0; got != want {
		t.Fatalf("invalid sample rate: got=%v, want=%v", got, want)
	}
	if got, want := rec.Ticks, []uint32{0, 32768}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid ticks: got=%v, want=%v", got, want)
	}
	if got, want := rec.Raw[sdlog.ChanAccelLNX], []int32{3, -3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid x channel: got=%v, want=%v", got, want)
	}
	if got, want := rec.Raw[sdlog.ChanAccelLNY], []int32{4, -4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid y channel: got=%v, want=%v", got, want)
	}
	if len(rec.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", rec.Warnings)
	}

	// identity calibration: calibrated output equals the raw values.
	cal, ok := rec.Cal[sdlog.CalAccelLN]
	if !ok {
		t.Fatalf("missing ln-accel calibration")
	}
	if got, want := cal[0], []float64{3, -3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid calibrated x: got=%v, want=%v", got, want)
	}
	if got, want := cal[1], []float64{4, -4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid calibrated y: got=%v, want=%v", got, want)
	}
	if _, ok := rec.Cal[sdlog.CalGyro]; ok {
		t.Fatalf("unexpected gyro calibration")
	}

	// initial ticks 32768, rtc reference 0, phone time 1000:
	// the first sample lands one second after the phone clock.
	if got, want := rec.Timestamps, []float64{1001, 1002}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid timestamps: got=%v, want=%v", got, want)
	}
}

func TestDecodeShortHeader(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	if !xerrors.Is(err, sdlog.ErrMalformedHeader) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, sdlog.ErrMalformedHeader)
	}
}

func TestDecodeEmptyRecording(t *testing.T) {
	raw := testHeader(64, [3]byte{0x80, 0, 0})
	_, err := Decode(raw)
	if !xerrors.Is(err, sdlog.ErrEmptyRecording) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, sdlog.ErrEmptyRecording)
	}
}

func TestDecodePartialTrailingPacket(t *testing.T) {
	sensors := [3]byte{0x80, 0, 0}
	raw := testRecording(t, 64, sensors, []sdlog.Sample{
		{Tick: 1, Values: []int32{1, 2, 3}},
	})
	raw = append(raw, make([]byte, 8)...) // stride is 9: 8 trailing bytes

	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode recording: %+v", err)
	}
	if got, want := rec.N, 1; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if got, want := len(rec.Warnings), 1; got != want {
		t.Fatalf("invalid number of warnings: got=%d, want=%d (%v)", got, want, rec.Warnings)
	}
	if got, want := rec.Warnings[0].Kind, DiagPartialTrailingPacket; got != want {
		t.Fatalf("invalid warning kind: got=%v, want=%v", got, want)
	}
}

func TestDecodeOnlyPartialPacket(t *testing.T) {
	raw := testHeader(64, [3]byte{0x80, 0, 0})
	raw = append(raw, 0x01, 0x02) // less than one packet

	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode recording: %+v", err)
	}
	if got, want := rec.N, 0; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if got, want := len(rec.Timestamps), 0; got != want {
		t.Fatalf("invalid number of timestamps: got=%d, want=%d", got, want)
	}
	if got, want := len(rec.Warnings), 1; got != want {
		t.Fatalf("invalid number of warnings: got=%d, want=%d (%v)", got, want, rec.Warnings)
	}
	if got, want := rec.Warnings[0].Kind, DiagPartialTrailingPacket; got != want {
		t.Fatalf("invalid warning kind: got=%v, want=%v", got, want)
	}
}

func TestDecodeUndefinedSampleRate(t *testing.T) {
	sensors := [3]byte{0x80, 0, 0}
	raw := testRecording(t, 0, sensors, []sdlog.Sample{
		{Tick: 1, Values: []int32{1, 2, 3}},
	})

	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode recording: %+v", err)
	}
	if !math.IsNaN(rec.Header.SampleRate()) {
		t.Fatalf("invalid sample rate: got=%v, want=NaN", rec.Header.SampleRate())
	}
	if got, want := rec.N, 1; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if got, want := len(rec.Warnings), 1; got != want {
		t.Fatalf("invalid number of warnings: got=%d, want=%d (%v)", got, want, rec.Warnings)
	}
	if got, want := rec.Warnings[0].Kind, DiagUndefinedSampleRate; got != want {
		t.Fatalf("invalid warning kind: got=%v, want=%v", got, want)
	}
}

func TestDecodeFile(t *testing.T) {
	sensors := [3]byte{0x80 | 0x40, 0, 0} // ln-accel + gyro
	raw := testRecording(t, 64, sensors, []sdlog.Sample{
		{Tick: 0, Values: []int32{1, 2, 3, 4, 5, 6}},
		{Tick: 64, Values: []int32{7, 8, 9, 10, 11, 12}},
	})

	fname := filepath.Join(t.TempDir(), "data.bin")
	err := os.WriteFile(fname, raw, 0644)
	if err != nil {
		t.Fatalf("could not write data file: %+v", err)
	}

	got, err := DecodeFile(fname)
	if err != nil {
		t.Fatalf("could not decode file: %+v", err)
	}
	want, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode in-memory recording: %+v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("file and in-memory decodes differ:\ngot= %#v\nwant=%#v", got, want)
	}
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "not-there.bin"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestMagnitude(t *testing.T) {
	sensors := [3]byte{0x80, 0, 0}
	raw := testRecording(t, 64, sensors, []sdlog.Sample{
		{Tick: 0, Values: []int32{3, 4, 0}},
		{Tick: 64, Values: []int32{0, 0, 0}},
	})

	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode recording: %+v", err)
	}

	if got, want := rec.Magnitude(sdlog.CalAccelLN), []float64{5, 0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid magnitude: got=%v, want=%v", got, want)
	}
	if got := rec.Magnitude(sdlog.CalGyro); got != nil {
		t.Fatalf("invalid gyro magnitude: got=%v, want=nil", got)
	}
	if got, want := rec.Range(sdlog.CalAccelLN), 5.0; got != want {
		t.Fatalf("invalid range: got=%v, want=%v", got, want)
	}
	if got, want := rec.Range(sdlog.CalGyro), 0.0; got != want {
		t.Fatalf("invalid range: got=%v, want=%v", got, want)
	}
}
