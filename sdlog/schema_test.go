// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdlog

import (
	"reflect"
	"testing"

	"golang.org/x/xerrors"
)

func TestBuildSchema(t *testing.T) {
	for _, tc := range []struct {
		name    string
		sensors [3]byte
		want    Schema
		stride  int
	}{
		{
			name:    "ln-accel",
			sensors: [3]byte{0x80, 0, 0},
			want: Schema{
				{ID: ChanAccelLNX, Kind: Int16},
				{ID: ChanAccelLNY, Kind: Int16},
				{ID: ChanAccelLNZ, Kind: Int16},
			},
			stride: 9,
		},
		{
			name:    "four-inertials",
			sensors: [3]byte{0x80 | 0x40 | 0x20, 0x10, 0},
			want: Schema{
				{ID: ChanAccelLNX, Kind: Int16},
				{ID: ChanAccelLNY, Kind: Int16},
				{ID: ChanAccelLNZ, Kind: Int16},
				{ID: ChanGyroX, Kind: Int16, BigEndian: true},
				{ID: ChanGyroY, Kind: Int16, BigEndian: true},
				{ID: ChanGyroZ, Kind: Int16, BigEndian: true},
				{ID: ChanAccelWRX, Kind: Int16},
				{ID: ChanAccelWRY, Kind: Int16},
				{ID: ChanAccelWRZ, Kind: Int16},
				{ID: ChanMagX, Kind: Int16, BigEndian: true},
				{ID: ChanMagZ, Kind: Int16, BigEndian: true},
				{ID: ChanMagY, Kind: Int16, BigEndian: true},
			},
			stride: 27,
		},
		{
			name:    "analog-and-battery",
			sensors: [3]byte{0x02 | 0x01, 0x20 | 0x08 | 0x02, 0},
			want: Schema{
				{ID: ChanVSenseBatt, Kind: Uint16},
				{ID: ChanExtA7, Kind: Uint16},
				{ID: ChanExtA6, Kind: Uint16},
				{ID: ChanExtA15, Kind: Uint16},
				{ID: ChanIntA12, Kind: Uint16},
			},
			stride: 13,
		},
		{
			name:    "strain-suppresses-a13-a14",
			sensors: [3]byte{0, 0x80 | 0x01, 0x80},
			want: Schema{
				{ID: ChanStrainHigh, Kind: Uint16},
				{ID: ChanStrainLow, Kind: Uint16},
			},
			stride: 7,
		},
		{
			name:    "a13-a14-without-strain",
			sensors: [3]byte{0, 0x01, 0x80},
			want: Schema{
				{ID: ChanIntA13, Kind: Uint16},
				{ID: ChanIntA14, Kind: Uint16},
			},
			stride: 7,
		},
		{
			name:    "gsr-suppresses-a1",
			sensors: [3]byte{0x04, 0x04, 0},
			want: Schema{
				{ID: ChanGSR, Kind: Uint16},
			},
			stride: 5,
		},
		{
			name:    "a1-without-gsr",
			sensors: [3]byte{0, 0x04, 0},
			want: Schema{
				{ID: ChanIntA1, Kind: Uint16},
			},
			stride: 5,
		},
		{
			name:    "mpu-and-pressure",
			sensors: [3]byte{0, 0, 0x40 | 0x20 | 0x04},
			want: Schema{
				{ID: ChanAccelMPUX, Kind: Int16, BigEndian: true},
				{ID: ChanAccelMPUY, Kind: Int16, BigEndian: true},
				{ID: ChanAccelMPUZ, Kind: Int16, BigEndian: true},
				{ID: ChanMagMPUX, Kind: Int16},
				{ID: ChanMagMPUY, Kind: Int16},
				{ID: ChanMagMPUZ, Kind: Int16},
				{ID: ChanBMPTemp, Kind: Int16, BigEndian: true},
				{ID: ChanBMPPress, Kind: Int24, BigEndian: true},
			},
			stride: 20,
		},
		{
			name:    "exg-24bit",
			sensors: [3]byte{0x10 | 0x08, 0, 0},
			want: Schema{
				{ID: ChanEXG1Status, Kind: Uint8},
				{ID: ChanEXG1CH1, Kind: Int24, BigEndian: true},
				{ID: ChanEXG1CH2, Kind: Int24, BigEndian: true},
				{ID: ChanEXG2Status, Kind: Uint8},
				{ID: ChanEXG2CH1, Kind: Int24, BigEndian: true},
				{ID: ChanEXG2CH2, Kind: Int24, BigEndian: true},
			},
			stride: 17,
		},
		{
			name:    "exg-16bit",
			sensors: [3]byte{0, 0, 0x10 | 0x08},
			want: Schema{
				{ID: ChanEXG1Status, Kind: Uint8},
				{ID: ChanEXG1CH1, Kind: Int16, BigEndian: true},
				{ID: ChanEXG1CH2, Kind: Int16, BigEndian: true},
				{ID: ChanEXG2Status, Kind: Uint8},
				{ID: ChanEXG2CH1, Kind: Int16, BigEndian: true},
				{ID: ChanEXG2CH2, Kind: Int16, BigEndian: true},
			},
			stride: 13,
		},
		{
			name:    "exg-24bit-wins-over-16bit",
			sensors: [3]byte{0x10, 0, 0x10 | 0x08},
			want: Schema{
				{ID: ChanEXG1Status, Kind: Uint8},
				{ID: ChanEXG1CH1, Kind: Int24, BigEndian: true},
				{ID: ChanEXG1CH2, Kind: Int24, BigEndian: true},
				{ID: ChanEXG2Status, Kind: Uint8},
				{ID: ChanEXG2CH1, Kind: Int16, BigEndian: true},
				{ID: ChanEXG2CH2, Kind: Int16, BigEndian: true},
			},
			stride: 15,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BuildSchema(tc.sensors)
			if err != nil {
				t.Fatalf("could not build schema: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid schema:\ngot= %v\nwant=%v", got, tc.want)
			}
			if got, want := got.Stride(), tc.stride; got != want {
				t.Fatalf("invalid stride: got=%d, want=%d", got, want)
			}

			again, err := BuildSchema(tc.sensors)
			if err != nil {
				t.Fatalf("could not re-build schema: %+v", err)
			}
			if !reflect.DeepEqual(got, again) {
				t.Fatalf("schema is not deterministic:\ngot= %v\nwant=%v", again, got)
			}
		})
	}
}

func TestBuildSchemaNoChannels(t *testing.T) {
	_, err := BuildSchema([3]byte{0, 0, 0})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !xerrors.Is(err, ErrNoChannels) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrNoChannels)
	}
}

func TestSchemaIndexOf(t *testing.T) {
	sch, err := BuildSchema([3]byte{0x80, 0, 0})
	if err != nil {
		t.Fatalf("could not build schema: %+v", err)
	}
	if got, want := sch.IndexOf(ChanAccelLNZ), 2; got != want {
		t.Fatalf("invalid index: got=%d, want=%d", got, want)
	}
	if got, want := sch.IndexOf(ChanGyroX), -1; got != want {
		t.Fatalf("invalid index: got=%d, want=%d", got, want)
	}
}
