// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdlog

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Encoder writes SD-log packets to an output stream. It is the mirror
// of Decoder and is mostly useful to synthesize test files and fixtures.
type Encoder struct {
	w      io.Writer
	schema Schema

	buf []byte
	err error
}

// NewEncoder returns a new Encoder that writes packets shaped by schema to w.
func NewEncoder(schema Schema, w io.Writer) *Encoder {
	return &Encoder{
		w:      w,
		schema: schema,
		buf:    make([]byte, schema.Stride()),
	}
}

// Encode writes one packet to the stream.
func (enc *Encoder) Encode(smp *Sample) error {
	if enc.err != nil {
		return enc.err
	}
	if len(smp.Values) != len(enc.schema) {
		return xerrors.Errorf("sdlog: invalid number of channel values (got=%d, want=%d)",
			len(smp.Values), len(enc.schema))
	}

	enc.buf[0] = byte(smp.Tick)
	enc.buf[1] = byte(smp.Tick >> 8)
	enc.buf[2] = byte(smp.Tick >> 16)

	off := TimestampBytes
	for i, ch := range enc.schema {
		w := ch.Width()
		encodeValue(ch, enc.buf[off:off+w], smp.Values[i])
		off += w
	}

	_, enc.err = enc.w.Write(enc.buf)
	if enc.err != nil {
		enc.err = xerrors.Errorf("sdlog: could not write packet: %w", enc.err)
	}
	return enc.err
}

func encodeValue(ch Channel, p []byte, v int32) {
	var b [3]byte
	w := ch.Width()
	switch ch.Kind {
	case Uint8:
		b[0] = byte(v)
	case Int16, Uint16:
		binary.LittleEndian.PutUint16(b[:2], uint16(v))
	case Int24:
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
	}
	if ch.BigEndian && w > 1 {
		for i, j := 0, w-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}
	copy(p, b[:w])
}
