// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdlog

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// Decoder reads data packets from an underlying data source positioned
// immediately after the file header. Decoding is forward-only and
// consumes the source exactly one packet at a time.
type Decoder struct {
	r      io.Reader
	schema Schema
	stride int

	buf []byte
	err error
}

// NewDecoder creates a decoder that reads packets shaped by schema from r.
func NewDecoder(schema Schema, r io.Reader) *Decoder {
	stride := schema.Stride()
	return &Decoder{
		r:      r,
		schema: schema,
		stride: stride,
		buf:    make([]byte, stride),
	}
}

// Stride returns the fixed packet size, in bytes.
func (dec *Decoder) Stride() int { return dec.stride }

// Decode reads the next packet into smp. It returns io.EOF when the
// source is exhausted at a packet boundary, and an error wrapping
// ErrShortPacket when a trailing read yields a truncated packet.
// Once Decode has returned a non-nil error, every further call
// returns the same error.
func (dec *Decoder) Decode(smp *Sample) error {
	if dec.err != nil {
		return dec.err
	}

	n, err := io.ReadFull(dec.r, dec.buf)
	switch {
	case err == nil:
		// ok.
	case xerrors.Is(err, io.EOF):
		dec.err = io.EOF
		return dec.err
	case xerrors.Is(err, io.ErrUnexpectedEOF):
		dec.err = xerrors.Errorf("sdlog: read %d of %d packet bytes: %w",
			n, dec.stride, ErrShortPacket)
		return dec.err
	default:
		dec.err = xerrors.Errorf("sdlog: could not read packet: %w", err)
		return dec.err
	}

	// the tick counter is always little-endian, whatever the
	// endianness of the channels that follow.
	smp.Tick = uint32(dec.buf[0]) | uint32(dec.buf[1])<<8 | uint32(dec.buf[2])<<16

	if cap(smp.Values) < len(dec.schema) {
		smp.Values = make([]int32, len(dec.schema))
	}
	smp.Values = smp.Values[:len(dec.schema)]

	off := TimestampBytes
	for i, ch := range dec.schema {
		w := ch.Width()
		smp.Values[i] = decodeValue(ch, dec.buf[off:off+w])
		off += w
	}

	return nil
}

// decodeValue interprets the raw bytes of one channel slot. Big-endian
// values are normalized by byte reversal and then decoded little-endian,
// which is bit-identical to a native big-endian load.
func decodeValue(ch Channel, p []byte) int32 {
	var b [3]byte
	w := ch.Width()
	copy(b[:], p[:w])
	if ch.BigEndian && w > 1 {
		for i, j := 0, w-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}

	switch ch.Kind {
	case Uint8:
		return int32(b[0])
	case Int16:
		return int32(int16(binary.LittleEndian.Uint16(b[:2])))
	case Uint16:
		return int32(binary.LittleEndian.Uint16(b[:2]))
	case Int24:
		var q [4]byte
		copy(q[:3], b[:3])
		if b[2]&0x80 != 0 {
			q[3] = 0xff
		}
		return int32(binary.LittleEndian.Uint32(q[:]))
	}
	panic(fmt.Sprintf("sdlog: invalid channel kind %d", ch.Kind))
}
