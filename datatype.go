package jls

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType identifies the stored representation of one sample. It is a
// closed set: unsigned and signed integers of 1 to 64 bits plus IEEE floats.
// Sub-byte types (U1, U4, I4) are bit-packed on disk, least significant
// sample first.
type DataType uint8

const (
	// U1 is a 1-bit unsigned value (0 or 1), packed 8 samples per byte.
	U1 DataType = iota
	// U4 is a 4-bit unsigned value, packed 2 samples per byte.
	U4
	// U8 is an 8-bit unsigned integer.
	U8
	// U16 is a 16-bit unsigned integer.
	U16
	// U32 is a 32-bit unsigned integer.
	U32
	// U64 is a 64-bit unsigned integer.
	U64
	// I4 is a 4-bit signed value, packed 2 samples per byte.
	I4
	// I8 is an 8-bit signed integer.
	I8
	// I16 is a 16-bit signed integer.
	I16
	// I32 is a 32-bit signed integer.
	I32
	// I64 is a 64-bit signed integer.
	I64
	// F32 is an IEEE 754 binary32 float.
	F32
	// F64 is an IEEE 754 binary64 float.
	F64

	dataTypeCount
)

var dataTypeNames = [dataTypeCount]string{
	U1: "u1", U4: "u4", U8: "u8", U16: "u16", U32: "u32", U64: "u64",
	I4: "i4", I8: "i8", I16: "i16", I32: "i32", I64: "i64",
	F32: "f32", F64: "f64",
}

var dataTypeBits = [dataTypeCount]int{
	U1: 1, U4: 4, U8: 8, U16: 16, U32: 32, U64: 64,
	I4: 4, I8: 8, I16: 16, I32: 32, I64: 64,
	F32: 32, F64: 64,
}

func (d DataType) String() string {
	if !d.valid() {
		return fmt.Sprintf("datatype(%d)", uint8(d))
	}
	return dataTypeNames[d]
}

// SizeBits returns the storage size of one sample in bits.
func (d DataType) SizeBits() int {
	if !d.valid() {
		return 0
	}
	return dataTypeBits[d]
}

func (d DataType) valid() bool {
	return d < dataTypeCount
}

// parseDataType converts a name like "f32" back to its DataType.
func parseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if name == s {
			return DataType(i), nil
		}
	}
	return 0, defErrorf("unknown data type %q", s)
}

// packedSize returns the number of bytes required to store count samples.
func (d DataType) packedSize(count int) int {
	bits := count * d.SizeBits()
	return (bits + 7) / 8
}

// packSamples encodes values into the on-disk representation for d.
// Float inputs destined for integer types are rounded to nearest.
func packSamples(d DataType, values []float64) []byte {
	out := make([]byte, d.packedSize(len(values)))
	switch d {
	case U1:
		for i, v := range values {
			if v != 0 {
				out[i>>3] |= 1 << (i & 7)
			}
		}
	case U4:
		for i, v := range values {
			u := uint8(clampRound(v, 0, 15))
			out[i>>1] |= (u & 0x0f) << ((i & 1) * 4)
		}
	case I4:
		for i, v := range values {
			u := uint8(int8(clampRound(v, -8, 7))) & 0x0f
			out[i>>1] |= u << ((i & 1) * 4)
		}
	case U8:
		for i, v := range values {
			out[i] = uint8(clampRound(v, 0, math.MaxUint8))
		}
	case I8:
		for i, v := range values {
			out[i] = uint8(int8(clampRound(v, math.MinInt8, math.MaxInt8)))
		}
	case U16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(clampRound(v, 0, math.MaxUint16)))
		}
	case I16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
		}
	case U32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(clampRound(v, 0, math.MaxUint32)))
		}
	case I32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
		}
	case U64:
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(clampRound(v, 0, math.MaxUint64)))
		}
	case I64:
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(int64(clampRound(v, math.MinInt64, math.MaxInt64))))
		}
	case F32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
		}
	case F64:
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
	}
	return out
}

// unpackSamples decodes count samples of type d from data.
// Sub-byte types are unpacked to their widened numeric value.
func unpackSamples(d DataType, data []byte, count int) ([]float64, error) {
	if d.packedSize(count) > len(data) {
		return nil, fmt.Errorf("%w: %d samples of %s need %d bytes, have %d",
			ErrCorruptChunk, count, d, d.packedSize(count), len(data))
	}
	out := make([]float64, count)
	switch d {
	case U1:
		for i := range out {
			out[i] = float64((data[i>>3] >> (i & 7)) & 1)
		}
	case U4:
		for i := range out {
			out[i] = float64((data[i>>1] >> ((i & 1) * 4)) & 0x0f)
		}
	case I4:
		for i := range out {
			u := (data[i>>1] >> ((i & 1) * 4)) & 0x0f
			out[i] = float64(int8(u<<4) >> 4)
		}
	case U8:
		for i := range out {
			out[i] = float64(data[i])
		}
	case I8:
		for i := range out {
			out[i] = float64(int8(data[i]))
		}
	case U16:
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case I16:
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
	case U32:
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case I32:
		for i := range out {
			out[i] = float64(int32(binary.LittleEndian.Uint32(data[i*4:])))
		}
	case U64:
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case I64:
		for i := range out {
			out[i] = float64(int64(binary.LittleEndian.Uint64(data[i*8:])))
		}
	case F32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	case F64:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	}
	return out, nil
}

// clampRound rounds v to nearest and clamps it into [lo, hi].
func clampRound(v, lo, hi float64) float64 {
	v = math.RoundToEven(v)
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
