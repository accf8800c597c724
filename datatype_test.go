package jls

import (
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		dt     DataType
		values []float64
	}{
		{U1, []float64{0, 1, 1, 0, 1, 0, 0, 1, 1, 1, 0}},
		{U4, []float64{0, 1, 7, 15, 8, 3}},
		{I4, []float64{-8, -1, 0, 1, 7, -4, 3}},
		{U8, []float64{0, 127, 255}},
		{I8, []float64{-128, -1, 0, 127}},
		{U16, []float64{0, 1000, 65535}},
		{I16, []float64{-32768, -7, 0, 32767}},
		{U32, []float64{0, 1 << 20, 4294967295}},
		{I32, []float64{-2147483648, 0, 2147483647}},
		{F32, []float64{0, -1.5, 3.25, 1e6}},
		{F64, []float64{0, -1.5, 3.141592653589793, 1e300}},
	}
	for _, tc := range cases {
		packed := packSamples(tc.dt, tc.values)
		if len(packed) != tc.dt.packedSize(len(tc.values)) {
			t.Errorf("%s: packed %d bytes, want %d", tc.dt, len(packed), tc.dt.packedSize(len(tc.values)))
		}
		got, err := unpackSamples(tc.dt, packed, len(tc.values))
		if err != nil {
			t.Fatalf("%s: unpack: %v", tc.dt, err)
		}
		for i, v := range tc.values {
			if got[i] != v {
				t.Errorf("%s[%d] = %v, want %v", tc.dt, i, got[i], v)
			}
		}
	}
}

func TestPackClamps(t *testing.T) {
	got, err := unpackSamples(U8, packSamples(U8, []float64{-5, 300, 12.4}), 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 255, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("clamped[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUnpackShortBuffer(t *testing.T) {
	if _, err := unpackSamples(F64, make([]byte, 15), 2); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestPackedSize(t *testing.T) {
	cases := []struct {
		dt    DataType
		count int
		want  int
	}{
		{U1, 8, 1},
		{U1, 9, 2},
		{U4, 3, 2},
		{I4, 2, 1},
		{U8, 5, 5},
		{F32, 3, 12},
		{F64, 2, 16},
	}
	for _, tc := range cases {
		if got := tc.dt.packedSize(tc.count); got != tc.want {
			t.Errorf("%s.packedSize(%d) = %d, want %d", tc.dt, tc.count, got, tc.want)
		}
	}
}

func TestParseDataType(t *testing.T) {
	for d := DataType(0); d < dataTypeCount; d++ {
		got, err := parseDataType(d.String())
		if err != nil {
			t.Fatalf("parse %q: %v", d.String(), err)
		}
		if got != d {
			t.Errorf("parse %q = %v, want %v", d.String(), got, d)
		}
	}
	if _, err := parseDataType("f128"); err == nil {
		t.Error("expected error for unknown type name")
	}
}

func TestDataTypeSizeBits(t *testing.T) {
	if U1.SizeBits() != 1 || I4.SizeBits() != 4 || F64.SizeBits() != 64 {
		t.Errorf("unexpected size bits: u1=%d i4=%d f64=%d", U1.SizeBits(), I4.SizeBits(), F64.SizeBits())
	}
	if DataType(200).SizeBits() != 0 {
		t.Error("invalid type should report 0 bits")
	}
}
