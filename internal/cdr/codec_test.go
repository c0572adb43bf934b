package cdr

import (
	"testing"

	"github.com/hdds-team/hdds-sub002/internal/hddserr"
	"github.com/stretchr/testify/require"
)

func roundtrip(t *testing.T, v *Value, d *Descriptor) *Value {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := Encode(v, d, buf)
	require.NoError(t, err)
	out, err := Decode(buf[:n], d)
	require.NoError(t, err)
	return out
}

func TestRoundtripPrimitives(t *testing.T) {
	cases := []struct {
		name string
		v    *Value
		d    *Descriptor
	}{
		{"bool", NewBool(true), &Descriptor{Kind: KindBool}},
		{"i8", NewI8(-12), &Descriptor{Kind: KindI8}},
		{"u8", NewU8(200), &Descriptor{Kind: KindU8}},
		{"i16", NewI16(-3000), &Descriptor{Kind: KindI16}},
		{"u16", NewU16(60000), &Descriptor{Kind: KindU16}},
		{"i32", NewI32(-70000), &Descriptor{Kind: KindI32}},
		{"u32", NewU32(4000000000), &Descriptor{Kind: KindU32}},
		{"i64", NewI64(-1 << 40), &Descriptor{Kind: KindI64}},
		{"u64", NewU64(1 << 63), &Descriptor{Kind: KindU64}},
		{"f32", NewF32(3.25), &Descriptor{Kind: KindF32}},
		{"f64", NewF64(-9.5), &Descriptor{Kind: KindF64}},
		{"char", NewChar('Q'), &Descriptor{Kind: KindChar}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := roundtrip(t, c.v, c.d)
			require.True(t, c.v.Equal(out))
		})
	}
}

func TestRoundtripString(t *testing.T) {
	d := &Descriptor{Kind: KindString}
	v := NewString("hello rtps")
	out := roundtrip(t, v, d)
	require.True(t, v.Equal(out))
}

func TestRoundtripStringOverflow(t *testing.T) {
	d := &Descriptor{Kind: KindString, MaxLength: 4}
	v := NewString("too long")
	buf := make([]byte, 64)
	_, err := Encode(v, d, buf)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.StringOverflow))
}

func TestRoundtripWString(t *testing.T) {
	d := &Descriptor{Kind: KindWString}
	v := NewWString("héllo wörld")
	out := roundtrip(t, v, d)
	require.True(t, v.Equal(out))
}

func TestRoundtripSequence(t *testing.T) {
	d := &Descriptor{Kind: KindSequence, Elem: &Descriptor{Kind: KindI32}}
	v := NewSequence([]*Value{NewI32(1), NewI32(2), NewI32(3)})
	out := roundtrip(t, v, d)
	require.True(t, v.Equal(out))
}

func TestRoundtripArray(t *testing.T) {
	d := &Descriptor{Kind: KindArray, ArrayLen: 3, Elem: &Descriptor{Kind: KindU8}}
	v := NewArray([]*Value{NewU8(1), NewU8(2), NewU8(3)})
	out := roundtrip(t, v, d)
	require.True(t, v.Equal(out))
}

func TestRoundtripArrayLengthMismatch(t *testing.T) {
	d := &Descriptor{Kind: KindArray, ArrayLen: 3, Elem: &Descriptor{Kind: KindU8}}
	v := NewArray([]*Value{NewU8(1), NewU8(2)})
	buf := make([]byte, 64)
	_, err := Encode(v, d, buf)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.LengthMismatch))
}

func TestRoundtripNestedStruct(t *testing.T) {
	inner := &Descriptor{Kind: KindStruct, Fields: []Field{
		{Name: "x", Type: &Descriptor{Kind: KindF64}},
		{Name: "y", Type: &Descriptor{Kind: KindF64}},
	}}
	outer := &Descriptor{Kind: KindStruct, Fields: []Field{
		{Name: "id", Type: &Descriptor{Kind: KindU8}}, // forces padding before `point`
		{Name: "point", Type: inner},
		{Name: "label", Type: &Descriptor{Kind: KindString}},
	}}
	v := NewStruct([]string{"id", "point", "label"}, map[string]*Value{
		"id": NewU8(7),
		"point": NewStruct([]string{"x", "y"}, map[string]*Value{
			"x": NewF64(1.5),
			"y": NewF64(-2.5),
		}),
		"label": NewString("sample"),
	})
	out := roundtrip(t, v, outer)
	require.True(t, v.Equal(out))
}

func TestRoundtripEnum(t *testing.T) {
	d := &Descriptor{Kind: KindEnum, EnumValues: map[int64]string{0: "LOW", 1: "MEDIUM", 2: "HIGH"}}
	v := NewEnum(1, "MEDIUM")
	out := roundtrip(t, v, d)
	require.True(t, v.Equal(out))
}

func TestDecodeEnumUnknownOrdinal(t *testing.T) {
	d := &Descriptor{Kind: KindEnum, EnumValues: map[int64]string{0: "LOW"}}
	buf := make([]byte, 64)
	n, err := Encode(NewEnum(0, "LOW"), d, buf)
	require.NoError(t, err)
	buf[0] = 9 // corrupt the ordinal to one not present in the descriptor
	_, err = Decode(buf[:n], d)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.TypeMismatch))
}

func TestRoundtripUnion(t *testing.T) {
	d := &Descriptor{
		Kind: KindUnion,
		UnionCases: []UnionCase{
			{Discriminator: 0, Name: "asInt", Type: &Descriptor{Kind: KindI32}},
			{Discriminator: 1, Name: "asString", Type: &Descriptor{Kind: KindString}},
			{IsDefault: true, Name: "asBool", Type: &Descriptor{Kind: KindBool}},
		},
	}
	v := NewUnion(1, "asString", NewString("picked"))
	out := roundtrip(t, v, d)
	require.True(t, v.Equal(out))

	fallback := NewUnion(99, "asBool", NewBool(true))
	outFallback := roundtrip(t, fallback, d)
	require.Equal(t, "asBool", outFallback.UnionName)
}

func TestDecodeUnionUnknownDiscriminator(t *testing.T) {
	d := &Descriptor{
		Kind: KindUnion,
		UnionCases: []UnionCase{
			{Discriminator: 0, Name: "asInt", Type: &Descriptor{Kind: KindI32}},
		},
	}
	buf := make([]byte, 64)
	n, err := Encode(NewUnion(0, "asInt", NewI32(5)), d, buf)
	require.NoError(t, err)
	buf[0] = 7
	_, err = Decode(buf[:n], d)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.UnknownDiscriminator))
}

func TestDecodeTruncatedBufferIsUnexpectedEof(t *testing.T) {
	d := &Descriptor{Kind: KindI64}
	buf := make([]byte, 64)
	n, err := Encode(NewI64(42), d, buf)
	require.NoError(t, err)
	_, err = Decode(buf[:n-1], d)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.UnexpectedEof))
}

func TestEncodeBufferTooSmall(t *testing.T) {
	d := &Descriptor{Kind: KindI64}
	buf := make([]byte, 4)
	_, err := Encode(NewI64(42), d, buf)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.BufferTooSmall))
}

func TestEncodeTypeMismatch(t *testing.T) {
	d := &Descriptor{Kind: KindI32}
	buf := make([]byte, 64)
	_, err := Encode(NewString("oops"), d, buf)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.TypeMismatch))
}

func TestAlignmentPaddingBetweenFields(t *testing.T) {
	// u8 (1 byte) then i32 (align 4) must insert 3 bytes of zero padding.
	d := &Descriptor{Kind: KindStruct, Fields: []Field{
		{Name: "flag", Type: &Descriptor{Kind: KindU8}},
		{Name: "count", Type: &Descriptor{Kind: KindI32}},
	}}
	v := NewStruct([]string{"flag", "count"}, map[string]*Value{
		"flag":  NewU8(1),
		"count": NewI32(99),
	})
	buf := make([]byte, 64)
	n, err := Encode(v, d, buf)
	require.NoError(t, err)
	require.Equal(t, 8, n) // 1 byte + 3 pad + 4 bytes
	require.Equal(t, []byte{0, 0, 0}, buf[1:4])
}
