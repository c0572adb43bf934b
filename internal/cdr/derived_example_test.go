package cdr

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// sensorReading stands in for a type a schema compiler would generate from
// an IDL struct. HDDS has no code generator (spec §4.1 "Derived codec" is
// satisfied here by a hand-written derived pair); this demonstrates that a
// derived codec and the dynamic descriptor-driven one agree on the wire.
type sensorReading struct {
	ID    uint8
	Value float64
	Label string
}

func sensorReadingDescriptor() *Descriptor {
	return &Descriptor{Kind: KindStruct, Fields: []Field{
		{Name: "id", Type: &Descriptor{Kind: KindU8}},
		{Name: "value", Type: &Descriptor{Kind: KindF64}},
		{Name: "label", Type: &Descriptor{Kind: KindString}},
	}}
}

func (r sensorReading) toValue() *Value {
	return NewStruct([]string{"id", "value", "label"}, map[string]*Value{
		"id":    NewU8(r.ID),
		"value": NewF64(r.Value),
		"label": NewString(r.Label),
	})
}

func sensorReadingFromValue(v *Value) sensorReading {
	return sensorReading{
		ID:    uint8(v.Fields["id"].U),
		Value: v.Fields["value"].F64,
		Label: v.Fields["label"].Str,
	}
}

// encodeCdr2 is a derived (hand-specialized) encoder: it knows
// sensorReading's layout statically and writes the same bytes the dynamic
// encoder would for the equivalent Descriptor, without walking a Fields
// slice at runtime.
func encodeCdr2(r sensorReading, buf []byte) (int, error) {
	w := &writer{buf: buf}
	if err := w.writeBytes([]byte{r.ID}); err != nil {
		return 0, err
	}
	if err := w.alignTo(8); err != nil {
		return 0, err
	}
	vb := make([]byte, 8)
	binary.LittleEndian.PutUint64(vb, math.Float64bits(r.Value))
	if err := w.writeBytes(vb); err != nil {
		return 0, err
	}
	if err := encodeString(w, r.Label, 0); err != nil {
		return 0, err
	}
	return w.pos, nil
}

// decodeCdr2 is the derived decoder counterpart of encodeCdr2.
func decodeCdr2(data []byte) (sensorReading, error) {
	r := &reader{buf: data}
	idb, err := r.readBytes(1)
	if err != nil {
		return sensorReading{}, err
	}
	if err := r.alignTo(8); err != nil {
		return sensorReading{}, err
	}
	vb, err := r.readBytes(8)
	if err != nil {
		return sensorReading{}, err
	}
	sv, err := decodeString(r, 0)
	if err != nil {
		return sensorReading{}, err
	}
	return sensorReading{
		ID:    idb[0],
		Value: math.Float64frombits(binary.LittleEndian.Uint64(vb)),
		Label: sv.Str,
	}, nil
}

func TestDerivedCodecMatchesDynamicCodec(t *testing.T) {
	r := sensorReading{ID: 42, Value: 98.6, Label: "probe-7"}

	derivedBuf := make([]byte, 128)
	derivedN, err := encodeCdr2(r, derivedBuf)
	require.NoError(t, err)

	dynamicBuf := make([]byte, 128)
	dynamicN, err := Encode(r.toValue(), sensorReadingDescriptor(), dynamicBuf)
	require.NoError(t, err)

	require.Equal(t, derivedN, dynamicN)
	require.Equal(t, derivedBuf[:derivedN], dynamicBuf[:dynamicN])

	// Cross-decode: derived decoder reads dynamic encoder's bytes and
	// vice versa.
	fromDynamicBytes, err := decodeCdr2(dynamicBuf[:dynamicN])
	require.NoError(t, err)
	require.Equal(t, r, fromDynamicBytes)

	dynamicFromDerivedBytes, err := Decode(derivedBuf[:derivedN], sensorReadingDescriptor())
	require.NoError(t, err)
	require.Equal(t, r, sensorReadingFromValue(dynamicFromDerivedBytes))
}
