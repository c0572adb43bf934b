package cdr

// Value is the dynamic (untyped) data model of spec §4.1/§9: a tagged sum
// closed over every shape CDR can carry, used for schemaless forwarding
// when only a runtime TypeDescriptor — not a generated Go type — is
// available. Exactly one group of fields is meaningful for a given Kind;
// the rest are zero.
type Value struct {
	Kind TypeKind

	B   bool
	I   int64  // backs I8/I16/I32/I64 and the enum ordinal
	U   uint64 // backs U8/U16/U32/U64 and char
	F32 float32
	F64 float64
	LD  [LongDoubleSize]byte

	Str  string // KindString
	WStr string // KindWString

	Fields     map[string]*Value // KindStruct
	FieldOrder []string          // preserves encode order

	Seq []*Value // KindSequence
	Arr []*Value // KindArray

	EnumName string // KindEnum

	UnionDisc int64  // KindUnion
	UnionName string
	UnionVal  *Value

	Null bool // true only for an explicit Null value
}

// NewNull returns the Null variant.
func NewNull() *Value { return &Value{Null: true} }

// NewBool, NewI32, ... construct primitive values.
func NewBool(v bool) *Value        { return &Value{Kind: KindBool, B: v} }
func NewI8(v int8) *Value          { return &Value{Kind: KindI8, I: int64(v)} }
func NewI16(v int16) *Value        { return &Value{Kind: KindI16, I: int64(v)} }
func NewI32(v int32) *Value        { return &Value{Kind: KindI32, I: int64(v)} }
func NewI64(v int64) *Value        { return &Value{Kind: KindI64, I: v} }
func NewU8(v uint8) *Value         { return &Value{Kind: KindU8, U: uint64(v)} }
func NewU16(v uint16) *Value       { return &Value{Kind: KindU16, U: uint64(v)} }
func NewU32(v uint32) *Value       { return &Value{Kind: KindU32, U: uint64(v)} }
func NewU64(v uint64) *Value       { return &Value{Kind: KindU64, U: v} }
func NewF32(v float32) *Value      { return &Value{Kind: KindF32, F32: v} }
func NewF64(v float64) *Value      { return &Value{Kind: KindF64, F64: v} }
func NewChar(v byte) *Value        { return &Value{Kind: KindChar, U: uint64(v)} }
func NewString(v string) *Value    { return &Value{Kind: KindString, Str: v} }
func NewWString(v string) *Value   { return &Value{Kind: KindWString, WStr: v} }

// NewStruct builds a KindStruct value, preserving field order as given.
func NewStruct(order []string, fields map[string]*Value) *Value {
	return &Value{Kind: KindStruct, FieldOrder: order, Fields: fields}
}

// NewSequence and NewArray build the two collection kinds.
func NewSequence(elems []*Value) *Value { return &Value{Kind: KindSequence, Seq: elems} }
func NewArray(elems []*Value) *Value    { return &Value{Kind: KindArray, Arr: elems} }

// NewEnum builds an enum value from its ordinal and name.
func NewEnum(ordinal int64, name string) *Value {
	return &Value{Kind: KindEnum, I: ordinal, EnumName: name}
}

// NewUnion builds a union value: discriminator, active case name, and
// the boxed value for that case.
func NewUnion(disc int64, caseName string, v *Value) *Value {
	return &Value{Kind: KindUnion, UnionDisc: disc, UnionName: caseName, UnionVal: v}
}

// Equal performs a structural comparison, used by roundtrip tests. It is
// not part of the wire contract.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Null || o.Null {
		return v.Null == o.Null
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.B == o.B
	case KindI8, KindI16, KindI32, KindI64:
		return v.I == o.I
	case KindU8, KindU16, KindU32, KindU64, KindChar:
		return v.U == o.U
	case KindF32:
		return v.F32 == o.F32
	case KindF64:
		return v.F64 == o.F64
	case KindLongDouble:
		return v.LD == o.LD
	case KindString:
		return v.Str == o.Str
	case KindWString:
		return v.WStr == o.WStr
	case KindStruct:
		if len(v.FieldOrder) != len(o.FieldOrder) {
			return false
		}
		for _, name := range v.FieldOrder {
			a, okA := v.Fields[name]
			b, okB := o.Fields[name]
			if okA != okB || !a.Equal(b) {
				return false
			}
		}
		return true
	case KindSequence:
		return equalValueSlice(v.Seq, o.Seq)
	case KindArray:
		return equalValueSlice(v.Arr, o.Arr)
	case KindEnum:
		return v.I == o.I && v.EnumName == o.EnumName
	case KindUnion:
		return v.UnionDisc == o.UnionDisc && v.UnionName == o.UnionName && v.UnionVal.Equal(o.UnionVal)
	default:
		return false
	}
}

func equalValueSlice(a, b []*Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
