// Package cdr implements CDR2 encoding and decoding for RTPS payloads:
// primitives, strings/wstrings, arrays, sequences, nested structs, enums,
// unions, and a dynamic value model driven by a runtime TypeDescriptor
// for schemaless forwarding (spec §4.1).
package cdr

// TypeKind enumerates the value shapes a TypeDescriptor can describe.
type TypeKind int

const (
	KindBool TypeKind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindLongDouble
	KindChar
	KindString
	KindWString
	KindStruct
	KindSequence
	KindArray
	KindEnum
	KindUnion
)

func (k TypeKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindLongDouble:
		return "long_double"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindWString:
		return "wstring"
	case KindStruct:
		return "struct"
	case KindSequence:
		return "sequence"
	case KindArray:
		return "array"
	case KindEnum:
		return "enum"
	case KindUnion:
		return "union"
	default:
		return "unknown"
	}
}

// LongDoubleSize is the wire size, in bytes, HDDS uses for `long double`.
// The OMG CDR representation is platform-dependent — 8 bytes on Windows,
// 16 elsewhere (spec §4.1) — and HDDS only targets non-Windows hosts, so
// the 16-byte form is the only one implemented; a Windows build would
// need a second constant and is out of scope.
const LongDoubleSize = 16

// Field is one named member of a KindStruct descriptor.
type Field struct {
	Name string
	Type *Descriptor
}

// UnionCase maps one discriminator value to the descriptor of the value
// stored when that case is active. IsDefault marks the fallback case,
// if any.
type UnionCase struct {
	Discriminator int64
	IsDefault     bool
	Name          string
	Type          *Descriptor
}

// Descriptor is the runtime type schema that drives both the dynamic
// encoder/decoder and, for statically known types, a derived
// encode_cdr2/decode_cdr2 pair (spec §4.1 "Derived codec").
type Descriptor struct {
	Kind TypeKind

	// KindString / KindWString: 0 means unbounded.
	MaxLength int

	// KindArray: fixed element count. KindSequence: element descriptor
	// only (count is read off the wire).
	ArrayLen int
	Elem     *Descriptor

	// KindStruct.
	Fields []Field

	// KindEnum: value -> name. Encoding on the wire is always a 4-byte
	// signed integer (the common IDL enum representation).
	EnumValues map[int64]string

	// KindUnion.
	UnionCases []UnionCase
}

// Alignment returns the CDR alignment, in bytes, required before a value
// of this kind may be written or read (spec §4.1 "Alignment rule").
// Struct alignment is the max of its members'; sequence/string/wstring
// count prefixes align to 4 regardless of element alignment.
func (d *Descriptor) Alignment() int {
	switch d.Kind {
	case KindBool, KindI8, KindU8, KindChar:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32, KindEnum:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindLongDouble:
		return LongDoubleSize
	case KindString, KindWString, KindSequence:
		return 4
	case KindArray:
		if d.Elem != nil {
			return d.Elem.Alignment()
		}
		return 1
	case KindStruct:
		max := 1
		for _, f := range d.Fields {
			if a := f.Type.Alignment(); a > max {
				max = a
			}
		}
		return max
	case KindUnion:
		max := 4 // discriminator alignment
		for _, c := range d.UnionCases {
			if a := c.Type.Alignment(); a > max {
				max = a
			}
		}
		return max
	default:
		return 1
	}
}

// CaseFor returns the union case matching the given discriminator value,
// falling back to the default case if one exists. ok is false if neither
// is found.
func (d *Descriptor) CaseFor(disc int64) (UnionCase, bool) {
	var def *UnionCase
	for i := range d.UnionCases {
		c := &d.UnionCases[i]
		if c.IsDefault {
			def = c
			continue
		}
		if c.Discriminator == disc {
			return *c, true
		}
	}
	if def != nil {
		return *def, true
	}
	return UnionCase{}, false
}

// CaseByName finds a union case by its variant name, for encoding from a
// Value that names its active case.
func (d *Descriptor) CaseByName(name string) (UnionCase, bool) {
	for _, c := range d.UnionCases {
		if c.Name == name {
			return c, true
		}
	}
	return UnionCase{}, false
}
