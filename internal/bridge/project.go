// Package bridge forwards dynamically-typed DDS samples onto an
// external messaging bus, a supplemented RMW-bridging feature (spec §9
// "dynamic data model... required for the bridge/forwarder use-case";
// original_source/rmw/dynamic_to_ros.rs projects the same schemaless
// cdr.Value into a host-language map before handing it to another
// middleware). HDDS projects onto a plain map[string]any and forwards
// it over NATS instead of ROS, but the shape of the projection mirrors
// the original.
package bridge

import "github.com/hdds-team/hdds-sub002/internal/cdr"

// Project converts a dynamic cdr.Value into a plain Go value suitable
// for JSON/msgpack encoding: structs become map[string]any (field order
// is not preserved — downstream encoders key on the field name, not
// position), sequences and arrays become []any, enums become their
// name, unions become a map with "case" (the active case name) and
// "value" (its projected value), and primitives become the matching Go
// scalar.
func Project(v *cdr.Value) any {
	if v == nil || v.Null {
		return nil
	}

	switch v.Kind {
	case cdr.KindBool:
		return v.B
	case cdr.KindI8, cdr.KindI16, cdr.KindI32, cdr.KindI64:
		return v.I
	case cdr.KindU8, cdr.KindU16, cdr.KindU32, cdr.KindU64, cdr.KindChar:
		return v.U
	case cdr.KindF32:
		return v.F32
	case cdr.KindF64:
		return v.F64
	case cdr.KindLongDouble:
		return v.LD[:]
	case cdr.KindString:
		return v.Str
	case cdr.KindWString:
		return v.WStr
	case cdr.KindEnum:
		return v.EnumName
	case cdr.KindSequence:
		return projectSlice(v.Seq)
	case cdr.KindArray:
		return projectSlice(v.Arr)
	case cdr.KindStruct:
		return projectStruct(v)
	case cdr.KindUnion:
		return map[string]any{
			"case":  v.UnionName,
			"value": Project(v.UnionVal),
		}
	default:
		return nil
	}
}

func projectSlice(elems []*cdr.Value) []any {
	out := make([]any, len(elems))
	for i, e := range elems {
		out[i] = Project(e)
	}
	return out
}

func projectStruct(v *cdr.Value) map[string]any {
	out := make(map[string]any, len(v.Fields))
	for name, field := range v.Fields {
		out[name] = Project(field)
	}
	return out
}
