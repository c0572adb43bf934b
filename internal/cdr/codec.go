package cdr

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/hdds-team/hdds-sub002/internal/hddserr"
)

// writer tracks a cursor into a fixed destination buffer, measuring
// alignment from the start of the CDR payload (spec §4.1 "Alignment
// rule").
type writer struct {
	buf []byte
	pos int
}

func (w *writer) alignTo(a int) error {
	pad := (a - (w.pos % a)) % a
	if pad == 0 {
		return nil
	}
	if w.pos+pad > len(w.buf) {
		return hddserr.Wrap(hddserr.BufferTooSmall, "cdr: out of space padding to align %d", a)
	}
	for i := 0; i < pad; i++ {
		w.buf[w.pos+i] = 0
	}
	w.pos += pad
	return nil
}

func (w *writer) writeBytes(b []byte) error {
	if w.pos+len(b) > len(w.buf) {
		return hddserr.Wrap(hddserr.BufferTooSmall, "cdr: need %d more bytes, have %d", len(b), len(w.buf)-w.pos)
	}
	copy(w.buf[w.pos:], b)
	w.pos += len(b)
	return nil
}

// reader is the decode-side counterpart of writer.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) alignTo(a int) error {
	pad := (a - (r.pos % a)) % a
	if r.pos+pad > len(r.buf) {
		return hddserr.Wrap(hddserr.UnexpectedEof, "cdr: out of bytes padding to align %d", a)
	}
	r.pos += pad
	return nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, hddserr.Wrap(hddserr.UnexpectedEof, "cdr: need %d more bytes, have %d", n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Encode writes v (conforming to d) into buf in CDR2 little-endian wire
// format, returning the number of bytes written (spec §4.1 "Contracts").
func Encode(v *Value, d *Descriptor, buf []byte) (int, error) {
	w := &writer{buf: buf}
	if err := encodeValue(w, v, d); err != nil {
		return 0, err
	}
	return w.pos, nil
}

// Decode parses bytes as a value conforming to d (spec §4.1 "Contracts").
func Decode(data []byte, d *Descriptor) (*Value, error) {
	r := &reader{buf: data}
	v, err := decodeValue(r, d)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func mismatch(d *Descriptor, v *Value) error {
	got := "nil"
	if v != nil {
		got = v.Kind.String()
		if v.Null {
			got = "null"
		}
	}
	return hddserr.Wrap(hddserr.TypeMismatch, "cdr: descriptor wants %s, value is %s", d.Kind, got)
}

func encodeValue(w *writer, v *Value, d *Descriptor) error {
	if v == nil || v.Null {
		return hddserr.Wrap(hddserr.TypeMismatch, "cdr: cannot encode null as %s", d.Kind)
	}
	switch d.Kind {
	case KindBool:
		if v.Kind != KindBool {
			return mismatch(d, v)
		}
		var b byte
		if v.B {
			b = 1
		}
		return w.writeBytes([]byte{b})

	case KindI8, KindU8, KindChar:
		if v.Kind != d.Kind {
			return mismatch(d, v)
		}
		var b byte
		if d.Kind == KindI8 {
			b = byte(v.I)
		} else {
			b = byte(v.U)
		}
		return w.writeBytes([]byte{b})

	case KindI16, KindU16:
		if v.Kind != d.Kind {
			return mismatch(d, v)
		}
		if err := w.alignTo(2); err != nil {
			return err
		}
		b := make([]byte, 2)
		if d.Kind == KindI16 {
			binary.LittleEndian.PutUint16(b, uint16(int16(v.I)))
		} else {
			binary.LittleEndian.PutUint16(b, uint16(v.U))
		}
		return w.writeBytes(b)

	case KindI32, KindU32:
		if v.Kind != d.Kind {
			return mismatch(d, v)
		}
		if err := w.alignTo(4); err != nil {
			return err
		}
		b := make([]byte, 4)
		if d.Kind == KindI32 {
			binary.LittleEndian.PutUint32(b, uint32(int32(v.I)))
		} else {
			binary.LittleEndian.PutUint32(b, uint32(v.U))
		}
		return w.writeBytes(b)

	case KindI64, KindU64:
		if v.Kind != d.Kind {
			return mismatch(d, v)
		}
		if err := w.alignTo(8); err != nil {
			return err
		}
		b := make([]byte, 8)
		if d.Kind == KindI64 {
			binary.LittleEndian.PutUint64(b, uint64(v.I))
		} else {
			binary.LittleEndian.PutUint64(b, v.U)
		}
		return w.writeBytes(b)

	case KindF32:
		if v.Kind != KindF32 {
			return mismatch(d, v)
		}
		if err := w.alignTo(4); err != nil {
			return err
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.F32))
		return w.writeBytes(b)

	case KindF64:
		if v.Kind != KindF64 {
			return mismatch(d, v)
		}
		if err := w.alignTo(8); err != nil {
			return err
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.F64))
		return w.writeBytes(b)

	case KindLongDouble:
		if v.Kind != KindLongDouble {
			return mismatch(d, v)
		}
		if err := w.alignTo(LongDoubleSize); err != nil {
			return err
		}
		return w.writeBytes(v.LD[:])

	case KindString:
		if v.Kind != KindString {
			return mismatch(d, v)
		}
		return encodeString(w, v.Str, d.MaxLength)

	case KindWString:
		if v.Kind != KindWString {
			return mismatch(d, v)
		}
		return encodeWString(w, v.WStr, d.MaxLength)

	case KindSequence:
		if v.Kind != KindSequence {
			return mismatch(d, v)
		}
		if err := w.alignTo(4); err != nil {
			return err
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(len(v.Seq)))
		if err := w.writeBytes(b); err != nil {
			return err
		}
		for _, el := range v.Seq {
			if err := encodeValue(w, el, d.Elem); err != nil {
				return err
			}
		}
		return nil

	case KindArray:
		if v.Kind != KindArray {
			return mismatch(d, v)
		}
		if len(v.Arr) != d.ArrayLen {
			return hddserr.Wrap(hddserr.LengthMismatch, "cdr: array wants %d elements, got %d", d.ArrayLen, len(v.Arr))
		}
		for _, el := range v.Arr {
			if err := encodeValue(w, el, d.Elem); err != nil {
				return err
			}
		}
		return nil

	case KindStruct:
		if v.Kind != KindStruct {
			return mismatch(d, v)
		}
		for _, f := range d.Fields {
			fv, ok := v.Fields[f.Name]
			if !ok {
				return hddserr.Wrap(hddserr.TypeMismatch, "cdr: struct missing field %q", f.Name)
			}
			if err := encodeValue(w, fv, f.Type); err != nil {
				return err
			}
		}
		return nil

	case KindEnum:
		if v.Kind != KindEnum {
			return mismatch(d, v)
		}
		if err := w.alignTo(4); err != nil {
			return err
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v.I)))
		return w.writeBytes(b)

	case KindUnion:
		if v.Kind != KindUnion {
			return mismatch(d, v)
		}
		c, ok := d.CaseByName(v.UnionName)
		if !ok {
			return hddserr.Wrap(hddserr.TypeMismatch, "cdr: union has no case %q", v.UnionName)
		}
		if err := w.alignTo(4); err != nil {
			return err
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v.UnionDisc)))
		if err := w.writeBytes(b); err != nil {
			return err
		}
		return encodeValue(w, v.UnionVal, c.Type)

	default:
		return hddserr.Wrap(hddserr.SerializationError, "cdr: unsupported kind %s", d.Kind)
	}
}

func encodeString(w *writer, s string, maxLength int) error {
	if !utf8.ValidString(s) {
		return hddserr.Wrap(hddserr.SerializationError, "cdr: string is not valid utf-8")
	}
	n := len([]byte(s))
	if maxLength > 0 && n+1 > maxLength {
		return hddserr.Wrap(hddserr.StringOverflow, "cdr: string of %d bytes exceeds max_length %d", n, maxLength)
	}
	if err := w.alignTo(4); err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(n+1))
	if err := w.writeBytes(lenBuf); err != nil {
		return err
	}
	if err := w.writeBytes([]byte(s)); err != nil {
		return err
	}
	return w.writeBytes([]byte{0})
}

func encodeWString(w *writer, s string, maxLength int) error {
	units := utf16.Encode([]rune(s))
	if maxLength > 0 && len(units) > maxLength {
		return hddserr.Wrap(hddserr.StringOverflow, "cdr: wstring of %d units exceeds max_length %d", len(units), maxLength)
	}
	if err := w.alignTo(4); err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(units)))
	if err := w.writeBytes(lenBuf); err != nil {
		return err
	}
	for _, u := range units {
		if err := w.alignTo(2); err != nil {
			return err
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, u)
		if err := w.writeBytes(b); err != nil {
			return err
		}
	}
	return nil
}

func decodeValue(r *reader, d *Descriptor) (*Value, error) {
	switch d.Kind {
	case KindBool:
		b, err := r.readBytes(1)
		if err != nil {
			return nil, err
		}
		return NewBool(b[0] != 0), nil

	case KindI8:
		b, err := r.readBytes(1)
		if err != nil {
			return nil, err
		}
		return NewI8(int8(b[0])), nil

	case KindU8:
		b, err := r.readBytes(1)
		if err != nil {
			return nil, err
		}
		return NewU8(b[0]), nil

	case KindChar:
		b, err := r.readBytes(1)
		if err != nil {
			return nil, err
		}
		return NewChar(b[0]), nil

	case KindI16:
		if err := r.alignTo(2); err != nil {
			return nil, err
		}
		b, err := r.readBytes(2)
		if err != nil {
			return nil, err
		}
		return NewI16(int16(binary.LittleEndian.Uint16(b))), nil

	case KindU16:
		if err := r.alignTo(2); err != nil {
			return nil, err
		}
		b, err := r.readBytes(2)
		if err != nil {
			return nil, err
		}
		return NewU16(binary.LittleEndian.Uint16(b)), nil

	case KindI32:
		if err := r.alignTo(4); err != nil {
			return nil, err
		}
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return NewI32(int32(binary.LittleEndian.Uint32(b))), nil

	case KindU32:
		if err := r.alignTo(4); err != nil {
			return nil, err
		}
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return NewU32(binary.LittleEndian.Uint32(b)), nil

	case KindI64:
		if err := r.alignTo(8); err != nil {
			return nil, err
		}
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}
		return NewI64(int64(binary.LittleEndian.Uint64(b))), nil

	case KindU64:
		if err := r.alignTo(8); err != nil {
			return nil, err
		}
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}
		return NewU64(binary.LittleEndian.Uint64(b)), nil

	case KindF32:
		if err := r.alignTo(4); err != nil {
			return nil, err
		}
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return NewF32(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil

	case KindF64:
		if err := r.alignTo(8); err != nil {
			return nil, err
		}
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}
		return NewF64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil

	case KindLongDouble:
		if err := r.alignTo(LongDoubleSize); err != nil {
			return nil, err
		}
		b, err := r.readBytes(LongDoubleSize)
		if err != nil {
			return nil, err
		}
		v := &Value{Kind: KindLongDouble}
		copy(v.LD[:], b)
		return v, nil

	case KindString:
		return decodeString(r, d.MaxLength)

	case KindWString:
		return decodeWString(r, d.MaxLength)

	case KindSequence:
		if err := r.alignTo(4); err != nil {
			return nil, err
		}
		lb, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		n := binary.LittleEndian.Uint32(lb)
		elems := make([]*Value, 0, n)
		for i := uint32(0); i < n; i++ {
			el, err := decodeValue(r, d.Elem)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
		}
		return NewSequence(elems), nil

	case KindArray:
		elems := make([]*Value, 0, d.ArrayLen)
		for i := 0; i < d.ArrayLen; i++ {
			el, err := decodeValue(r, d.Elem)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
		}
		return NewArray(elems), nil

	case KindStruct:
		order := make([]string, 0, len(d.Fields))
		fields := make(map[string]*Value, len(d.Fields))
		for _, f := range d.Fields {
			fv, err := decodeValue(r, f.Type)
			if err != nil {
				return nil, err
			}
			order = append(order, f.Name)
			fields[f.Name] = fv
		}
		return NewStruct(order, fields), nil

	case KindEnum:
		if err := r.alignTo(4); err != nil {
			return nil, err
		}
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		ordinal := int64(int32(binary.LittleEndian.Uint32(b)))
		name, ok := d.EnumValues[ordinal]
		if !ok {
			return nil, hddserr.Wrap(hddserr.TypeMismatch, "cdr: enum ordinal %d not in descriptor", ordinal)
		}
		return NewEnum(ordinal, name), nil

	case KindUnion:
		if err := r.alignTo(4); err != nil {
			return nil, err
		}
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		disc := int64(int32(binary.LittleEndian.Uint32(b)))
		c, ok := d.CaseFor(disc)
		if !ok {
			return nil, hddserr.Wrap(hddserr.UnknownDiscriminator, "cdr: union discriminator %d has no matching case", disc)
		}
		inner, err := decodeValue(r, c.Type)
		if err != nil {
			return nil, err
		}
		return NewUnion(disc, c.Name, inner), nil

	default:
		return nil, hddserr.Wrap(hddserr.SerializationError, "cdr: unsupported kind %s", d.Kind)
	}
}

func decodeString(r *reader, maxLength int) (*Value, error) {
	if err := r.alignTo(4); err != nil {
		return nil, err
	}
	lb, err := r.readBytes(4)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lb)
	if maxLength > 0 && int(n) > maxLength {
		return nil, hddserr.Wrap(hddserr.LengthMismatch, "cdr: string length %d exceeds max_length %d", n, maxLength)
	}
	if n == 0 {
		return nil, hddserr.Wrap(hddserr.LengthMismatch, "cdr: string length prefix is 0, expected at least the NUL terminator")
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return nil, err
	}
	content := b[:n-1] // drop NUL terminator
	if !utf8.Valid(content) {
		return nil, hddserr.Wrap(hddserr.InvalidUtf8, "cdr: string is not valid utf-8")
	}
	return NewString(string(content)), nil
}

func decodeWString(r *reader, maxLength int) (*Value, error) {
	if err := r.alignTo(4); err != nil {
		return nil, err
	}
	lb, err := r.readBytes(4)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lb)
	if maxLength > 0 && int(n) > maxLength {
		return nil, hddserr.Wrap(hddserr.LengthMismatch, "cdr: wstring length %d exceeds max_length %d", n, maxLength)
	}
	units := make([]uint16, n)
	for i := uint32(0); i < n; i++ {
		if err := r.alignTo(2); err != nil {
			return nil, err
		}
		b, err := r.readBytes(2)
		if err != nil {
			return nil, err
		}
		units[i] = binary.LittleEndian.Uint16(b)
	}
	return NewWString(string(utf16.Decode(units))), nil
}
