package tl

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// MaxVectorLen - protection from allocation of huge slices for corrupted data
var MaxVectorLen = 1 << 20

// Parse - parses data into v, v should be a pointer to registered struct,
// to interface (boxed only) or to Raw. Returns not consumed data.
func Parse(v Serializable, data []byte, boxed bool) (_ []byte, err error) {
	src := reflect.ValueOf(v)
	if src.Kind() != reflect.Pointer || src.IsNil() {
		return nil, fmt.Errorf("v should be a pointer and not nil")
	}

	if data, err = parseValue(src.Elem(), data, boxed); err != nil {
		return nil, err
	}
	return data, nil
}

func parseValue(val reflect.Value, data []byte, boxed bool) ([]byte, error) {
	if val.Type() == rawType {
		val.SetBytes(append([]byte{}, data...))
		return nil, nil
	}

	switch val.Kind() {
	case reflect.Pointer:
		if val.Type().Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("unsupported pointer type %s", val.Type().String())
		}
		if val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		return parseValue(val.Elem(), data, boxed)
	case reflect.Interface:
		if !boxed {
			return nil, fmt.Errorf("to parse into interface type should be boxed")
		}

		id, err := PeekID(data)
		if err != nil {
			return nil, err
		}

		si := _SchemaByID[id]
		if si == nil {
			return nil, fmt.Errorf("struct id %08x is not registered", id)
		}

		e := reflect.New(si.tp).Elem()
		if data, err = parseStruct(e, si, data[4:]); err != nil {
			return nil, err
		}

		if !e.Type().AssignableTo(val.Type()) {
			return nil, fmt.Errorf("type %s is not applicable for %s", si.name, val.Type().String())
		}
		val.Set(e)
		return data, nil
	case reflect.Struct:
		si := _SchemaByType[val.Type()]
		if si == nil {
			return nil, fmt.Errorf("tl type %s is not registered", val.Type().String())
		}

		if boxed {
			id, err := PeekID(data)
			if err != nil {
				return nil, err
			}
			if id != si.id {
				return nil, fmt.Errorf("invalid TL type id %08x, want %08x for %s", id, si.id, si.name)
			}
			data = data[4:]
		}
		return parseStruct(val, si, data)
	}

	return nil, fmt.Errorf("unsupported kind %s, underlying value should be struct or interface", val.Kind().String())
}

func parseStruct(val reflect.Value, si *structInfo, data []byte) ([]byte, error) {
	var err error
	if si.manualParse {
		if data, err = val.Addr().Interface().(ParseableTL).Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse %s using manual method: %w", si.name, err)
		}
		return data, nil
	}

	flags := map[int]uint32{}
	for i, f := range si.fields {
		fv := val.Field(f.index)

		if f.hasFlag {
			if flags[f.flagsField]&(1<<f.flagBit) == 0 {
				continue
			}
			if f.typ.kind == kindTrue {
				fv.SetBool(true)
				continue
			}
		}

		if f.typ.kind == kindFlags {
			if len(data) < 4 {
				return nil, fmt.Errorf("not enough bytes for flags of %s", si.name)
			}
			flags[i] = binary.LittleEndian.Uint32(data)
		}

		if data, err = parseField(fv, f.typ, data); err != nil {
			return nil, fmt.Errorf("failed to parse field %s of %s: %w", f.name, si.name, err)
		}
	}
	return data, nil
}

func parseField(fv reflect.Value, typ *fieldType, data []byte) ([]byte, error) {
	switch typ.kind {
	case kindInt, kindFlags:
		if len(data) < 4 {
			return nil, fmt.Errorf("not enough bytes for int")
		}
		setInt(fv, int64(int32(binary.LittleEndian.Uint32(data))), uint64(binary.LittleEndian.Uint32(data)))
		return data[4:], nil
	case kindLong:
		if len(data) < 8 {
			return nil, fmt.Errorf("not enough bytes for long")
		}
		u := binary.LittleEndian.Uint64(data)
		setInt(fv, int64(u), u)
		return data[8:], nil
	case kindInt128, kindInt256:
		size := 16
		if typ.kind == kindInt256 {
			size = 32
		}
		if len(data) < size {
			return nil, fmt.Errorf("not enough bytes for int%d", size*8)
		}
		if fv.Kind() == reflect.Array {
			reflect.Copy(fv, reflect.ValueOf(data[:size]))
		} else {
			fv.SetBytes(append([]byte{}, data[:size]...))
		}
		return data[size:], nil
	case kindDouble:
		if len(data) < 8 {
			return nil, fmt.Errorf("not enough bytes for double")
		}
		fv.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(data)))
		return data[8:], nil
	case kindBytes, kindString:
		loaded, rest, err := FromBytes(data)
		if err != nil {
			return nil, err
		}
		if fv.Kind() == reflect.String {
			fv.SetString(string(loaded))
		} else {
			fv.SetBytes(loaded)
		}
		return rest, nil
	case kindBool:
		id, err := PeekID(data)
		if err != nil {
			return nil, err
		}
		switch id {
		case BoolTrueID:
			fv.SetBool(true)
		case BoolFalseID:
			fv.SetBool(false)
		default:
			return nil, fmt.Errorf("invalid bool id %08x", id)
		}
		return data[4:], nil
	case kindVector, kindBareVector:
		if typ.kind == kindVector {
			id, err := PeekID(data)
			if err != nil {
				return nil, err
			}
			if id != VectorID {
				return nil, fmt.Errorf("invalid vector id %08x", id)
			}
			data = data[4:]
		}
		if len(data) < 4 {
			return nil, fmt.Errorf("not enough bytes for vector length")
		}
		ln := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if ln > MaxVectorLen || ln > len(data) {
			return nil, fmt.Errorf("too big vector length %d", ln)
		}

		list := reflect.MakeSlice(fv.Type(), ln, ln)
		var err error
		for i := 0; i < ln; i++ {
			if data, err = parseField(list.Index(i), typ.elem, data); err != nil {
				return nil, fmt.Errorf("vector element %d: %w", i, err)
			}
		}
		fv.Set(list)
		return data, nil
	case kindStruct:
		return parseValue(fv, data, typ.boxed)
	}
	return nil, fmt.Errorf("unknown field kind %d", typ.kind)
}

func setInt(fv reflect.Value, i int64, u uint64) {
	switch fv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fv.SetUint(u)
	default:
		fv.SetInt(i)
	}
}
