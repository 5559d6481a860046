package tl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// Serialize - serializes registered struct (or pointer to it), boxed adds constructor id.
func Serialize(v Serializable, boxed bool) ([]byte, error) {
	if raw, ok := v.(Raw); ok {
		return raw, nil
	}

	buf := bytes.NewBuffer(make([]byte, 0, DefaultSerializeBufferSize))
	if err := SerializeToBuffer(buf, v, boxed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func SerializeToBuffer(buf *bytes.Buffer, v Serializable, boxed bool) error {
	if raw, ok := v.(Raw); ok {
		buf.Write(raw)
		return nil
	}

	val := reflect.ValueOf(v)
	if !val.IsValid() {
		return fmt.Errorf("nil value cannot be serialized")
	}

	if err := serializeValue(buf, val, boxed); err != nil {
		return fmt.Errorf("serialization of type %s failed: %w", val.Type().String(), err)
	}
	return nil
}

func serializeValue(buf *bytes.Buffer, val reflect.Value, boxed bool) error {
	for val.Kind() == reflect.Interface || val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return fmt.Errorf("value should not be nil")
		}
		val = val.Elem()
	}

	if val.Type() == rawType {
		buf.Write(val.Bytes())
		return nil
	}

	si := _SchemaByType[val.Type()]
	if si == nil {
		return fmt.Errorf("tl type %s is not registered", val.Type().String())
	}

	bufStart := buf.Len()
	if boxed {
		writeUint32(buf, si.id)
	}

	if si.manualSerialize {
		ptr := addressable(val)
		if err := ptr.Interface().(SerializableTL).Serialize(buf); err != nil {
			buf.Truncate(bufStart)
			return fmt.Errorf("failed to serialize %s using manual method: %w", si.name, err)
		}
		return nil
	}

	if err := serializeFields(buf, val, si); err != nil {
		buf.Truncate(bufStart)
		return fmt.Errorf("failed to serialize %s: %w", si.name, err)
	}
	return nil
}

func addressable(val reflect.Value) reflect.Value {
	if val.CanAddr() {
		return val.Addr()
	}
	ptr := reflect.New(val.Type())
	ptr.Elem().Set(val)
	return ptr
}

func serializeFields(buf *bytes.Buffer, val reflect.Value, si *structInfo) error {
	// flags are calculated from presence of optional fields
	flags := map[int]uint32{}
	for i, f := range si.fields {
		if f.typ.kind == kindFlags {
			flags[i] = uint32(val.Field(f.index).Convert(reflect.TypeOf(uint32(0))).Uint())
		}
	}
	for _, f := range si.fields {
		if f.hasFlag && !val.Field(f.index).IsZero() {
			flags[f.flagsField] |= 1 << f.flagBit
		}
	}

	for i, f := range si.fields {
		fv := val.Field(f.index)

		if f.typ.kind == kindFlags {
			writeUint32(buf, flags[i])
			continue
		}

		if f.hasFlag {
			if flags[f.flagsField]&(1<<f.flagBit) == 0 {
				continue
			}
			if f.typ.kind == kindTrue {
				continue
			}
		}

		if err := serializeField(buf, fv, f.typ); err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
	}
	return nil
}

func serializeField(buf *bytes.Buffer, fv reflect.Value, typ *fieldType) error {
	switch typ.kind {
	case kindInt:
		writeUint32(buf, uint32(intOf(fv)))
	case kindLong:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(intOf(fv)))
		buf.Write(b[:])
	case kindInt128, kindInt256:
		size := 16
		if typ.kind == kindInt256 {
			size = 32
		}
		data := make([]byte, size)
		if fv.Kind() == reflect.Array {
			reflect.Copy(reflect.ValueOf(data), fv)
		} else {
			if fv.Len() != 0 && fv.Len() != size {
				return fmt.Errorf("invalid len %d of int%d value", fv.Len(), size*8)
			}
			copy(data, fv.Bytes())
		}
		buf.Write(data)
	case kindDouble:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(fv.Float()))
		buf.Write(b[:])
	case kindBytes, kindString:
		var data []byte
		if fv.Kind() == reflect.String {
			data = []byte(fv.String())
		} else {
			data = fv.Bytes()
		}
		if err := ToBytesToBuffer(buf, data); err != nil {
			return err
		}
	case kindBool:
		if fv.Bool() {
			writeUint32(buf, BoolTrueID)
		} else {
			writeUint32(buf, BoolFalseID)
		}
	case kindVector, kindBareVector:
		if typ.kind == kindVector {
			writeUint32(buf, VectorID)
		}
		writeUint32(buf, uint32(fv.Len()))
		for i := 0; i < fv.Len(); i++ {
			if err := serializeField(buf, fv.Index(i), typ.elem); err != nil {
				return fmt.Errorf("vector element %d: %w", i, err)
			}
		}
	case kindStruct:
		return serializeValue(buf, fv, typ.boxed)
	default:
		return fmt.Errorf("unknown field kind %d", typ.kind)
	}
	return nil
}

func intOf(fv reflect.Value) int64 {
	switch fv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(fv.Uint())
	default:
		return fv.Int()
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
