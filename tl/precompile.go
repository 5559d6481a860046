package tl

import (
	"reflect"
	"strconv"
	"strings"
)

const (
	kindInt = iota
	kindLong
	kindInt128
	kindInt256
	kindDouble
	kindBytes
	kindString
	kindBool
	kindTrue
	kindFlags
	kindVector
	kindBareVector
	kindStruct
)

type fieldType struct {
	kind  int
	boxed bool
	elem  *fieldType
}

type fieldInfo struct {
	index      int
	name       string
	typ        *fieldType
	hasFlag    bool
	flagBit    uint32
	flagsField int
	parentType reflect.Type
}

func (f *fieldInfo) String() string {
	return f.name + " of type " + f.parentType.String()
}

func compileField(parent reflect.Type, f reflect.StructField, tags []string, lastFlags int) *fieldInfo {
	if f.Anonymous {
		panic("anonymous fields are not allowed in TL structs")
	}

	info := &fieldInfo{
		index:      f.Index[0],
		name:       f.Name,
		parentType: parent,
		flagsField: -1,
	}

	if strings.HasPrefix(tags[0], "?") {
		if lastFlags < 0 {
			panic("optional field " + info.String() + " is declared before flags field")
		}

		bit, err := strconv.Atoi(tags[0][1:])
		if err != nil {
			panic("invalid flag bit in tag, should be number")
		}
		if bit < 0 || bit > 31 {
			panic("invalid flag bit in tag, should be >= 0 && < 32")
		}

		info.hasFlag = true
		info.flagBit = uint32(bit)
		info.flagsField = lastFlags
		tags = tags[1:]
	}

	typ, rest := compileType(tags)
	if len(rest) > 0 {
		panic("unexpected tags " + strings.Join(rest, " ") + " for field " + info.String())
	}
	if typ.kind == kindTrue && !info.hasFlag {
		panic("true type can only be used with flag, field " + info.String())
	}
	if typ.kind == kindFlags && info.hasFlag {
		panic("flags field cannot be optional, field " + info.String())
	}

	checkKind(typ, f.Type, info)
	info.typ = typ

	return info
}

func compileType(tags []string) (*fieldType, []string) {
	if len(tags) == 0 {
		panic("type is not defined in tag")
	}

	switch tags[0] {
	case "int":
		return &fieldType{kind: kindInt}, tags[1:]
	case "long":
		return &fieldType{kind: kindLong}, tags[1:]
	case "int128":
		return &fieldType{kind: kindInt128}, tags[1:]
	case "int256":
		return &fieldType{kind: kindInt256}, tags[1:]
	case "double":
		return &fieldType{kind: kindDouble}, tags[1:]
	case "bytes":
		return &fieldType{kind: kindBytes}, tags[1:]
	case "string":
		return &fieldType{kind: kindString}, tags[1:]
	case "bool":
		return &fieldType{kind: kindBool}, tags[1:]
	case "true":
		return &fieldType{kind: kindTrue}, tags[1:]
	case "flags":
		return &fieldType{kind: kindFlags}, tags[1:]
	case "vector", "bare_vector":
		kind := kindVector
		if tags[0] == "bare_vector" {
			kind = kindBareVector
		}
		elem, rest := compileType(tags[1:])
		return &fieldType{kind: kind, elem: elem}, rest
	case "struct":
		if len(tags) > 1 && tags[1] == "boxed" {
			return &fieldType{kind: kindStruct, boxed: true}, tags[2:]
		}
		return &fieldType{kind: kindStruct}, tags[1:]
	}

	panic("unknown tl type " + tags[0])
}

func checkKind(typ *fieldType, t reflect.Type, info *fieldInfo) {
	bad := func() {
		panic("field " + info.String() + " has unsupported go type " + t.String() + " for its tl tag")
	}

	switch typ.kind {
	case kindInt, kindLong:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			bad()
		}
	case kindFlags:
		if t.Kind() != reflect.Uint32 && t.Kind() != reflect.Int32 {
			bad()
		}
	case kindInt128, kindInt256:
		size := 16
		if typ.kind == kindInt256 {
			size = 32
		}
		if t.Kind() == reflect.Array && t.Elem().Kind() == reflect.Uint8 && t.Len() == size {
			return
		}
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return
		}
		bad()
	case kindDouble:
		if t.Kind() != reflect.Float64 {
			bad()
		}
	case kindBytes, kindString:
		if t.Kind() == reflect.String {
			return
		}
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return
		}
		bad()
	case kindBool, kindTrue:
		if t.Kind() != reflect.Bool {
			bad()
		}
	case kindVector, kindBareVector:
		if t.Kind() != reflect.Slice {
			bad()
		}
		checkKind(typ.elem, t.Elem(), info)
	case kindStruct:
		if t == rawType {
			return
		}
		switch t.Kind() {
		case reflect.Struct:
		case reflect.Pointer:
			if t.Elem().Kind() != reflect.Struct {
				bad()
			}
		case reflect.Interface:
			if !typ.boxed {
				panic("interface field " + info.String() + " should be boxed")
			}
		default:
			bad()
		}
	}
}
