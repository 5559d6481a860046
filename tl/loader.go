package tl

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"reflect"
	"strings"
)

type Serializable interface{}

// Raw is an already serialized object, it is written and read as is.
type Raw []byte

type ParseableTL interface {
	Parse(data []byte) ([]byte, error)
}

type SerializableTL interface {
	Serialize(buf *bytes.Buffer) error
}

type TL interface {
	ParseableTL
	SerializableTL
}

const (
	VectorID    uint32 = 0x1cb5c415
	BoolTrueID  uint32 = 0x997275b5
	BoolFalseID uint32 = 0xbc799737
)

var _SchemaByID = map[uint32]*structInfo{}
var _SchemaByType = map[reflect.Type]*structInfo{}
var _SchemaByName = map[string]*structInfo{}

var Logger = func(a ...any) {}

var DefaultSerializeBufferSize = 256

var rawType = reflect.TypeOf(Raw{})

type structInfo struct {
	id              uint32
	name            string
	tp              reflect.Type
	fields          []*fieldInfo
	manualSerialize bool
	manualParse     bool
}

// Register - binds go struct to TL combinator. Schema looks like
// "pong#347773c5 msg_id:long ping_id:long = Pong", when id is not specified
// it is calculated as crc32 of the schema. Must be called from init.
func Register(typ any, schema string) uint32 {
	t := reflect.TypeOf(typ)
	if t.Kind() != reflect.Struct {
		panic("tl type kind should be a struct, not a pointer or something else")
	}

	if _, ok := _SchemaByType[t]; ok {
		panic(fmt.Errorf("tl object has already been registered with type %s", t.String()))
	}

	name := strings.SplitN(strings.TrimSpace(schema), " ", 2)[0]
	nameParts := strings.SplitN(name, "#", 2)

	var id uint32
	if len(nameParts) > 1 {
		idHex := nameParts[1]
		if len(idHex) < 8 {
			idHex = strings.Repeat("0", 8-len(idHex)) + idHex
		}
		b, err := hex.DecodeString(idHex)
		if err != nil || len(b) != 4 {
			panic("invalid predefined id for " + name)
		}
		id = binary.BigEndian.Uint32(b)
	} else {
		id = CRC(schema)
	}

	si := &structInfo{
		id:   id,
		name: nameParts[0],
		tp:   t,
	}

	ptr := reflect.PointerTo(t)
	si.manualSerialize = ptr.Implements(reflect.TypeOf((*SerializableTL)(nil)).Elem())
	si.manualParse = ptr.Implements(reflect.TypeOf((*ParseableTL)(nil)).Elem())

	if !si.manualSerialize || !si.manualParse {
		lastFlags := -1
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)

			tag := strings.TrimSpace(f.Tag.Get("tl"))
			if len(tag) == 0 {
				panic("every TL struct field must have `tl` tag, if you want to skip field use tag `-`, type " + t.String())
			}
			if tag == "-" {
				continue
			}

			fi := compileField(t, f, strings.Fields(tag), lastFlags)
			if fi.typ.kind == kindFlags {
				lastFlags = len(si.fields)
			}
			si.fields = append(si.fields, fi)
		}
	}

	if prev, ok := _SchemaByID[id]; ok {
		Logger("TL constructor id conflict: " + t.String() + " and " + prev.tp.String() + " (" + si.name + ")")
	}

	_SchemaByID[id] = si
	_SchemaByType[t] = si
	_SchemaByName[si.name] = si

	Logger("TL Registered:", fmt.Sprintf("%08x", id), schema)
	return id
}

var ieeeTable = crc32.MakeTable(crc32.IEEE)

func CRC(schema string) uint32 {
	schema = strings.ReplaceAll(schema, "(", "")
	schema = strings.ReplaceAll(schema, ")", "")
	return crc32.Checksum([]byte(schema), ieeeTable)
}

// IDOf - returns constructor id of registered value
func IDOf(v any) (uint32, bool) {
	t := reflect.TypeOf(v)
	if t == nil {
		return 0, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	si, ok := _SchemaByType[t]
	if !ok {
		return 0, false
	}
	return si.id, true
}

// NameOf - returns TL name of registered value, or go type name if it is unknown
func NameOf(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if si, ok := _SchemaByType[t]; ok {
		return si.name
	}
	return t.String()
}

// NameByID - returns registered TL name for constructor id
func NameByID(id uint32) (string, bool) {
	si, ok := _SchemaByID[id]
	if !ok {
		return "", false
	}
	return si.name, true
}

// PeekID - reads constructor id from the beginning of boxed object
func PeekID(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("not enough bytes to read constructor id")
	}
	return binary.LittleEndian.Uint32(data), nil
}
