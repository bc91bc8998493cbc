package bencode

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
)

type encoder struct {
	Writer io.Writer
}

func (e *encoder) encode(v interface{}) error {
	if v == nil {
		return nil
	}
	return e.encodeValue(reflect.ValueOf(v))
}

func (e *encoder) writeString(s string) error {
	if _, err := io.WriteString(e.Writer, strconv.Itoa(len(s))); err != nil {
		return err
	}
	if _, err := io.WriteString(e.Writer, ":"); err != nil {
		return err
	}
	_, err := io.WriteString(e.Writer, s)
	return err
}

func (e *encoder) writeBytes(b []byte) error {
	if _, err := io.WriteString(e.Writer, strconv.Itoa(len(b))); err != nil {
		return err
	}
	if _, err := io.WriteString(e.Writer, ":"); err != nil {
		return err
	}
	_, err := e.Writer.Write(b)
	return err
}

func (e *encoder) writeInt(i int64) error {
	_, err := io.WriteString(e.Writer, "i"+strconv.FormatInt(i, 10)+"e")
	return err
}

func (e *encoder) writeUint(i uint64) error {
	_, err := io.WriteString(e.Writer, "i"+strconv.FormatUint(i, 10)+"e")
	return err
}

func (e *encoder) encodeValue(v reflect.Value) error {
	if !v.IsValid() {
		return e.writeBytes(nil)
	}

	t := v.Type()

	if t.Implements(marshalerType) {
		b, err := v.Interface().(Marshaler).MarshalBencode()
		if err != nil {
			return &MarshalerError{Type: t, Err: err}
		}
		_, err = e.Writer.Write(b)
		return err
	}
	if t.Kind() != reflect.Ptr && reflect.PtrTo(t).Implements(marshalerType) {
		pv := reflect.New(t)
		pv.Elem().Set(v)
		b, err := pv.Interface().(Marshaler).MarshalBencode()
		if err != nil {
			return &MarshalerError{Type: t, Err: err}
		}
		_, err = e.Writer.Write(b)
		return err
	}

	switch t.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return e.writeBytes(nil)
		}
		return e.encodeValue(v.Elem())
	case reflect.String:
		return e.writeString(v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.writeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.writeUint(v.Uint())
	case reflect.Bool:
		if v.Bool() {
			return e.writeInt(1)
		}
		return e.writeInt(0)
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			if t.Kind() == reflect.Slice {
				return e.writeBytes(v.Bytes())
			}
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return e.writeBytes(b)
		}
		return e.encodeList(v)
	case reflect.Map:
		return e.encodeMap(v)
	case reflect.Struct:
		return e.encodeStruct(v)
	default:
		return &MarshalTypeError{Type: t}
	}
}

func (e *encoder) encodeList(v reflect.Value) error {
	if _, err := io.WriteString(e.Writer, "l"); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := e.encodeValue(v.Index(i)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(e.Writer, "e")
	return err
}

func (e *encoder) encodeMap(v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return &MarshalTypeError{Type: v.Type()}
	}
	if _, err := io.WriteString(e.Writer, "d"); err != nil {
		return err
	}
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		if err := e.writeString(k.String()); err != nil {
			return err
		}
		if err := e.encodeValue(v.MapIndex(k)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(e.Writer, "e")
	return err
}

type structField struct {
	key       string
	index     int
	omitempty bool
}

func structFields(t reflect.Type) []structField {
	fields := make([]structField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" && !sf.Anonymous {
			continue
		}
		tag := sf.Tag.Get("bencode")
		key := sf.Name
		omitempty := false
		if tag == "-" {
			continue
		}
		if tag != "" {
			parts := splitTag(tag)
			if parts[0] != "" {
				key = parts[0]
			} else {
				key = lowerFirst(sf.Name)
			}
			for _, p := range parts[1:] {
				if p == "omitempty" {
					omitempty = true
				}
			}
		} else {
			key = lowerFirst(sf.Name)
		}
		fields = append(fields, structField{key: key, index: i, omitempty: omitempty})
	}
	return fields
}

func splitTag(tag string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			parts = append(parts, tag[start:i])
			start = i + 1
		}
	}
	parts = append(parts, tag[start:])
	return parts
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

func (e *encoder) encodeStruct(v reflect.Value) error {
	if _, err := io.WriteString(e.Writer, "d"); err != nil {
		return err
	}
	fields := structFields(v.Type())
	type kv struct {
		key string
		val reflect.Value
	}
	kvs := make([]kv, 0, len(fields))
	for _, f := range fields {
		fv := v.Field(f.index)
		if f.omitempty && isEmptyValue(fv) {
			continue
		}
		kvs = append(kvs, kv{key: f.key, val: fv})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].key < kvs[j].key })
	for _, e2 := range kvs {
		if err := e.writeString(e2.key); err != nil {
			return err
		}
		if err := e.encodeValue(e2.val); err != nil {
			return err
		}
	}
	_, err := io.WriteString(e.Writer, "e")
	return err
}

func MustMarshal(v interface{}) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("bencode: MustMarshal failed: %v", err))
	}
	return b
}
