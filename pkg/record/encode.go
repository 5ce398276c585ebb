package record

import (
	"encoding/json"
	"reflect"
	"time"
)

// IsEmpty reports whether v carries no data: nil, a zero scalar, an empty
// string, slice or map, or a "null" JSON document.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case json.RawMessage:
		return len(val) == 0 || string(val) == "null"
	case string:
		return val == ""
	case *time.Time:
		return val == nil
	case time.Time:
		return val.IsZero()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return rv.IsNil() || rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// EncodeJSON returns the JSON text of v, or nil when v is empty. The result is
// suitable as a nullable SQL argument.
func EncodeJSON(v any) (*string, error) {
	if IsEmpty(v) {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		s := string(raw)
		return &s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// Contains reports whether name is one of fields.
func Contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
