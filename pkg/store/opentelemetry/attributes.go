package opentelemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cfahlgren1/observers/pkg/record"
)

// Attributes converts the event fields of rec into span attributes. Empty
// values are skipped; maps are flattened into dotted keys. Records with
// input messages also carry them as a string slice under "messages".
func Attributes(rec record.Record) []attribute.KeyValue {
	values := rec.Values()

	var attrs []attribute.KeyValue
	for _, field := range rec.EventFields() {
		attrs = append(attrs, toAttributes(field, values[field])...)
	}

	if messages, ok := values["messages"].([]record.Message); ok {
		attrs = append(attrs, attribute.StringSlice("messages", lo.Map(messages, func(m record.Message, _ int) string {
			b, _ := json.Marshal(m)
			return string(b)
		})))
	}
	return attrs
}

func toAttributes(key string, v any) []attribute.KeyValue {
	if record.IsEmpty(v) {
		return nil
	}

	switch val := v.(type) {
	case map[string]any:
		return Flatten(key, val)
	case string:
		return []attribute.KeyValue{attribute.String(key, val)}
	case bool:
		return []attribute.KeyValue{attribute.Bool(key, val)}
	case int:
		if val == 0 {
			return nil
		}
		return []attribute.KeyValue{attribute.Int(key, val)}
	case int64:
		if val == 0 {
			return nil
		}
		return []attribute.KeyValue{attribute.Int64(key, val)}
	case float64:
		return []attribute.KeyValue{attribute.Float64(key, val)}
	case time.Time:
		return []attribute.KeyValue{attribute.String(key, val.Format(time.RFC3339Nano))}
	case []string:
		return []attribute.KeyValue{attribute.StringSlice(key, val)}
	case json.RawMessage:
		return []attribute.KeyValue{attribute.String(key, string(val))}
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return []attribute.KeyValue{attribute.String(key, fmt.Sprint(val))}
		}
		return []attribute.KeyValue{attribute.String(key, string(b))}
	}
}

// Flatten turns a nested map into attributes with dotted keys under prefix,
// in key order.
func Flatten(prefix string, m map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var attrs []attribute.KeyValue
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		attrs = append(attrs, toAttributes(key, m[k])...)
	}
	return attrs
}
