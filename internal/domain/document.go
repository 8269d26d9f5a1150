package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AsDocument returns v as a bson.M when it is any kind of string-keyed map
func AsDocument(v interface{}) (bson.M, bool) {
	switch val := v.(type) {
	case bson.M:
		return val, val != nil
	case map[string]interface{}:
		return bson.M(val), val != nil
	case bson.D:
		return dToM(val), true
	}
	return nil, false
}

func dToM(d bson.D) bson.M {
	m := make(bson.M, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}
	return m
}

// AsArray returns v as a slice when it is any kind of array
func AsArray(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case bson.A:
		return []interface{}(val), true
	case []interface{}:
		return val, true
	case []bson.M:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = val[i]
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = bson.M(val[i])
		}
		return out, true
	}
	return nil, false
}

// Lookup resolves a dotted path inside a document
func Lookup(doc bson.M, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := AsDocument(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringValue converts scalar ids to strings. ObjectIDs become hex.
func StringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case primitive.ObjectID:
		return val.Hex()
	case int, int32, int64, float64:
		f, _ := NumberValue(val)
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// FirstString returns the first non-empty string among the given paths
func FirstString(doc bson.M, paths ...string) string {
	for _, p := range paths {
		if v, ok := Lookup(doc, p); ok {
			if s := StringValue(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// FirstValue returns the first present, non-nil value among the given paths
// together with the path it came from
func FirstValue(doc bson.M, paths ...string) (interface{}, string, bool) {
	for _, p := range paths {
		if v, ok := Lookup(doc, p); ok && v != nil {
			return v, p, true
		}
	}
	return nil, "", false
}

// NumberValue converts BSON numeric types to float64. NaN and infinities
// are rejected.
func NumberValue(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case float32:
		f = float64(val)
	case float64:
		f = val
	case primitive.Decimal128:
		parsed, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// TimeValue converts BSON dates and RFC 3339 strings to time.Time
func TimeValue(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case primitive.DateTime:
		return val.Time(), true
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// CloneDocument makes a deep copy of maps and arrays
func CloneDocument(doc bson.M) bson.M {
	if doc == nil {
		return nil
	}
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	if m, ok := AsDocument(v); ok {
		return CloneDocument(m)
	}
	if arr, ok := AsArray(v); ok {
		out := make(bson.A, len(arr))
		for i := range arr {
			out[i] = cloneValue(arr[i])
		}
		return out
	}
	return v
}
