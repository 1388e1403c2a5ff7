package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"road-report-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Diff compares old against the keys present in update and returns the fields
// whose canonical values differ, sorted by field name. Keys missing from
// update are not considered; a key present with a nil value is a change to null.
func Diff(old, update map[string]interface{}) []domain.FieldChange {
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changes := []domain.FieldChange{}
	for _, k := range keys {
		before := Canonical(old[k])
		after := Canonical(update[k])
		if equalCanonical(before, after) {
			continue
		}
		changes = append(changes, domain.FieldChange{Field: k, OldValue: before, NewValue: after})
	}
	return changes
}

// Canonical renders v as the string stored in the audit log, or nil for null.
// Numbers of any representation normalise through decimal so 1, 1.0 and "1"
// from a JSON number compare equal. JSON strings are unquoted, so the string
// "5" and the number 5 render the same and a change of JSON type alone is
// not a difference.
func Canonical(v interface{}) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case *string:
		if t == nil {
			return nil
		}
		return Canonical(*t)
	case bool:
		return strPtr(strconv.FormatBool(t))
	case int:
		return strPtr(strconv.FormatInt(int64(t), 10))
	case int32:
		return strPtr(strconv.FormatInt(int64(t), 10))
	case int64:
		return strPtr(strconv.FormatInt(t, 10))
	case float32:
		return strPtr(decimal.NewFromFloat32(t).String())
	case float64:
		return strPtr(decimal.NewFromFloat(t).String())
	case decimal.Decimal:
		return strPtr(t.String())
	case *decimal.Decimal:
		if t == nil {
			return nil
		}
		return strPtr(t.String())
	case json.Number:
		return canonicalNumber(string(t))
	case json.RawMessage:
		return canonicalRaw(t)
	case time.Time:
		return strPtr(t.UTC().Format(time.RFC3339Nano))
	case *time.Time:
		if t == nil {
			return nil
		}
		return Canonical(*t)
	case fmt.Stringer:
		return strPtr(t.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Canonical(rv.Elem().Interface())
	case reflect.String:
		return strPtr(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strPtr(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strPtr(strconv.FormatUint(rv.Uint(), 10))
	}

	b, err := json.Marshal(v)
	if err != nil {
		return strPtr(fmt.Sprintf("%v", v))
	}
	return canonicalRaw(b)
}

func canonicalRaw(raw []byte) *string {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s
		}
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		return canonicalNumber(string(raw))
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strPtr(string(raw))
	}
	return strPtr(buf.String())
}

func canonicalNumber(s string) *string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return &s
	}
	return strPtr(d.String())
}

func equalCanonical(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func strPtr(s string) *string {
	return &s
}
