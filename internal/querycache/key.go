package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Normalize maps a parameter value onto its canonical form:
//   - strings are lower-cased and trimmed
//   - sequences become a sorted, duplicate-free []string of normalized
//     elements; elements are split on commas and empties are dropped
//   - nil (and nil pointers) stay nil
//   - anything else is returned unchanged
func Normalize(value any) any {
	if value == nil {
		return nil
	}
	if s, ok := value.(string); ok {
		return normalizeString(s)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		return normalizeSequence(rv)
	default:
		return value
	}
}

// NormalizeList normalizes a multi-valued parameter given either as a single
// delimited string or a sequence. The result is sorted and duplicate-free.
func NormalizeList(value any) []string {
	if s, ok := value.(string); ok {
		value = []string{s}
	}
	out, _ := Normalize(value).([]string)
	return out
}

func normalizeString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeSequence(rv reflect.Value) []string {
	seen := make(map[string]struct{}, rv.Len())
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		for _, part := range strings.Split(fmt.Sprint(rv.Index(i).Interface()), ",") {
			v := normalizeString(part)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

type keyParam struct {
	Name  string `json:"n"`
	Value any    `json:"v"`
}

// MakeKey derives a cache key from named parameters. Values are normalized,
// ordered by parameter name, serialized as JSON and hashed with SHA-256, so
// parameter sets that differ only in case, whitespace or element order map to
// the same key.
func MakeKey(params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]keyParam, len(names))
	for i, name := range names {
		items[i] = keyParam{Name: name, Value: Normalize(params[name])}
	}
	data, err := json.Marshal(items)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", items))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
