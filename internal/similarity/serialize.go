// Package similarity computes bounded similarity scores between captured
// values: embedding-based cosine similarity for scalars and objects, and
// optimal one-to-one matching for list-valued outputs.
package similarity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Serialize flattens a structured value into a deterministic
// embedding-ready text form. Object fields are emitted in sorted key
// order so that two structurally equal values always serialize
// identically, which keeps the embedding cache effective.
func Serialize(value any) string {
	var b strings.Builder
	writeValue(&b, value)
	return b.String()
}

func writeValue(b *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(v)
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case float64:
		// Whole floats print without a trailing ".0" so JSON-decoded
		// integers serialize the same as native ints.
		if v == float64(int64(v)) {
			b.WriteString(strconv.FormatInt(int64(v), 10))
			return
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case float32:
		writeValue(b, float64(v))
	case int:
		b.WriteString(strconv.Itoa(v))
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			writeValue(b, v[k])
		}
	case []any:
		b.WriteString("[")
		for i, item := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, item)
		}
		b.WriteString("]")
	default:
		fmt.Fprintf(b, "%v", v)
	}
}
