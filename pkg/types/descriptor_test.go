package types

import (
	"testing"
)

func TestCanonicalizeSortsFieldsRecursively(t *testing.T) {
	d := ObjectDescriptor(
		Field{Name: "zeta", Type: ObjectDescriptor(
			Field{Name: "b", Type: ScalarDescriptor(ScalarString)},
			Field{Name: "a", Type: ScalarDescriptor(ScalarInteger)},
		)},
		Field{Name: "alpha", Type: ScalarDescriptor(ScalarBoolean)},
	)

	c := d.Canonicalize()

	if c.Fields[0].Name != "alpha" || c.Fields[1].Name != "zeta" {
		t.Fatalf("top-level fields not sorted: %q, %q", c.Fields[0].Name, c.Fields[1].Name)
	}
	nested := c.Fields[1].Type
	if nested.Fields[0].Name != "a" || nested.Fields[1].Name != "b" {
		t.Fatalf("nested fields not sorted: %q, %q", nested.Fields[0].Name, nested.Fields[1].Name)
	}

	// Original untouched.
	if d.Fields[0].Name != "zeta" {
		t.Error("Canonicalize mutated the receiver")
	}
}

func TestSignatureHashStableUnderFieldOrder(t *testing.T) {
	a := ObjectDescriptor(
		Field{Name: "city", Type: ScalarDescriptor(ScalarString)},
		Field{Name: "count", Type: ScalarDescriptor(ScalarInteger)},
	)
	b := ObjectDescriptor(
		Field{Name: "count", Type: ScalarDescriptor(ScalarInteger)},
		Field{Name: "city", Type: ScalarDescriptor(ScalarString)},
	)
	ret := ListDescriptor(ScalarDescriptor(ScalarString))

	h1 := SignatureHash("recommend_cities", a, ret)
	h2 := SignatureHash("recommend_cities", b, ret)
	if h1 != h2 {
		t.Errorf("hash differs for reordered fields:\n%s\n%s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestSignatureHashCoversFunctionName(t *testing.T) {
	in := ObjectDescriptor(Field{Name: "q", Type: ScalarDescriptor(ScalarString)})
	ret := ScalarDescriptor(ScalarString)

	if SignatureHash("fn_a", in, ret) == SignatureHash("fn_b", in, ret) {
		t.Error("identical shapes under different names should hash differently")
	}
}

func TestSignatureHashChangesWithShape(t *testing.T) {
	in := ObjectDescriptor(Field{Name: "q", Type: ScalarDescriptor(ScalarString)})
	h1 := SignatureHash("fn", in, ScalarDescriptor(ScalarString))
	h2 := SignatureHash("fn", in, ListDescriptor(ScalarDescriptor(ScalarString)))
	if h1 == h2 {
		t.Error("changed return shape should change the hash")
	}
}

func TestDescriptorOf(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  TypeDescriptor
	}{
		{"string", "hello", ScalarDescriptor(ScalarString)},
		{"bool", true, ScalarDescriptor(ScalarBoolean)},
		{"int", 42, ScalarDescriptor(ScalarInteger)},
		{"float", 3.14, ScalarDescriptor(ScalarNumber)},
		{"nil", nil, ScalarDescriptor(ScalarNull)},
		{"empty list", []any{}, ListDescriptor(ScalarDescriptor(ScalarAny))},
		{"string list", []any{"a", "b"}, ListDescriptor(ScalarDescriptor(ScalarString))},
		{
			"object",
			map[string]any{"name": "x", "age": 3},
			ObjectDescriptor(
				Field{Name: "age", Type: ScalarDescriptor(ScalarInteger)},
				Field{Name: "name", Type: ScalarDescriptor(ScalarString)},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DescriptorOf(tt.value)
			if !got.Equal(tt.want) {
				t.Errorf("DescriptorOf(%v) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestDescriptorOfObjectFieldsSorted(t *testing.T) {
	d := DescriptorOf(map[string]any{"zz": 1, "aa": "x", "mm": true})
	names := []string{d.Fields[0].Name, d.Fields[1].Name, d.Fields[2].Name}
	if names[0] != "aa" || names[1] != "mm" || names[2] != "zz" {
		t.Errorf("inferred fields not sorted: %v", names)
	}
}

func TestConforms(t *testing.T) {
	cityList := ListDescriptor(ScalarDescriptor(ScalarString))
	person := ObjectDescriptor(
		Field{Name: "age", Type: ScalarDescriptor(ScalarInteger)},
		Field{Name: "name", Type: ScalarDescriptor(ScalarString)},
	)

	tests := []struct {
		name  string
		desc  TypeDescriptor
		value any
		want  bool
	}{
		{"string ok", ScalarDescriptor(ScalarString), "x", true},
		{"string vs int", ScalarDescriptor(ScalarString), 3, false},
		{"any accepts anything", ScalarDescriptor(ScalarAny), map[string]any{"k": 1}, true},
		{"integer accepts whole float", ScalarDescriptor(ScalarInteger), float64(7), true},
		{"integer rejects fraction", ScalarDescriptor(ScalarInteger), 7.5, false},
		{"number accepts int", ScalarDescriptor(ScalarNumber), 7, true},
		{"null accepts nil", ScalarDescriptor(ScalarNull), nil, true},
		{"list ok", cityList, []any{"Mumbai", "Dubai"}, true},
		{"empty list ok", cityList, []any{}, true},
		{"list bad element", cityList, []any{"Mumbai", 5}, false},
		{"list vs scalar", cityList, "Mumbai", false},
		{"object ok", person, map[string]any{"name": "Ada", "age": 36}, true},
		{"object missing field", person, map[string]any{"name": "Ada"}, false},
		{"object extra field", person, map[string]any{"name": "Ada", "age": 36, "city": "London"}, false},
		{"object bad field type", person, map[string]any{"name": "Ada", "age": "old"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.Conforms(tt.value); got != tt.want {
				t.Errorf("Conforms(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	stringList := ListDescriptor(ScalarDescriptor(ScalarString))
	intList := ListDescriptor(ScalarDescriptor(ScalarInteger))
	openList := ListDescriptor(ScalarDescriptor(ScalarAny))
	person := ObjectDescriptor(
		Field{Name: "age", Type: ScalarDescriptor(ScalarInteger)},
		Field{Name: "name", Type: ScalarDescriptor(ScalarString)},
	)
	personWithOpenTags := ObjectDescriptor(
		Field{Name: "age", Type: ScalarDescriptor(ScalarInteger)},
		Field{Name: "name", Type: ScalarDescriptor(ScalarString)},
		Field{Name: "tags", Type: openList},
	)
	personWithTags := ObjectDescriptor(
		Field{Name: "age", Type: ScalarDescriptor(ScalarInteger)},
		Field{Name: "name", Type: ScalarDescriptor(ScalarString)},
		Field{Name: "tags", Type: stringList},
	)

	tests := []struct {
		name string
		a, b TypeDescriptor
		want bool
	}{
		{"equal scalars", ScalarDescriptor(ScalarString), ScalarDescriptor(ScalarString), true},
		{"different scalars", ScalarDescriptor(ScalarString), ScalarDescriptor(ScalarInteger), false},
		{"kind mismatch", stringList, ScalarDescriptor(ScalarString), false},
		{"equal lists", stringList, stringList, true},
		{"different concrete elements", stringList, intList, false},
		{"open matches concrete", openList, stringList, true},
		{"concrete matches open", stringList, openList, true},
		{"open matches open", openList, openList, true},
		{"equal objects", person, person, true},
		{"object field set differs", person, personWithTags, false},
		{"open list inside object field", personWithOpenTags, personWithTags, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Matches(tt.b); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
			if got := tt.b.Matches(tt.a); got != tt.want {
				t.Errorf("Matches reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescriptorOfRoundTripsConforms(t *testing.T) {
	value := map[string]any{
		"query":   "best cities",
		"limit":   3,
		"results": []any{"Mumbai", "Dubai", "London"},
	}
	if !DescriptorOf(value).Conforms(value) {
		t.Error("a value must conform to its own inferred descriptor")
	}
}
