package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// DescriptorKind tags the variant of a TypeDescriptor.
type DescriptorKind string

const (
	// KindScalar describes a single primitive value.
	KindScalar DescriptorKind = "scalar"

	// KindObject describes a named-field composite value.
	KindObject DescriptorKind = "object"

	// KindList describes a homogeneous sequence of values.
	KindList DescriptorKind = "list"
)

// ScalarKind refines KindScalar descriptors.
type ScalarKind string

const (
	ScalarString  ScalarKind = "string"
	ScalarInteger ScalarKind = "integer"
	ScalarNumber  ScalarKind = "number"
	ScalarBoolean ScalarKind = "boolean"
	ScalarNull    ScalarKind = "null"

	// ScalarAny is the open descriptor: it conforms to every value.
	// Produced when a shape cannot be determined at capture time.
	ScalarAny ScalarKind = "any"
)

// TypeDescriptor is a tagged variant describing the shape of a captured
// value: Scalar(kind), Object(ordered fields), or List(element).
//
// Two descriptors are equal iff their tagged structure is recursively
// equal. Object field order is significant for hashing, so descriptors
// must be passed through Canonicalize before computing a content hash.
type TypeDescriptor struct {
	Kind    DescriptorKind  `json:"kind"`
	Scalar  ScalarKind      `json:"scalar,omitempty"`
	Fields  []Field         `json:"fields,omitempty"`
	Element *TypeDescriptor `json:"element,omitempty"`
}

// Field is a single named entry of an object descriptor.
type Field struct {
	Name string         `json:"name"`
	Type TypeDescriptor `json:"type"`
}

// ScalarDescriptor returns a descriptor for a primitive kind.
func ScalarDescriptor(kind ScalarKind) TypeDescriptor {
	return TypeDescriptor{Kind: KindScalar, Scalar: kind}
}

// ObjectDescriptor returns a descriptor with the given fields.
// Field order is preserved as given; call Canonicalize before hashing.
func ObjectDescriptor(fields ...Field) TypeDescriptor {
	return TypeDescriptor{Kind: KindObject, Fields: fields}
}

// ListDescriptor returns a descriptor for a list of element values.
func ListDescriptor(element TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: KindList, Element: &element}
}

// Canonicalize returns a deep copy of the descriptor in canonical form:
// object fields sorted by name at every nesting level. The receiver is
// not modified.
func (d TypeDescriptor) Canonicalize() TypeDescriptor {
	out := TypeDescriptor{Kind: d.Kind, Scalar: d.Scalar}

	if d.Kind == KindObject {
		out.Fields = make([]Field, len(d.Fields))
		for i, f := range d.Fields {
			out.Fields[i] = Field{Name: f.Name, Type: f.Type.Canonicalize()}
		}
		sort.Slice(out.Fields, func(i, j int) bool {
			return out.Fields[i].Name < out.Fields[j].Name
		})
	}

	if d.Element != nil {
		elem := d.Element.Canonicalize()
		out.Element = &elem
	}

	return out
}

// Equal reports whether two descriptors have recursively equal tagged
// structure. Object field order is significant; canonicalize both sides
// first for order-insensitive comparison.
func (d TypeDescriptor) Equal(other TypeDescriptor) bool {
	if d.Kind != other.Kind || d.Scalar != other.Scalar {
		return false
	}

	if len(d.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range d.Fields {
		if f.Name != other.Fields[i].Name || !f.Type.Equal(other.Fields[i].Type) {
			return false
		}
	}

	if (d.Element == nil) != (other.Element == nil) {
		return false
	}
	if d.Element != nil && !d.Element.Equal(*other.Element) {
		return false
	}

	return true
}

// Matches reports whether two canonical descriptors describe the same
// shape, treating an open "any" list element as matching any element
// type. An empty list observed at capture time infers an open element,
// which must not read as a different shape than the established one.
func (d TypeDescriptor) Matches(other TypeDescriptor) bool {
	if d.Kind != other.Kind {
		return false
	}

	switch d.Kind {
	case KindScalar:
		return d.Scalar == other.Scalar

	case KindObject:
		if len(d.Fields) != len(other.Fields) {
			return false
		}
		for i, f := range d.Fields {
			if f.Name != other.Fields[i].Name || !f.Type.Matches(other.Fields[i].Type) {
				return false
			}
		}
		return true

	case KindList:
		if d.Element == nil || other.Element == nil {
			return true
		}
		if isOpenElement(*d.Element) || isOpenElement(*other.Element) {
			return true
		}
		return d.Element.Matches(*other.Element)
	}

	return false
}

func isOpenElement(d TypeDescriptor) bool {
	return d.Kind == KindScalar && d.Scalar == ScalarAny
}

// signatureHashPayload fixes the field order of the hashed document.
// encoding/json emits struct fields in declaration order, which makes the
// serialization deterministic without sorting map keys.
type signatureHashPayload struct {
	FunctionName string         `json:"function_name"`
	Input        TypeDescriptor `json:"input"`
	Output       TypeDescriptor `json:"output"`
}

// SignatureHash computes the deterministic SHA-256 content hash of a
// function's canonical signature. The hash covers the function name plus
// the canonicalized input and return descriptors, so two functions with
// identical shapes still hash differently.
func SignatureHash(functionName string, input, output TypeDescriptor) string {
	payload := signatureHashPayload{
		FunctionName: functionName,
		Input:        input.Canonicalize(),
		Output:       output.Canonicalize(),
	}

	// Marshal cannot fail: the payload contains no channels, funcs, or cycles.
	data, _ := json.Marshal(payload)
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// DescriptorOf infers a TypeDescriptor from a concrete decoded value.
// It recognizes the JSON value domain (map[string]any, []any, string,
// bool, float64, nil) plus common Go integer types supplied directly by
// instrumentation code. Unrecognized types map to the open "any" scalar.
//
// Empty lists infer an "any" element since no element is available to
// inspect; non-empty lists infer the element shape from the first entry.
func DescriptorOf(value any) TypeDescriptor {
	switch v := value.(type) {
	case nil:
		return ScalarDescriptor(ScalarNull)
	case string:
		return ScalarDescriptor(ScalarString)
	case bool:
		return ScalarDescriptor(ScalarBoolean)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ScalarDescriptor(ScalarInteger)
	case float32, float64:
		return ScalarDescriptor(ScalarNumber)
	case map[string]any:
		fields := make([]Field, 0, len(v))
		for name, fv := range v {
			fields = append(fields, Field{Name: name, Type: DescriptorOf(fv)})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		return TypeDescriptor{Kind: KindObject, Fields: fields}
	case []any:
		if len(v) == 0 {
			return ListDescriptor(ScalarDescriptor(ScalarAny))
		}
		return ListDescriptor(DescriptorOf(v[0]))
	default:
		return ScalarDescriptor(ScalarAny)
	}
}

// Conforms reports whether a concrete value structurally matches the
// descriptor. Object values must carry every declared field and no
// undeclared ones; list elements are checked individually. The "any"
// scalar accepts every value, and "number" accepts integers since JSON
// decoding does not distinguish them.
func (d TypeDescriptor) Conforms(value any) bool {
	switch d.Kind {
	case KindScalar:
		return scalarConforms(d.Scalar, value)

	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return false
		}
		if len(obj) != len(d.Fields) {
			return false
		}
		for _, f := range d.Fields {
			fv, present := obj[f.Name]
			if !present || !f.Type.Conforms(fv) {
				return false
			}
		}
		return true

	case KindList:
		list, ok := value.([]any)
		if !ok {
			return false
		}
		if d.Element == nil {
			return true
		}
		for _, item := range list {
			if !d.Element.Conforms(item) {
				return false
			}
		}
		return true
	}

	return false
}

func scalarConforms(kind ScalarKind, value any) bool {
	switch kind {
	case ScalarAny:
		return true
	case ScalarNull:
		return value == nil
	case ScalarString:
		_, ok := value.(string)
		return ok
	case ScalarBoolean:
		_, ok := value.(bool)
		return ok
	case ScalarInteger:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		case float32:
			return v == float32(int64(v))
		}
		return false
	case ScalarNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	}
	return false
}
