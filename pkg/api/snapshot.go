package api

// ValueKind discriminates the node types of a snapshot value tree.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindScalar
	KindObject
	KindArray
)

// Value is a recursively-defined snapshot node: an object, an array, a
// scalar, or null. Snapshots of professional data are modelled as plain
// value trees rather than typed structs so that the diff calculator can walk
// two snapshots structurally without reflection.
//
// Scalars are normalized to string, float64, or bool.
type Value struct {
	Kind   ValueKind
	Scalar any
	Fields map[string]Value
	Items  []Value
}

// Null returns the null value.
func Null() Value {
	return Value{Kind: KindNull}
}

// String returns a string scalar.
func String(s string) Value {
	return Value{Kind: KindScalar, Scalar: s}
}

// Number returns a numeric scalar.
func Number(f float64) Value {
	return Value{Kind: KindScalar, Scalar: f}
}

// Bool returns a boolean scalar.
func Bool(b bool) Value {
	return Value{Kind: KindScalar, Scalar: b}
}

// Object returns an object value with the given fields. The map is used as
// provided; callers must not mutate it afterwards.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindObject, Fields: fields}
}

// Array returns an array value.
func Array(items ...Value) Value {
	return Value{Kind: KindArray, Items: items}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Field returns the named field of an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	f, ok := v.Fields[name]
	return f, ok
}

// StringField returns the named field as a string scalar, or "" when the
// field is absent or not a string.
func (v Value) StringField(name string) string {
	f, ok := v.Field(name)
	if !ok || f.Kind != KindScalar {
		return ""
	}
	s, _ := f.Scalar.(string)
	return s
}

// Equal reports deep structural equality.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindScalar:
		return v.Scalar == o.Scalar
	case KindObject:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for k, f := range v.Fields {
			of, ok := o.Fields[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindObject:
		fields := make(map[string]Value, len(v.Fields))
		for k, f := range v.Fields {
			fields[k] = f.Clone()
		}
		return Value{Kind: KindObject, Fields: fields}
	case KindArray:
		items := make([]Value, len(v.Items))
		for i := range v.Items {
			items[i] = v.Items[i].Clone()
		}
		return Value{Kind: KindArray, Items: items}
	default:
		return v
	}
}

// Snapshot section names. A snapshot is an object whose top-level fields are
// drawn from this set; deployments may enable a subset (see engine
// configuration), and applying a version that carries a disabled section
// fails with ErrFeatureNotSupported.
const (
	SectionPersonalInfo   = "personal_info"
	SectionQualifications = "qualifications"
	SectionSpecialties    = "specialties"
	SectionEducations     = "educations"
	SectionCompanies      = "companies"
	SectionBankAccounts   = "bank_accounts"
)

// DefaultSections returns every supported snapshot section.
func DefaultSections() []string {
	return []string{
		SectionPersonalInfo,
		SectionQualifications,
		SectionSpecialties,
		SectionEducations,
		SectionCompanies,
		SectionBankAccounts,
	}
}
