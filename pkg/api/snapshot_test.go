package api

import (
	"testing"
)

func TestValueEqual(t *testing.T) {
	a := Object(map[string]Value{
		"personal_info": Object(map[string]Value{
			"full_name": String("Maria"),
			"age":       Number(34),
			"active":    Bool(true),
		}),
		"specialties": Array(String("icu"), String("pediatrics")),
		"notes":       Null(),
	})

	if !a.Equal(a.Clone()) {
		t.Fatal("value not equal to its clone")
	}

	cases := []struct {
		name  string
		other Value
	}{
		{"different scalar", Object(map[string]Value{
			"personal_info": Object(map[string]Value{
				"full_name": String("Ana"),
				"age":       Number(34),
				"active":    Bool(true),
			}),
			"specialties": Array(String("icu"), String("pediatrics")),
			"notes":       Null(),
		})},
		{"missing field", Object(map[string]Value{
			"specialties": Array(String("icu"), String("pediatrics")),
			"notes":       Null(),
		})},
		{"different array length", Object(map[string]Value{
			"personal_info": Object(map[string]Value{
				"full_name": String("Maria"),
				"age":       Number(34),
				"active":    Bool(true),
			}),
			"specialties": Array(String("icu")),
			"notes":       Null(),
		})},
		{"different kind", String("nope")},
		{"null", Null()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if a.Equal(tc.other) {
				t.Errorf("values compared equal: %+v vs %+v", a, tc.other)
			}
		})
	}
}

func TestValueCloneIsDeep(t *testing.T) {
	original := Object(map[string]Value{
		"qualifications": Array(
			Object(map[string]Value{"course": String("Nursing")}),
		),
	})
	clone := original.Clone()

	// Mutating the clone leaves the original untouched.
	clone.Fields["qualifications"].Items[0].Fields["course"] = String("Radiology")

	quals, _ := original.Field("qualifications")
	if quals.Items[0].StringField("course") != "Nursing" {
		t.Fatal("clone shares structure with the original")
	}
}

func TestValueFieldAccessors(t *testing.T) {
	v := Object(map[string]Value{
		"full_name": String("Maria"),
		"age":       Number(34),
	})

	if got := v.StringField("full_name"); got != "Maria" {
		t.Errorf("StringField = %q", got)
	}
	// Absent fields and non-string scalars read as "".
	if got := v.StringField("missing"); got != "" {
		t.Errorf("StringField on missing field = %q", got)
	}
	if got := v.StringField("age"); got != "" {
		t.Errorf("StringField on number = %q", got)
	}

	if _, ok := v.Field("age"); !ok {
		t.Error("Field did not find age")
	}
	// Field on a non-object never finds anything.
	if _, ok := String("x").Field("anything"); ok {
		t.Error("Field on scalar reported a hit")
	}

	if !Null().IsNull() {
		t.Error("Null value is not null")
	}
	if Object(nil).IsNull() {
		t.Error("empty object reported as null")
	}
}
