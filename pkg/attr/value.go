// Package attr models DynamoDB attribute values as a closed sum type and converts
// them into JSON documents for the search index.
package attr

// Value is a single type-tagged attribute value.
//
// The set of implementations is closed: String, Number, Binary, Bool, Null, List,
// Map, StringSet, NumberSet and BinarySet. Each concrete type carries exactly one
// tag, so an instance can never be "both a string and a number".
type Value interface {
	isValue()
}

// String is an S attribute.
type String string

// Number is an N attribute, kept as the decimal text DynamoDB delivered.
type Number string

// Binary is a B attribute.
type Binary []byte

// Bool is a BOOL attribute.
type Bool bool

// Null is a NULL attribute.
type Null struct{}

// List is an L attribute.
type List []Value

// StringSet is an SS attribute.
type StringSet []string

// NumberSet is an NS attribute.
type NumberSet []string

// BinarySet is a BS attribute.
type BinarySet [][]byte

// Field is one named member of a Map.
type Field struct {
	Name  string
	Value Value
}

// Map is an M attribute (and the shape of record keys and images).
//
// Members keep the order in which the producer delivered them.
type Map []Field

func (String) isValue()    {}
func (Number) isValue()    {}
func (Binary) isValue()    {}
func (Bool) isValue()      {}
func (Null) isValue()      {}
func (List) isValue()      {}
func (Map) isValue()       {}
func (StringSet) isValue() {}
func (NumberSet) isValue() {}
func (BinarySet) isValue() {}

// Len returns the number of members.
func (m Map) Len() int {
	return len(m)
}

// Get returns the first member named name.
func (m Map) Get(name string) (Value, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns member names in order.
func (m Map) Names() []string {
	out := make([]string, 0, len(m))
	for _, f := range m {
		out = append(out, f.Name)
	}
	return out
}

// With returns a copy of m with name set to v, appended when absent.
func (m Map) With(name string, v Value) Map {
	out := make(Map, 0, len(m)+1)
	replaced := false
	for _, f := range m {
		if f.Name == name && !replaced {
			out = append(out, Field{Name: name, Value: v})
			replaced = true
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, Field{Name: name, Value: v})
	}
	return out
}
