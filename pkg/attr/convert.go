package attr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Member is one name/value pair of an Object.
type Member struct {
	Name  string
	Value any
}

// Object is a JSON object that keeps member order when marshaled.
type Object struct {
	Members []Member
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Members)
}

// Get returns the value of the first member named name.
func (o *Object) Get(name string) (any, bool) {
	if o == nil {
		return nil, false
	}
	for _, m := range o.Members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o.Members {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Convert turns an attribute value into a JSON-ready value.
//
// The result is one of string, json.Number, bool, nil, []any or *Object. Binary
// data is rendered as standard base64. Numbers that float64 cannot hold exactly
// are rendered as strings. Sets become arrays in iteration order.
func Convert(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case String:
		return string(t)
	case Number:
		return convertNumber(string(t))
	case Binary:
		return base64.StdEncoding.EncodeToString(t)
	case Bool:
		return bool(t)
	case Null:
		return nil
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Convert(item)
		}
		return out
	case Map:
		return ConvertMap(t)
	case StringSet:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case NumberSet:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = convertNumber(n)
		}
		return out
	case BinarySet:
		out := make([]any, len(t))
		for i, b := range t {
			out[i] = base64.StdEncoding.EncodeToString(b)
		}
		return out
	default:
		panic(fmt.Sprintf("attr: unknown value type %T", v))
	}
}

// ConvertMap converts every member of m, keeping member order.
func ConvertMap(m Map) *Object {
	out := &Object{Members: make([]Member, 0, len(m))}
	for _, f := range m {
		out.Members = append(out.Members, Member{Name: f.Name, Value: Convert(f.Value)})
	}
	return out
}

var jsonNumberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

func convertNumber(text string) any {
	text = strings.TrimSpace(text)
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return text
	}

	exact, ok := new(big.Rat).SetString(text)
	if !ok {
		return text
	}
	shortest := strconv.FormatFloat(f, 'g', -1, 64)
	held, ok := new(big.Rat).SetString(shortest)
	if !ok || exact.Cmp(held) != 0 {
		return text
	}

	if jsonNumberPattern.MatchString(text) {
		return json.Number(text)
	}
	return json.Number(shortest)
}

// KeyString renders a key attribute as document id text.
//
// Key attributes are S, N or B in practice; the remaining kinds fall back to their
// JSON rendering so the result is still deterministic.
func KeyString(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case String:
		return string(t)
	case Number:
		return strings.TrimSpace(string(t))
	case Binary:
		return base64.StdEncoding.EncodeToString(t)
	case Bool:
		return strconv.FormatBool(bool(t))
	case Null:
		return "null"
	default:
		b, err := json.Marshal(Convert(v))
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
