package attr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-lambda-go/events"
)

var (
	// ErrMalformedAttribute is returned when a DynamoDB JSON attribute does not carry
	// exactly one type tag.
	ErrMalformedAttribute = errors.New("attr: malformed attribute value")

	// ErrUnsupportedType is returned for a type tag this package does not know.
	ErrUnsupportedType = errors.New("attr: unsupported attribute type")
)

// UnmarshalJSON decodes DynamoDB JSON (`{"name":{"S":"x"}}`) keeping member order.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object", ErrMalformedAttribute)
	}

	out := Map{}
	for dec.More() {
		nameTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := nameTok.(string)
		if !ok {
			return fmt.Errorf("%w: expected member name", ErrMalformedAttribute)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("attr: member %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalJSON encodes m as DynamoDB JSON, keeping member order.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeMembers(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseValue decodes one DynamoDB JSON attribute such as `{"N":"1"}`.
func ParseValue(data []byte) (Value, error) {
	return decodeValue(data)
}

// EncodeValue renders one attribute as DynamoDB JSON.
func EncodeValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue(data []byte) (Value, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAttribute, err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("%w: %d type tags", ErrMalformedAttribute, len(tagged))
	}

	for tag, body := range tagged {
		switch tag {
		case "M":
			var inner Map
			if err := inner.UnmarshalJSON(body); err != nil {
				return nil, err
			}
			if inner == nil {
				inner = Map{}
			}
			return inner, nil
		case "L":
			var items []json.RawMessage
			if err := json.Unmarshal(body, &items); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedAttribute, err)
			}
			out := make(List, 0, len(items))
			for i, item := range items {
				v, err := decodeValue(item)
				if err != nil {
					return nil, fmt.Errorf("attr: list item %d: %w", i, err)
				}
				out = append(out, v)
			}
			return out, nil
		case "S", "N", "B", "BOOL", "NULL", "SS", "NS", "BS":
			var av events.DynamoDBAttributeValue
			if err := av.UnmarshalJSON(data); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedAttribute, err)
			}
			return FromLambda(av)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, tag)
		}
	}
	return nil, ErrMalformedAttribute
}

// FromLambda converts an aws-lambda-go attribute value.
//
// Go maps carry no member order, so nested maps are ordered by member name.
func FromLambda(av events.DynamoDBAttributeValue) (Value, error) {
	switch av.DataType() {
	case events.DataTypeString:
		return String(av.String()), nil
	case events.DataTypeNumber:
		return Number(av.Number()), nil
	case events.DataTypeBinary:
		return Binary(av.Binary()), nil
	case events.DataTypeBoolean:
		return Bool(av.Boolean()), nil
	case events.DataTypeNull:
		return Null{}, nil
	case events.DataTypeList:
		items := av.List()
		out := make(List, 0, len(items))
		for i, item := range items {
			v, err := FromLambda(item)
			if err != nil {
				return nil, fmt.Errorf("attr: list item %d: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case events.DataTypeMap:
		return MapFromLambda(av.Map())
	case events.DataTypeStringSet:
		return StringSet(append([]string(nil), av.StringSet()...)), nil
	case events.DataTypeNumberSet:
		return NumberSet(append([]string(nil), av.NumberSet()...)), nil
	case events.DataTypeBinarySet:
		return BinarySet(append([][]byte(nil), av.BinarySet()...)), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, av.DataType())
	}
}

// MapFromLambda converts an aws-lambda-go attribute map, ordering members by name.
func MapFromLambda(in map[string]events.DynamoDBAttributeValue) (Map, error) {
	if in == nil {
		return nil, nil
	}
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Map, 0, len(in))
	for _, name := range names {
		v, err := FromLambda(in[name])
		if err != nil {
			return nil, fmt.Errorf("attr: member %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Value: v})
	}
	return out, nil
}

func encodeMembers(buf *bytes.Buffer, m Map) error {
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if err := encodeValue(buf, f.Value); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	writeTagged := func(tag string, body any) error {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		fmt.Fprintf(buf, `{%q:`, tag)
		buf.Write(b)
		buf.WriteByte('}')
		return nil
	}

	switch t := v.(type) {
	case String:
		return writeTagged("S", string(t))
	case Number:
		return writeTagged("N", string(t))
	case Binary:
		return writeTagged("B", base64.StdEncoding.EncodeToString(t))
	case Bool:
		return writeTagged("BOOL", bool(t))
	case nil, Null:
		return writeTagged("NULL", true)
	case StringSet:
		return writeTagged("SS", []string(t))
	case NumberSet:
		return writeTagged("NS", []string(t))
	case BinarySet:
		encoded := make([]string, len(t))
		for i, b := range t {
			encoded[i] = base64.StdEncoding.EncodeToString(b)
		}
		return writeTagged("BS", encoded)
	case List:
		buf.WriteString(`{"L":[`)
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString(`]}`)
		return nil
	case Map:
		buf.WriteString(`{"M":`)
		if err := encodeMembers(buf, t); err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}
