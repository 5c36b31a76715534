package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ContactTimeLayout is the dd.mm.yyyy HH:MM:SS format of contact timestamps.
const ContactTimeLayout = "02.01.2006 15:04:05"

const (
	FieldID        = "ID"
	FieldName      = "Name"
	FieldSurname   = "Surname"
	FieldAge       = "Age"
	FieldMember1ID = "Member1_ID"
	FieldMember2ID = "Member2_ID"
	FieldFrom      = "From"
	FieldTo        = "To"
)

// Field is one key/value column of a record, in output order.
type Field struct {
	Key   string
	Value any
}

// Person is a row of a persons dataset. Extra keeps every source field the
// matching code does not interpret.
type Person struct {
	ID      string
	Name    string
	Surname string
	Age     int
	Extra   map[string]any

	src *layout
}

// layout records how a decoded record looked in its source. It is never
// modified after decoding, so clones share it.
type layout struct {
	keys []string
	// id is set when the ID was a JSON number.
	id json.Number
	// age is set when the Age was a JSON string.
	age string
}

// Fields lists the columns in source order for decoded records, and known
// columns then Extra sorted by key otherwise. Extra keys added after decoding
// come last, sorted. ID and Age keep their source JSON type while unchanged.
func (p Person) Fields() []Field {
	var id, age any = p.ID, p.Age
	if p.src != nil {
		if p.src.id != "" && p.src.id.String() == p.ID {
			id = p.src.id
		}
		if p.src.age != "" {
			if n, err := ParseAge(p.src.age); err == nil && n == p.Age {
				age = p.src.age
			}
		}
	}
	known := []Field{
		{FieldID, id},
		{FieldName, p.Name},
		{FieldSurname, p.Surname},
		{FieldAge, age},
	}
	return orderedFields(p.src, known, p.Extra)
}

// Clone returns a deep copy of p.
func (p Person) Clone() Person {
	p.Extra = cloneMap(p.Extra)
	return p
}

func (p Person) MarshalJSON() ([]byte, error) {
	return marshalFields(p.Fields())
}

func (p *Person) UnmarshalJSON(data []byte) error {
	raw, keys, err := decodeObject(data)
	if err != nil {
		return err
	}
	out := Person{src: &layout{keys: keys}}
	if n, ok := raw[FieldID].(json.Number); ok {
		out.src.id = n
	}
	if s, ok := raw[FieldAge].(string); ok {
		out.src.age = s
	}
	if out.ID, err = takeString(raw, FieldID); err != nil {
		return err
	}
	if out.Name, err = takeString(raw, FieldName); err != nil {
		return err
	}
	if out.Surname, err = takeString(raw, FieldSurname); err != nil {
		return err
	}
	if out.Age, err = takeInt(raw, FieldAge); err != nil {
		return err
	}
	if len(raw) > 0 {
		out.Extra = raw
	}
	*p = out
	return nil
}

// Contact is a call-detail record between two persons.
type Contact struct {
	Member1ID string
	Member2ID string
	From      time.Time
	To        time.Time
	Extra     map[string]any

	src *layout
}

func (c Contact) Duration() time.Duration {
	return c.To.Sub(c.From)
}

func (c Contact) Fields() []Field {
	known := []Field{
		{FieldMember1ID, c.Member1ID},
		{FieldMember2ID, c.Member2ID},
		{FieldFrom, c.From.Format(ContactTimeLayout)},
		{FieldTo, c.To.Format(ContactTimeLayout)},
	}
	return orderedFields(c.src, known, c.Extra)
}

func (c Contact) MarshalJSON() ([]byte, error) {
	return marshalFields(c.Fields())
}

func (c *Contact) UnmarshalJSON(data []byte) error {
	raw, keys, err := decodeObject(data)
	if err != nil {
		return err
	}
	out := Contact{src: &layout{keys: keys}}
	if out.Member1ID, err = takeString(raw, FieldMember1ID); err != nil {
		return err
	}
	if out.Member2ID, err = takeString(raw, FieldMember2ID); err != nil {
		return err
	}
	if out.From, err = takeTime(raw, FieldFrom); err != nil {
		return err
	}
	if out.To, err = takeTime(raw, FieldTo); err != nil {
		return err
	}
	if len(raw) > 0 {
		out.Extra = raw
	}
	*c = out
	return nil
}

// NamesakePair is serialized as a two-element array: the later entry first.
type NamesakePair struct {
	Person   Person
	Namesake Person
}

func (n NamesakePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Person{n.Person, n.Namesake})
}

type AgeGroupRatio struct {
	AgeGroup    int     `json:"Age_group"`
	AvgContacts float64 `json:"Avg_contacts_per_age_group"`
}

// ParseAge converts a string-encoded age, tolerating surrounding spaces.
func ParseAge(s string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &MalformedInputError{Index: -1, Field: FieldAge, Value: s, Err: err}
	}
	return age, nil
}

// ParseContactTime parses a dd.mm.yyyy HH:MM:SS timestamp as UTC.
func ParseContactTime(field, s string) (time.Time, error) {
	t, err := time.Parse(ContactTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &MalformedInputError{Index: -1, Field: field, Value: s, Err: err}
	}
	return t, nil
}

// decodeObject reads one JSON object, keeping numbers as json.Number and
// returning the keys in source order.
func decodeObject(data []byte) (map[string]any, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, &MalformedInputError{Index: -1, Err: err}
	}
	if tok == nil {
		return nil, nil, &MalformedInputError{Index: -1, Err: fmt.Errorf("record is null")}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, &MalformedInputError{Index: -1, Err: fmt.Errorf("record is not an object")}
	}

	raw := map[string]any{}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, &MalformedInputError{Index: -1, Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, &MalformedInputError{Index: -1, Err: fmt.Errorf("unexpected token %v", tok)}
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, &MalformedInputError{Index: -1, Field: key, Err: err}
		}
		if _, dup := raw[key]; !dup {
			keys = append(keys, key)
		}
		raw[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, &MalformedInputError{Index: -1, Err: err}
	}
	return raw, keys, nil
}

// takeString removes key from raw and returns it as a string. Numbers are
// accepted and kept in their literal form.
func takeString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", &MalformedInputError{Index: -1, Field: key, Err: errMissingField}
	}
	delete(raw, key)
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", &MalformedInputError{Index: -1, Field: key, Value: fmt.Sprint(v), Err: fmt.Errorf("unexpected type %T", v)}
	}
}

func takeInt(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, &MalformedInputError{Index: -1, Field: key, Err: errMissingField}
	}
	delete(raw, key)
	switch t := v.(type) {
	case string:
		return ParseAge(t)
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return 0, &MalformedInputError{Index: -1, Field: key, Value: t.String(), Err: err}
		}
		return n, nil
	default:
		return 0, &MalformedInputError{Index: -1, Field: key, Value: fmt.Sprint(v), Err: fmt.Errorf("unexpected type %T", v)}
	}
}

func takeTime(raw map[string]any, key string) (time.Time, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return time.Time{}, &MalformedInputError{Index: -1, Field: key, Err: errMissingField}
	}
	delete(raw, key)
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &MalformedInputError{Index: -1, Field: key, Value: fmt.Sprint(v), Err: fmt.Errorf("unexpected type %T", v)}
	}
	return ParseContactTime(key, s)
}

func extraFields(extra map[string]any) []Field {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, Field{k, extra[k]})
	}
	return out
}

// orderedFields places known and extra fields in the source key order of src.
// Fields the source did not have follow: known ones first, then extras sorted.
func orderedFields(src *layout, known []Field, extra map[string]any) []Field {
	if src == nil {
		return append(known, extraFields(extra)...)
	}
	byKey := make(map[string]any, len(known))
	for _, f := range known {
		byKey[f.Key] = f.Value
	}
	out := make([]Field, 0, len(known)+len(extra))
	placed := make(map[string]bool, len(src.keys))
	for _, k := range src.keys {
		if v, ok := byKey[k]; ok {
			out = append(out, Field{k, v})
			placed[k] = true
		} else if v, ok := extra[k]; ok {
			out = append(out, Field{k, v})
			placed[k] = true
		}
	}
	for _, f := range known {
		if !placed[f.Key] {
			out = append(out, f)
		}
	}
	rest := map[string]any{}
	for k, v := range extra {
		if !placed[k] {
			rest[k] = v
		}
	}
	return append(out, extraFields(rest)...)
}

func marshalFields(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
