package forms

import (
	"encoding/json"
	"net/mail"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind string

const (
	KindEmpty     ValueKind = "empty"
	KindText      ValueKind = "text"
	KindNumber    ValueKind = "number"
	KindBoolean   ValueKind = "boolean"
	KindDate      ValueKind = "date"
	KindReference ValueKind = "reference"
	KindList      ValueKind = "list"
)

// Value is a response value checked against its field's declared type.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
	List   []string
}

const (
	dateLayout          = "2006-01-02"
	datetimeLocalLayout = "2006-01-02T15:04"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{3,}[0-9]$`)

// JSON returns the canonical form persisted in response data.
func (v Value) JSON() any {
	switch v.Kind {
	case KindText, KindDate, KindReference:
		return v.Text
	case KindNumber:
		return v.Number
	case KindBoolean:
		return v.Bool
	case KindList:
		return v.List
	}
	return nil
}

// CoerceValue checks raw against f's type and returns the tagged value.
// Empty input (nil, blank string, empty list) yields KindEmpty for any type.
func CoerceValue(f Field, raw any) (Value, error) {
	if isEmptyValue(raw) {
		return Value{Kind: KindEmpty}, nil
	}

	invalid := func(format string, args ...any) (Value, error) {
		var errs FieldErrors
		errs.add(ErrFieldValueInvalid, f.Name, format, args...)
		return Value{}, errs[0]
	}

	switch f.Type {
	case FieldTypeText, FieldTypeTextarea:
		s, ok := raw.(string)
		if !ok {
			return invalid("expected a string")
		}
		return Value{Kind: KindText, Text: s}, nil

	case FieldTypeNumber:
		n, ok := toNumber(raw)
		if !ok {
			return invalid("expected a number")
		}
		return Value{Kind: KindNumber, Number: n}, nil

	case FieldTypeEmail:
		s, ok := raw.(string)
		if !ok {
			return invalid("expected an email address")
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != strings.TrimSpace(s) {
			return invalid("%q is not a valid email address", s)
		}
		return Value{Kind: KindText, Text: addr.Address}, nil

	case FieldTypePhone:
		s, ok := raw.(string)
		if !ok || !phonePattern.MatchString(strings.TrimSpace(s)) {
			return invalid("expected a phone number")
		}
		return Value{Kind: KindText, Text: strings.TrimSpace(s)}, nil

	case FieldTypeDate:
		s, ok := raw.(string)
		if !ok {
			return invalid("expected a date (YYYY-MM-DD)")
		}
		if _, err := time.Parse(dateLayout, s); err != nil {
			return invalid("%q is not a date (YYYY-MM-DD)", s)
		}
		return Value{Kind: KindDate, Text: s}, nil

	case FieldTypeDatetime:
		s, ok := raw.(string)
		if !ok {
			return invalid("expected a date-time")
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			if _, err := time.Parse(datetimeLocalLayout, s); err != nil {
				return invalid("%q is not a date-time", s)
			}
		}
		return Value{Kind: KindDate, Text: s}, nil

	case FieldTypeSelect, FieldTypeRadio:
		s, ok := raw.(string)
		if !ok {
			return invalid("expected one option")
		}
		if len(f.Options) > 0 && !slices.Contains(f.Options, s) {
			return invalid("%q is not one of the options", s)
		}
		return Value{Kind: KindText, Text: s}, nil

	case FieldTypeCheckbox:
		if b, ok := raw.(bool); ok {
			return Value{Kind: KindBoolean, Bool: b}, nil
		}
		if len(f.Options) == 0 {
			return invalid("expected a boolean")
		}
		list, ok := toStringList(raw)
		if !ok {
			return invalid("expected a list of options")
		}
		for _, item := range list {
			if !slices.Contains(f.Options, item) {
				return invalid("%q is not one of the options", item)
			}
		}
		return Value{Kind: KindList, List: list}, nil

	case FieldTypeFile:
		s, ok := raw.(string)
		if !ok {
			return invalid("expected a file reference")
		}
		return Value{Kind: KindReference, Text: s}, nil

	case FieldTypeSignature:
		return invalid("signature fields are captured as signatures, not response values")
	}
	return invalid("unsupported field type %q", f.Type)
}

// CheckResponseData validates data against schema. Unknown keys and invalid
// values are always rejected; missing required values only when submitting.
// The returned map holds the canonical value for every key of data.
func CheckResponseData(schema Schema, data map[string]any, submitting bool) (map[string]any, error) {
	index, dups := schema.fieldIndex()

	var errs FieldErrors
	for _, name := range dups {
		errs.add(ErrSchemaStructureInvalid, name, "field name is declared more than once in the schema")
	}
	if len(errs) > 0 {
		errs.sortByField()
		return nil, errs
	}

	for key := range data {
		if _, ok := index[key]; !ok {
			errs.add(ErrSchemaMismatch, key, "field is not declared in the form schema")
		}
	}
	if len(errs) > 0 {
		errs.sortByField()
		return nil, errs
	}

	out := make(map[string]any, len(data))
	for key, raw := range data {
		v, err := CoerceValue(index[key], raw)
		if err != nil {
			errs = append(errs, err.(*FieldError))
			continue
		}
		out[key] = v.JSON()
	}
	if len(errs) > 0 {
		errs.sortByField()
		return nil, errs
	}

	if submitting {
		for _, f := range schema.Fields() {
			if !f.Required || f.Type == FieldTypeSignature {
				continue
			}
			if isEmptyValue(out[f.Name]) {
				errs.add(ErrRequiredFieldMissing, f.Name, "a value is required before submitting")
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// isEmptyValue reports absence. A boolean false counts as a value.
func isEmptyValue(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

func toNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	}
	return 0, false
}

func toStringList(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// FormatCell renders a stored response value as a flat export cell.
func FormatCell(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []string:
		return strings.Join(v, "; ")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatCell(item)
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + FormatCell(v[k])
		}
		return strings.Join(parts, "; ")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}
