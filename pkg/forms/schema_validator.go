package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseSchema decodes a JSON schema document and validates its structure.
// Every violation is reported with its path, e.g. sections[2].fields[0].type.
func ParseSchema(raw []byte) (Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Schema{}, FieldErrors{{Kind: ErrSchemaStructureInvalid, Message: fmt.Sprintf("malformed JSON: %v", err)}}
	}
	if dec.More() {
		return Schema{}, FieldErrors{{Kind: ErrSchemaStructureInvalid, Message: "trailing data after schema document"}}
	}
	return ParseSchemaDocument(doc)
}

// ParseSchemaDocument validates an already decoded document (from JSON or
// YAML) and converts it into a Schema. Nothing is corrected: the document is
// either accepted as authored or rejected with all violations.
func ParseSchemaDocument(doc any) (Schema, error) {
	var errs FieldErrors
	var schema Schema

	root, ok := doc.(map[string]any)
	if !ok {
		errs.add(ErrSchemaStructureInvalid, "", "schema must be an object")
		return Schema{}, errs
	}

	if v, present := root["version"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			errs.add(ErrSchemaStructureInvalid, "version", "must be a string")
		}
		schema.Version = s
	}

	rawSections, present := root["sections"]
	sections, isList := rawSections.([]any)
	switch {
	case !present || rawSections == nil:
		errs.add(ErrSchemaStructureInvalid, "sections", "is required")
	case !isList:
		errs.add(ErrSchemaStructureInvalid, "sections", "must be an array")
	case len(sections) == 0:
		errs.add(ErrSchemaStructureInvalid, "sections", "at least one section is required")
	}

	for i, rs := range sections {
		path := fmt.Sprintf("sections[%d]", i)
		schema.Sections = append(schema.Sections, parseSection(rs, path, &errs))
	}

	if len(errs) > 0 {
		return Schema{}, errs
	}
	if err := checkUniqueNames(schema); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

func parseSection(raw any, path string, errs *FieldErrors) Section {
	var sec Section
	obj, ok := raw.(map[string]any)
	if !ok {
		errs.add(ErrSchemaStructureInvalid, path, "section must be an object")
		return sec
	}

	title, ok := obj["title"].(string)
	if !ok {
		errs.add(ErrSchemaStructureInvalid, path+".title", "must be a string")
	}
	sec.Title = title

	rawFields, present := obj["fields"]
	fields, isList := rawFields.([]any)
	switch {
	case !present || rawFields == nil:
		errs.add(ErrSchemaStructureInvalid, path+".fields", "is required")
	case !isList:
		errs.add(ErrSchemaStructureInvalid, path+".fields", "must be an array")
	}

	sec.Fields = make([]Field, 0, len(fields))
	for j, rf := range fields {
		sec.Fields = append(sec.Fields, parseField(rf, fmt.Sprintf("%s.fields[%d]", path, j), errs))
	}
	return sec
}

func parseField(raw any, path string, errs *FieldErrors) Field {
	var f Field
	obj, ok := raw.(map[string]any)
	if !ok {
		errs.add(ErrSchemaStructureInvalid, path, "field must be an object")
		return f
	}

	f.Name = nonEmptyString(obj, "name", path, errs)
	f.Label = nonEmptyString(obj, "label", path, errs)

	typeName, ok := obj["type"].(string)
	switch {
	case !ok:
		errs.add(ErrSchemaStructureInvalid, path+".type", "must be a string")
	case !FieldType(typeName).Valid():
		errs.add(ErrSchemaStructureInvalid, path+".type", "unknown field type %q", typeName)
	}
	f.Type = FieldType(typeName)

	required, ok := obj["required"].(bool)
	if !ok {
		errs.add(ErrSchemaStructureInvalid, path+".required", "must be a boolean")
	}
	f.Required = required

	if rawOpts, present := obj["options"]; present && rawOpts != nil {
		opts, isList := rawOpts.([]any)
		if !isList {
			errs.add(ErrSchemaStructureInvalid, path+".options", "must be an array of strings")
			return f
		}
		f.Options = make([]string, 0, len(opts))
		for k, o := range opts {
			s, ok := o.(string)
			if !ok {
				errs.add(ErrSchemaStructureInvalid, fmt.Sprintf("%s.options[%d]", path, k), "must be a string")
				continue
			}
			f.Options = append(f.Options, s)
		}
	}
	return f
}

func nonEmptyString(obj map[string]any, key, path string, errs *FieldErrors) string {
	s, ok := obj[key].(string)
	if !ok || s == "" {
		errs.add(ErrSchemaStructureInvalid, path+"."+key, "must be a non-empty string")
	}
	return s
}

// ValidateSchema applies the structural rules to an already typed schema.
func ValidateSchema(s Schema) error {
	var errs FieldErrors
	if len(s.Sections) == 0 {
		errs.add(ErrSchemaStructureInvalid, "sections", "at least one section is required")
	}
	for i, sec := range s.Sections {
		for j, f := range sec.Fields {
			path := fmt.Sprintf("sections[%d].fields[%d]", i, j)
			if f.Name == "" {
				errs.add(ErrSchemaStructureInvalid, path+".name", "must be a non-empty string")
			}
			if f.Label == "" {
				errs.add(ErrSchemaStructureInvalid, path+".label", "must be a non-empty string")
			}
			if !f.Type.Valid() {
				errs.add(ErrSchemaStructureInvalid, path+".type", "unknown field type %q", f.Type)
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return checkUniqueNames(s)
}

// checkUniqueNames rejects field names declared more than once anywhere in
// the schema, since response data is keyed by name alone.
func checkUniqueNames(s Schema) error {
	var errs FieldErrors
	first := make(map[string]string)
	for i, sec := range s.Sections {
		for j, f := range sec.Fields {
			path := fmt.Sprintf("sections[%d].fields[%d].name", i, j)
			if prev, seen := first[f.Name]; seen {
				errs.add(ErrSchemaStructureInvalid, path, "duplicate field name %q (first declared at %s)", f.Name, prev)
				continue
			}
			first[f.Name] = path
		}
	}
	return errs.orNil()
}
