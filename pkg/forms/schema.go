package forms

// Schema is the versioned, ordered definition of what a form collects.
// Section and field order are significant and preserved on every read.
type Schema struct {
	Version  string    `json:"version" yaml:"version"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// Section groups fields under a title.
type Section struct {
	Title  string  `json:"title" yaml:"title"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// Field is one input of a form. Name keys the field's value in response data.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Label    string    `json:"label" yaml:"label"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	Options  []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

// Fields flattens all sections into one list in authored order.
func (s Schema) Fields() []Field {
	var out []Field
	for _, sec := range s.Sections {
		out = append(out, sec.Fields...)
	}
	return out
}

// FieldNames returns the flattened field names in authored order.
func (s Schema) FieldNames() []string {
	fields := s.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// HasFieldType reports whether any field of the schema has type t.
func (s Schema) HasFieldType(t FieldType) bool {
	for _, f := range s.Fields() {
		if f.Type == t {
			return true
		}
	}
	return false
}

// fieldIndex maps field names to fields. A duplicated name keeps its first
// declaration and is reported in dups.
func (s Schema) fieldIndex() (index map[string]Field, dups []string) {
	index = make(map[string]Field)
	for _, f := range s.Fields() {
		if _, seen := index[f.Name]; seen {
			dups = append(dups, f.Name)
			continue
		}
		index[f.Name] = f
	}
	return index, dups
}
