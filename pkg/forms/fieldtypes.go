package forms

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// FieldType identifies one entry of the closed field type registry.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeTextarea  FieldType = "textarea"
	FieldTypeNumber    FieldType = "number"
	FieldTypeEmail     FieldType = "email"
	FieldTypePhone     FieldType = "phone"
	FieldTypeDate      FieldType = "date"
	FieldTypeDatetime  FieldType = "datetime"
	FieldTypeSelect    FieldType = "select"
	FieldTypeRadio     FieldType = "radio"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeFile      FieldType = "file"
	FieldTypeSignature FieldType = "signature"
)

// ValueShape is the JSON shape a field type expects in response data.
type ValueShape string

const (
	ShapeString    ValueShape = "string"
	ShapeNumber    ValueShape = "number"
	ShapeBoolean   ValueShape = "boolean"
	ShapeReference ValueShape = "reference"
	// ShapeNone marks types that never carry a value in response data.
	ShapeNone ValueShape = "none"
)

// FieldTypeInfo describes the value semantics of a registered field type.
type FieldTypeInfo struct {
	Type            FieldType  `json:"type"`
	Shape           ValueShape `json:"shape"`
	SupportsOptions bool       `json:"supportsOptions"`
	// Special is set for types handled outside response data (signature).
	Special bool `json:"special"`
}

// registryOrder is the presentation order of the registry.
var registryOrder = []FieldType{
	FieldTypeText,
	FieldTypeTextarea,
	FieldTypeNumber,
	FieldTypeEmail,
	FieldTypePhone,
	FieldTypeDate,
	FieldTypeDatetime,
	FieldTypeSelect,
	FieldTypeRadio,
	FieldTypeCheckbox,
	FieldTypeFile,
	FieldTypeSignature,
}

var registry = map[FieldType]FieldTypeInfo{
	FieldTypeText:      {Type: FieldTypeText, Shape: ShapeString},
	FieldTypeTextarea:  {Type: FieldTypeTextarea, Shape: ShapeString},
	FieldTypeNumber:    {Type: FieldTypeNumber, Shape: ShapeNumber},
	FieldTypeEmail:     {Type: FieldTypeEmail, Shape: ShapeString},
	FieldTypePhone:     {Type: FieldTypePhone, Shape: ShapeString},
	FieldTypeDate:      {Type: FieldTypeDate, Shape: ShapeString},
	FieldTypeDatetime:  {Type: FieldTypeDatetime, Shape: ShapeString},
	FieldTypeSelect:    {Type: FieldTypeSelect, Shape: ShapeString, SupportsOptions: true},
	FieldTypeRadio:     {Type: FieldTypeRadio, Shape: ShapeString, SupportsOptions: true},
	FieldTypeCheckbox:  {Type: FieldTypeCheckbox, Shape: ShapeBoolean, SupportsOptions: true},
	FieldTypeFile:      {Type: FieldTypeFile, Shape: ShapeReference},
	FieldTypeSignature: {Type: FieldTypeSignature, Shape: ShapeNone, Special: true},
}

var choiceTypes = mapset.NewThreadUnsafeSet(FieldTypeSelect, FieldTypeRadio, FieldTypeCheckbox)

// LookupFieldType returns the registry entry for t.
func LookupFieldType(t FieldType) (FieldTypeInfo, bool) {
	info, ok := registry[t]
	return info, ok
}

// FieldTypes lists every registered field type in presentation order.
func FieldTypes() []FieldTypeInfo {
	out := make([]FieldTypeInfo, 0, len(registryOrder))
	for _, t := range registryOrder {
		out = append(out, registry[t])
	}
	return out
}

// Valid reports whether t belongs to the registry.
func (t FieldType) Valid() bool {
	_, ok := registry[t]
	return ok
}

// IsChoice reports whether t takes its values from an options list.
func (t FieldType) IsChoice() bool {
	return choiceTypes.Contains(t)
}
