package forms

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fieldworks/backoffice/internal/pagination"
)

// Error kinds returned by the form engine. Callers match them with errors.Is.
var (
	ErrSchemaStructureInvalid = errors.New("schema structure invalid")
	ErrSchemaMismatch         = errors.New("schema mismatch")
	ErrRequiredFieldMissing   = errors.New("required field missing")
	ErrFieldValueInvalid      = errors.New("field value invalid")
	ErrAlreadySubmitted       = errors.New("response already submitted")
	ErrNotFound               = errors.New("not found")
	ErrFormHasResponses       = errors.New("form has responses")
)

// ErrInvalidPageToken is returned by the list operations for a page token
// they did not issue.
var ErrInvalidPageToken = pagination.ErrInvalidPageToken

// FieldError is a validation failure tied to a field name or schema path.
type FieldError struct {
	Kind    error
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return e.Kind }

// FieldErrors collects every violation found in one validation pass.
type FieldErrors []*FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes each member so errors.Is matches any contained kind.
func (e FieldErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, fe := range e {
		out[i] = fe
	}
	return out
}

func (e *FieldErrors) add(kind error, field, format string, args ...any) {
	*e = append(*e, &FieldError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)})
}

// orNil returns nil for an empty list so callers can return it directly.
func (e FieldErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e FieldErrors) sortByField() {
	sort.SliceStable(e, func(i, j int) bool { return e[i].Field < e[j].Field })
}

// AsFieldErrors flattens err into its field errors, if it carries any.
func AsFieldErrors(err error) FieldErrors {
	var list FieldErrors
	if errors.As(err, &list) {
		return list
	}
	var single *FieldError
	if errors.As(err, &single) {
		return FieldErrors{single}
	}
	return nil
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}
