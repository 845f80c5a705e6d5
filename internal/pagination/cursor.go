// Package pagination implements the keyset page tokens of the list APIs.
//
// Rows are ordered by a timestamp column and then by id, both descending.
// A token names the last row of the previous page, so rows that share a
// timestamp are never skipped across a page boundary.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("invalid page token")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Size clamps a requested page size to (0, MaxPageSize].
func Size(pageSize int) int {
	if pageSize <= 0 {
		return DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

// Cursor is the position of the last row of a page.
type Cursor struct {
	At time.Time
	ID string
}

// Token encodes c as an opaque URL-safe string.
func (c Cursor) Token() string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseToken decodes a token produced by Cursor.Token.
func ParseToken(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("%w: missing row id", ErrInvalidPageToken)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return Cursor{At: at, ID: id}, nil
}

// Apply orders q newest first by column and id and, when token is set,
// keeps only the rows after the cursor. column must be a trusted name.
func Apply(q *gorm.DB, column, token string) (*gorm.DB, error) {
	q = q.Order(column + " DESC").Order("id DESC")
	if token == "" {
		return q, nil
	}
	c, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	cond := fmt.Sprintf("(%s < ? OR (%s = ? AND id < ?))", column, column)
	return q.Where(cond, c.At, c.At, c.ID), nil
}

// Next trims rows fetched with a limit of pageSize+1 to one page and
// returns the token of the following page, or "" on the last page.
func Next[T any](rows []T, pageSize int, cursor func(T) Cursor) ([]T, string) {
	if len(rows) <= pageSize {
		return rows, ""
	}
	return rows[:pageSize], cursor(rows[pageSize-1]).Token()
}
