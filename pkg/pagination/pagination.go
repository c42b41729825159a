package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params carries a requested page size and the opaque cursor from the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the keyset position of the last row on a page. Listings walk
// newest first, so the next page holds rows strictly older than it.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer over-fetches one row so callers can tell whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders a cursor safe to pass back in a query string.
func EncodeCursor(cursor Cursor) string {
	payload := cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor returns nil for an empty value and a validation error for a malformed one.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, invalidCursor(err)
	}
	createdAt, rawID, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, invalidCursor(nil)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, invalidCursor(err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, invalidCursor(err)
	}
	return &Cursor{CreatedAt: ts, ID: id}, nil
}

// Trim cuts an over-fetched result down to limit and reports whether rows were dropped.
func Trim[T any](rows []T, limit int) ([]T, bool) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, false
	}
	return rows[:limit], true
}

func invalidCursor(err error) error {
	if err == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
}
