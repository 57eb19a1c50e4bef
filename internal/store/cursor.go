package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// lineCursor is the position after the last line of a page. Lines are
// ordered by (ingested_at, id), so both are needed to resume.
type lineCursor struct {
	At time.Time
	ID int64
}

// String encodes the cursor as URL-safe base64 of "<at>|<id>".
func (c lineCursor) String() string {
	raw := c.At.UTC().Format(TimeFormat) + "|" + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// where returns the SQL condition selecting lines after c.
func (c lineCursor) where() (string, []any) {
	at := c.At.UTC().Format(TimeFormat)
	return "(ingested_at > ? OR (ingested_at = ? AND id > ?))", []any{at, at, c.ID}
}

// parseLineCursor decodes a cursor produced by lineCursor.String. Padded
// standard base64 is accepted too, since browsers tend to re-encode query
// values.
func parseLineCursor(s string) (lineCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		if b, err = base64.StdEncoding.DecodeString(s); err != nil {
			return lineCursor{}, fmt.Errorf("%w: not base64", ErrInvalidCursor)
		}
	}

	atStr, idStr, ok := strings.Cut(string(b), "|")
	if !ok {
		return lineCursor{}, fmt.Errorf("%w: missing separator", ErrInvalidCursor)
	}
	at, err := time.Parse(TimeFormat, atStr)
	if err != nil {
		return lineCursor{}, fmt.Errorf("%w: bad timestamp", ErrInvalidCursor)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 0 {
		return lineCursor{}, fmt.Errorf("%w: bad id", ErrInvalidCursor)
	}
	return lineCursor{At: at, ID: id}, nil
}
