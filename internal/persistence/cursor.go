// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/fitcoach/internal/domain"
)

// ErrInvalidCursor is returned for page tokens this service did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// cursorToken is the JSON body of a page token: the keyset position of the
// last row returned.
type cursorToken struct {
	StartTime time.Time `json:"t"`
	ID        string    `json:"id"`
}

// EncodeCursor turns c into an opaque URL-safe page token. A nil cursor means
// there is no next page and encodes as "".
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(cursorToken{StartTime: c.StartTime.UTC(), ID: c.ID})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token from EncodeCursor. A blank token is the first
// page and decodes to nil.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var decoded cursorToken
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if decoded.ID == "" || decoded.StartTime.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &domain.Cursor{StartTime: decoded.StartTime, ID: decoded.ID}, nil
}
