package domain

import (
	"fmt"
	"strings"
)

// DefaultTopK is the recommended context size when the caller does not set one.
const DefaultTopK = 5

// Query is the validated input of one pipeline invocation.
type Query struct {
	text    string
	topK    int
	history []Turn
}

// NewQuery normalizes and validates raw caller input.
// Text is trimmed and inner whitespace collapsed; topK <= 0 takes the default.
func NewQuery(text string, topK int, history []Turn) (Query, error) {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return Query{}, fmt.Errorf("query text is empty: %w", ErrInvalidInput)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return Query{text: normalized, topK: topK, history: history}, nil
}

// Text returns the normalized question text.
func (q Query) Text() string { return q.text }

// TopK returns the requested context size.
func (q Query) TopK() int { return q.topK }

// History returns prior conversation turns, most recent last.
func (q Query) History() []Turn { return q.history }
