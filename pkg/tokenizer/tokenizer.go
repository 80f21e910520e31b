// Package tokenizer provides token counting for rendered views using
// tiktoken encodings, with a byte-length heuristic for callers that cannot
// load an encoding.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the token encoding used when none is specified.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens using a tiktoken encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// New creates a tokenizer with the default encoding.
func New() (*Tokenizer, error) {
	return NewWithEncoding(DefaultEncoding)
}

// NewWithEncoding creates a tokenizer with the named encoding. The first
// load of an encoding downloads its vocabulary unless an offline loader is
// registered with tiktoken.
func NewWithEncoding(name string) (*Tokenizer, error) {
	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", name, err)
	}
	return &Tokenizer{encoding: encoding, name: name}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Encoding returns the encoding name this tokenizer was created with.
func (t *Tokenizer) Encoding() string {
	return t.name
}

// EstimateTokens approximates a token count without an encoding, at about
// four bytes per token, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
