// Package extract turns a raw email into body text and finds the verification code in it.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultPhrase precedes the code in the messages this tool was written for.
const DefaultPhrase = "Please enter the following code for verification"

var ErrEmptyPhrase = errors.New("code phrase is empty")

type Options struct {
	// Phrase is the literal text that precedes "<colon> <code>".
	Phrase string
	// Fallbacks are tried in order after the declared charset. Nil means DefaultFallbacks.
	Fallbacks []string
}

// Decoder holds the compiled code pattern and the charset fallback chain.
type Decoder struct {
	fallbacks []string
	pattern   *regexp.Regexp
}

func New(opts Options) (*Decoder, error) {
	phrase := strings.TrimSpace(opts.Phrase)
	if phrase == "" {
		return nil, ErrEmptyPhrase
	}

	fallbacks := opts.Fallbacks
	if fallbacks == nil {
		fallbacks = DefaultFallbacks
	}
	cleaned := make([]string, 0, len(fallbacks))
	for _, name := range fallbacks {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := lookupCharset(name); err != nil {
			return nil, fmt.Errorf("fallback charset: %w", err)
		}
		cleaned = append(cleaned, name)
	}

	pattern, err := regexp.Compile(regexp.QuoteMeta(phrase) + `:\s*\b(\d{4,8})\b`)
	if err != nil {
		return nil, fmt.Errorf("compile code pattern: %w", err)
	}

	return &Decoder{
		fallbacks: cleaned,
		pattern:   pattern,
	}, nil
}

// Fallbacks returns a copy of the charset chain used after the declared charset.
func (d *Decoder) Fallbacks() []string {
	out := make([]string, len(d.fallbacks))
	copy(out, d.fallbacks)
	return out
}
