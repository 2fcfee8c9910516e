package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

var ErrUnknownCharset = errors.New("unsupported charset")

// DefaultFallbacks is the ordered list of charsets tried after the declared one.
var DefaultFallbacks = []string{"utf-8", "iso-8859-1", "windows-1252"}

// decodeFunc converts payload to UTF-8 and fails instead of substituting.
type decodeFunc func(payload []byte) (string, error)

// Labels the IANA and WHATWG indexes do not know, or map differently than mail expects.
var charsetQuirks = map[string]encoding.Encoding{
	"latin-1":          charmap.ISO8859_1,
	"latin_1":          charmap.ISO8859_1,
	"ansi_x3.110-1983": charmap.ISO8859_1,
	"x-utf_8j":         unicode.UTF8,
}

// Decode converts payload to text using the declared charset, then each fallback in
// order. The first charset that decodes without error wins. When every candidate fails
// the payload is read as UTF-8 with one U+FFFD per undecodable byte.
func (d *Decoder) Decode(payload []byte, declared string) string {
	candidates := make([]string, 0, len(d.fallbacks)+1)
	if strings.TrimSpace(declared) != "" {
		candidates = append(candidates, declared)
	}
	candidates = append(candidates, d.fallbacks...)

	for _, name := range candidates {
		decode, err := lookupCharset(name)
		if err != nil {
			continue
		}
		text, err := decode(payload)
		if err != nil {
			continue
		}
		return text
	}

	return lossyUTF8(payload)
}

func lookupCharset(name string) (decodeFunc, error) {
	label := strings.ToLower(strings.Trim(strings.TrimSpace(name), `"'`))
	switch label {
	case "":
		return nil, fmt.Errorf("charset name is empty")
	case "utf-8", "utf8":
		return decodeUTF8, nil
	case "us-ascii", "ascii":
		return decodeASCII, nil
	}

	enc, ok := charsetQuirks[label]
	if !ok {
		enc, _ = ianaindex.MIME.Encoding(label)
	}
	if enc == nil {
		enc, _ = ianaindex.MIME.Encoding("cs" + label)
	}
	if enc == nil {
		enc, _ = htmlindex.Get(label)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q: %w", name, ErrUnknownCharset)
	}
	if enc == unicode.UTF8 {
		return decodeUTF8, nil
	}

	return func(payload []byte) (string, error) {
		out, err := enc.NewDecoder().Bytes(payload)
		if err != nil {
			return "", fmt.Errorf("charset %q: %w", name, err)
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			return "", fmt.Errorf("charset %q: undecodable bytes", name)
		}
		return string(out), nil
	}, nil
}

func decodeUTF8(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("invalid utf-8")
	}
	return string(payload), nil
}

func decodeASCII(payload []byte) (string, error) {
	for i, b := range payload {
		if b >= utf8.RuneSelf {
			return "", fmt.Errorf("non-ascii byte 0x%02x at offset %d", b, i)
		}
	}
	return string(payload), nil
}

// lossyUTF8 replaces each invalid byte with U+FFFD.
func lossyUTF8(payload []byte) string {
	return string([]rune(string(payload)))
}
