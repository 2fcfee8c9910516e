package extract

import "strconv"

// Code is a verification code found in a message body.
type Code struct {
	// Digits is the token exactly as it appeared, leading zeros included.
	Digits string
	Value  int
}

func (c Code) String() string {
	return c.Digits
}

// ExtractCode returns the first code that follows the configured phrase. The boolean is
// false when the text holds no such code.
func (d *Decoder) ExtractCode(text string) (Code, bool) {
	match := d.pattern.FindStringSubmatch(text)
	if match == nil {
		return Code{}, false
	}

	value, err := strconv.Atoi(match[1])
	if err != nil {
		return Code{}, false
	}

	return Code{Digits: match[1], Value: value}, true
}
