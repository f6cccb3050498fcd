package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	orderNumberRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._/-]*$`)
	osPrefixRegex    = regexp.MustCompile(`^O\.?S\.?[-\s]*([0-9])`)
)

// NormalizeOrderNumber normalizes a work order number to its bare uppercase
// form. Accepts formats like:
// - "4410", "#4410", "OS-4410", "os 4410", "O.S. 4410" -> "4410"
// - "a-17" -> "A-17"
// Returns error if the result is empty or contains other characters
func NormalizeOrderNumber(number string) (string, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	number = strings.TrimSpace(strings.TrimPrefix(number, "#"))
	number = osPrefixRegex.ReplaceAllString(number, "${1}")

	if number == "" {
		return "", fmt.Errorf("order number is required")
	}
	if !orderNumberRegex.MatchString(number) {
		return "", fmt.Errorf("invalid order number %q. Use letters, digits and . _ / -", number)
	}
	return number, nil
}
