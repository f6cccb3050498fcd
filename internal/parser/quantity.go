package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var quantityRegex = regexp.MustCompile(`^(?:x|qty:|qtd:)?(\d+)(?:pcs|pc|un|und)?$`)

// ParseQuantity parses a piece count. Accepts "500", "x500", "500pcs",
// "500un" and "qty:500". The count must be at least 1.
func ParseQuantity(input string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, ".", "")
	m := quantityRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid quantity %q. Use: 500, x500 or 500pcs", input)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %v", input, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("quantity must be at least 1")
	}
	return n, nil
}

func isQuantityToken(token string) bool {
	s := strings.ToLower(token)
	if !quantityRegex.MatchString(s) {
		return false
	}
	// bare numbers stay in the product name ("Agenda 2026")
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0
}
