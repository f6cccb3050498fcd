package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedOrder represents a work order parsed from a single line
type ParsedOrder struct {
	OrderNumber string
	Product     string
	Quantity    int
	ProcessRefs []string // names or 1-based indexes, resolved later
	Errors      []string
}

var (
	numberTokenRegex  = regexp.MustCompile(`^(?:#|(?i:os)-)[A-Za-z0-9][A-Za-z0-9._/-]*$`)
	processTokenRegex = regexp.MustCompile(`(?i)\b(?:procs?|p):("([^"]*)"|[^\s]+)`)
)

// ParseOrderLine extracts work order fields from a natural line
// Syntax: "#4410 Caderno espiral x200 procs:1,3,6"
//
// The order number is the #/OS- token, the quantity is an x500/500pcs
// token, processes follow procs: (quoted when names contain spaces) and
// what remains is the product.
func ParseOrderLine(input string) ParsedOrder {
	result := ParsedOrder{Errors: []string{}}

	if m := processTokenRegex.FindStringSubmatch(input); m != nil {
		raw := m[1]
		if m[2] != "" || strings.HasPrefix(raw, `"`) {
			raw = m[2]
		}
		for _, ref := range strings.Split(raw, ",") {
			if ref = strings.TrimSpace(ref); ref != "" {
				result.ProcessRefs = append(result.ProcessRefs, ref)
			}
		}
		if len(result.ProcessRefs) == 0 {
			result.Errors = append(result.Errors, "Empty process list after procs:")
		}
		input = processTokenRegex.ReplaceAllString(input, "")
	}

	var product []string
	for _, token := range strings.Fields(input) {
		switch {
		case result.OrderNumber == "" && numberTokenRegex.MatchString(token):
			number, err := NormalizeOrderNumber(token)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.OrderNumber = number
		case result.Quantity == 0 && isQuantityToken(token):
			qty, err := ParseQuantity(token)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Quantity = qty
		default:
			product = append(product, token)
		}
	}
	result.Product = strings.Join(product, " ")

	return result
}

// ResolveProcessRefs maps names or 1-based indexes onto the available
// process list. Names match case-insensitively, exactly or by unique prefix.
func ResolveProcessRefs(refs []string, available []string) ([]string, []string) {
	var (
		resolved []string
		errs     []string
		seen     = make(map[string]bool)
	)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			resolved = append(resolved, name)
		}
	}

	for _, ref := range refs {
		if n, err := strconv.Atoi(ref); err == nil {
			if n < 1 || n > len(available) {
				errs = append(errs, "Process index "+ref+" out of range (1-"+strconv.Itoa(len(available))+")")
				continue
			}
			add(available[n-1])
			continue
		}

		lower := strings.ToLower(ref)
		var matches []string
		for _, name := range available {
			if strings.ToLower(name) == lower {
				matches = []string{name}
				break
			}
			if strings.HasPrefix(strings.ToLower(name), lower) {
				matches = append(matches, name)
			}
		}
		switch len(matches) {
		case 0:
			// unknown names are new processes for this order
			add(ref)
		case 1:
			add(matches[0])
		default:
			errs = append(errs, "Process '"+ref+"' is ambiguous: "+strings.Join(matches, ", "))
		}
	}
	return resolved, errs
}
