package mapping

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Filter is a composable search predicate. String renders it in RFC 4515
// syntax with every assertion value escaped.
type Filter interface {
	String() string
	// Matches evaluates the filter against an entry. Text comparison is
	// case-insensitive, which matches the common directory string syntaxes.
	Matches(e *Entry) bool
}

type equalityFilter struct {
	attr  string
	value string
}

type presentFilter struct {
	attr string
}

type substringFilter struct {
	attr    string
	initial string
	any     []string
	final   string
}

type andFilter struct {
	children []Filter
}

type orFilter struct {
	children []Filter
}

type notFilter struct {
	child Filter
}

type rawFilter struct {
	text   string
	parsed Filter
}

// invalidFilter stands in for an assertion on a malformed attribute name. It
// renders as a filter matching nothing, and CheckFilter rejects it.
type invalidFilter struct {
	attr string
}

// attributeDescription matches an RFC 4512 attribute description: a keystring
// or numeric OID, optionally followed by ;options.
var attributeDescription = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*|[0-9]+(\.[0-9]+)+)(;[A-Za-z0-9-]+)*$`)

// ValidAttributeName reports whether name is a well-formed attribute
// description.
func ValidAttributeName(name string) bool {
	return attributeDescription.MatchString(name)
}

// Eq matches entries where attr has value.
func Eq(attr, value string) Filter {
	if !ValidAttributeName(attr) {
		return invalidFilter{attr: attr}
	}
	return equalityFilter{attr: attr, value: value}
}

// Present matches entries where attr has any value.
func Present(attr string) Filter {
	if !ValidAttributeName(attr) {
		return invalidFilter{attr: attr}
	}
	return presentFilter{attr: attr}
}

// Substring matches attr against initial*any*...*final. Empty parts are
// omitted; with every part empty the result is Present(attr).
func Substring(attr, initial string, any []string, final string) Filter {
	if !ValidAttributeName(attr) {
		return invalidFilter{attr: attr}
	}
	if initial == "" && final == "" && !slices.ContainsFunc(any, func(p string) bool { return p != "" }) {
		return presentFilter{attr: attr}
	}
	return substringFilter{attr: attr, initial: initial, any: any, final: final}
}

// CheckFilter rejects a filter built from a malformed attribute name.
func CheckFilter(f Filter) error {
	switch f := f.(type) {
	case invalidFilter:
		return validationError("filter", "", "invalid attribute name %q", f.attr)
	case andFilter:
		return checkFilters(f.children)
	case orFilter:
		return checkFilters(f.children)
	case notFilter:
		return CheckFilter(f.child)
	case rawFilter:
		return CheckFilter(f.parsed)
	}
	return nil
}

func checkFilters(filters []Filter) error {
	for _, f := range filters {
		if err := CheckFilter(f); err != nil {
			return err
		}
	}
	return nil
}

// And combines filters with logical AND. Nil filters are dropped and a single
// remaining filter is returned unwrapped.
func And(filters ...Filter) Filter {
	children := compact(filters)
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return andFilter{children: children}
}

// Or combines filters with logical OR.
func Or(filters ...Filter) Filter {
	children := compact(filters)
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return orFilter{children: children}
}

// Not negates f.
func Not(f Filter) Filter {
	return notFilter{child: f}
}

// Raw wraps a caller-supplied filter string. The string is checked with the
// go-ldap filter compiler and must also fall within the subset ParseFilter
// understands.
func Raw(text string) (Filter, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "(") {
		text = "(" + text + ")"
	}
	if _, err := ldap.CompileFilter(text); err != nil {
		return nil, validationError("filter", "", "invalid filter %q: %v", text, err)
	}
	parsed, err := ParseFilter(text)
	if err != nil {
		return nil, err
	}
	return rawFilter{text: text, parsed: parsed}, nil
}

// ObjectClassFilter matches entries carrying every one of classes.
func ObjectClassFilter(classes ...string) Filter {
	filters := make([]Filter, 0, len(classes))
	for _, c := range classes {
		filters = append(filters, Eq("objectClass", c))
	}
	return And(filters...)
}

func compact(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// EscapeFilterValue escapes *, (, ), \ and NUL in an assertion value.
func EscapeFilterValue(value string) string {
	return ldap.EscapeFilter(value)
}

func (f equalityFilter) String() string {
	return fmt.Sprintf("(%s=%s)", f.attr, EscapeFilterValue(f.value))
}

func (f presentFilter) String() string {
	return fmt.Sprintf("(%s=*)", f.attr)
}

func (f substringFilter) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(f.attr)
	b.WriteString("=")
	b.WriteString(EscapeFilterValue(f.initial))
	b.WriteString("*")
	for _, part := range f.any {
		if part == "" {
			continue
		}
		b.WriteString(EscapeFilterValue(part))
		b.WriteString("*")
	}
	b.WriteString(EscapeFilterValue(f.final))
	b.WriteString(")")
	return b.String()
}

func (f andFilter) String() string {
	return "(&" + joinFilters(f.children) + ")"
}

func (f orFilter) String() string {
	return "(|" + joinFilters(f.children) + ")"
}

func (f notFilter) String() string {
	return "(!" + f.child.String() + ")"
}

func (f rawFilter) String() string {
	return f.text
}

func (f invalidFilter) String() string {
	return "(!(objectClass=*))"
}

func joinFilters(filters []Filter) string {
	var b strings.Builder
	for _, f := range filters {
		b.WriteString(f.String())
	}
	return b.String()
}

func (f equalityFilter) Matches(e *Entry) bool {
	return e.HasValue(f.attr, Text(f.value))
}

func (f presentFilter) Matches(e *Entry) bool {
	if strings.EqualFold(f.attr, "objectClass") && e.DN != "" {
		// Every entry has an object class, even when the attribute was not
		// requested.
		return true
	}
	return e.Has(f.attr)
}

func (f substringFilter) Matches(e *Entry) bool {
	for _, v := range e.Get(f.attr) {
		if matchSubstring(strings.ToLower(v.String()), strings.ToLower(f.initial), f.any, strings.ToLower(f.final)) {
			return true
		}
	}
	return false
}

func (f andFilter) Matches(e *Entry) bool {
	for _, c := range f.children {
		if !c.Matches(e) {
			return false
		}
	}
	return true
}

func (f orFilter) Matches(e *Entry) bool {
	for _, c := range f.children {
		if c.Matches(e) {
			return true
		}
	}
	return false
}

func (f notFilter) Matches(e *Entry) bool {
	return !f.child.Matches(e)
}

func (f rawFilter) Matches(e *Entry) bool {
	return f.parsed.Matches(e)
}

func (f invalidFilter) Matches(*Entry) bool {
	return false
}

func matchSubstring(value, initial string, any []string, final string) bool {
	pos := 0

	if initial != "" {
		if !strings.HasPrefix(value, initial) {
			return false
		}
		pos = len(initial)
	}

	for _, part := range any {
		if part == "" {
			continue
		}
		part = strings.ToLower(part)
		idx := strings.Index(value[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}

	if final != "" {
		return strings.HasSuffix(value[pos:], final)
	}

	return true
}

// Filter parser errors.
var (
	errEmptyFilter      = errors.New("empty filter")
	errUnbalancedParens = errors.New("unbalanced parentheses")
	errMissingAttribute = errors.New("missing attribute name")
)

// ParseFilter parses the RFC 4515 subset this package composes: equality,
// presence, substring, AND, OR and NOT. Ordering and approximate assertions
// are rejected.
func ParseFilter(text string) (Filter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("parse_filter", "", "%v", errEmptyFilter)
	}
	if !strings.HasPrefix(text, "(") {
		text = "(" + text + ")"
	}

	f, rest, err := parseFilter(text)
	if err != nil {
		return nil, validationError("parse_filter", "", "invalid filter %q: %v", text, err)
	}
	if strings.TrimSpace(rest) != "" {
		return nil, validationError("parse_filter", "", "invalid filter %q: trailing data %q", text, rest)
	}
	return f, nil
}

// parseFilter parses one parenthesised filter from the front of s.
func parseFilter(s string) (Filter, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", errEmptyFilter
	}
	if s[0] != '(' {
		return nil, "", fmt.Errorf("expected '(' at %q", s)
	}

	end := matchingParen(s)
	if end < 0 {
		return nil, "", errUnbalancedParens
	}

	inner, rest := s[1:end], s[end+1:]
	if inner == "" {
		return nil, "", errEmptyFilter
	}

	switch inner[0] {
	case '&', '|':
		children, err := parseFilterList(inner[1:])
		if err != nil {
			return nil, "", err
		}
		if len(children) == 0 {
			return nil, "", fmt.Errorf("empty %c filter", inner[0])
		}
		if inner[0] == '&' {
			return andFilter{children: children}, rest, nil
		}
		return orFilter{children: children}, rest, nil
	case '!':
		child, tail, err := parseFilter(inner[1:])
		if err != nil {
			return nil, "", err
		}
		if strings.TrimSpace(tail) != "" {
			return nil, "", fmt.Errorf("NOT takes exactly one filter")
		}
		return notFilter{child: child}, rest, nil
	default:
		f, err := parseItem(inner)
		return f, rest, err
	}
}

func parseFilterList(s string) ([]Filter, error) {
	var filters []Filter
	s = strings.TrimSpace(s)
	for s != "" {
		f, rest, err := parseFilter(s)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
		s = strings.TrimSpace(rest)
	}
	return filters, nil
}

// matchingParen returns the index of the parenthesis closing s[0], skipping
// escaped characters.
func matchingParen(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseItem(s string) (Filter, error) {
	idx := strings.IndexByte(s, '=')
	if idx <= 0 {
		if idx == 0 {
			return nil, errMissingAttribute
		}
		return nil, fmt.Errorf("missing '=' in %q", s)
	}

	attr := strings.TrimSpace(s[:idx])
	if attr == "" {
		return nil, errMissingAttribute
	}
	switch attr[len(attr)-1] {
	case '>', '<', '~', ':':
		return nil, fmt.Errorf("unsupported filter type in %q", s)
	}
	if !ValidAttributeName(attr) {
		return nil, fmt.Errorf("invalid attribute name %q", attr)
	}

	value := s[idx+1:]
	if value == "*" {
		return presentFilter{attr: attr}, nil
	}

	if !strings.Contains(value, "*") {
		unescaped, err := unescapeFilterValue(value)
		if err != nil {
			return nil, err
		}
		return equalityFilter{attr: attr, value: unescaped}, nil
	}

	parts := strings.Split(value, "*")
	decoded := make([]string, len(parts))
	for i, p := range parts {
		u, err := unescapeFilterValue(p)
		if err != nil {
			return nil, err
		}
		decoded[i] = u
	}

	var middle []string
	if len(decoded) > 2 {
		middle = decoded[1 : len(decoded)-1]
	}
	return Substring(attr, decoded[0], middle, decoded[len(decoded)-1]), nil
}

// unescapeFilterValue decodes \XX hex escapes.
func unescapeFilterValue(value string) (string, error) {
	if !strings.Contains(value, `\`) {
		return value, nil
	}

	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' {
			b.WriteByte(value[i])
			continue
		}
		if i+2 >= len(value) {
			return "", fmt.Errorf("truncated escape in %q", value)
		}
		decoded, err := hex.DecodeString(value[i+1 : i+3])
		if err != nil {
			return "", fmt.Errorf("invalid escape in %q: %w", value, err)
		}
		b.Write(decoded)
		i += 2
	}
	return b.String(), nil
}
