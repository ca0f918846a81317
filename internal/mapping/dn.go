package mapping

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes special characters in a DN attribute value according to RFC 4514.
//
// Characters that are always escaped: , + " \ < > ; and NUL.
// A leading # and leading or trailing spaces are escaped as well.
func EscapeDNValue(value string) string {
	if !NeedsDNEscaping(value) {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	last := len(value) - 1
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == 0:
			b.WriteString(`\00`)
			continue
		case strings.IndexByte(`,+"\<>;`, c) >= 0:
			b.WriteByte('\\')
		case c == '#' && i == 0:
			b.WriteByte('\\')
		case c == ' ' && (i == 0 || i == last):
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

// NeedsDNEscaping checks if a value contains characters that need DN escaping.
func NeedsDNEscaping(value string) bool {
	if value == "" {
		return false
	}

	if value[0] == ' ' || value[len(value)-1] == ' ' || value[0] == '#' {
		return true
	}

	return strings.ContainsAny(value, ",+\"\\<>;\x00")
}

// ParseDN parses dn and returns a validation error on bad syntax.
func ParseDN(dn string) (*ldap.DN, error) {
	if strings.TrimSpace(dn) == "" {
		return nil, fmt.Errorf("DN cannot be empty")
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("invalid DN syntax: %w", err)
	}

	return parsed, nil
}

// NormalizeDN returns the canonical comparison form of dn: attribute types and
// values folded to lower case and values re-escaped.
func NormalizeDN(dn string) (string, error) {
	parsed, err := ParseDN(dn)
	if err != nil {
		return "", err
	}
	return foldDN(parsed), nil
}

func foldDN(parsed *ldap.DN) string {
	rdns := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		parts := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			parts = append(parts, strings.ToLower(attr.Type)+"="+EscapeDNValue(strings.ToLower(attr.Value)))
		}
		rdns = append(rdns, strings.Join(parts, "+"))
	}
	return strings.Join(rdns, ",")
}

// EqualDN compares two DNs case-insensitively. Unparseable DNs fall back to a
// case-insensitive string comparison.
func EqualDN(a, b string) bool {
	na, errA := NormalizeDN(a)
	nb, errB := NormalizeDN(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return na == nb
}

// JoinDN builds "attr=value,parent" with the value escaped.
func JoinDN(attr, value, parent string) string {
	rdn := fmt.Sprintf("%s=%s", attr, EscapeDNValue(value))
	if parent == "" {
		return rdn
	}
	return rdn + "," + parent
}

// RDN returns the attribute type and value of the leading RDN of dn.
func RDN(dn string) (attr, value string, err error) {
	parsed, err := ParseDN(dn)
	if err != nil {
		return "", "", err
	}
	if len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return "", "", fmt.Errorf("DN has no RDN: %s", dn)
	}
	first := parsed.RDNs[0].Attributes[0]
	return first.Type, first.Value, nil
}

// ParentDN returns dn without its leading RDN.
func ParentDN(dn string) (string, error) {
	parsed, err := ParseDN(dn)
	if err != nil {
		return "", err
	}

	if len(parsed.RDNs) <= 1 {
		return "", fmt.Errorf("DN has no parent: %s", dn)
	}

	rdns := make([]string, 0, len(parsed.RDNs)-1)
	for _, rdn := range parsed.RDNs[1:] {
		parts := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			parts = append(parts, attr.Type+"="+EscapeDNValue(attr.Value))
		}
		rdns = append(rdns, strings.Join(parts, "+"))
	}

	return strings.Join(rdns, ","), nil
}

// IsDNDescendant reports whether childDN lies strictly below parentDN.
func IsDNDescendant(childDN, parentDN string) (bool, error) {
	child, err := ParseDN(childDN)
	if err != nil {
		return false, fmt.Errorf("invalid child DN: %w", err)
	}

	parent, err := ParseDN(parentDN)
	if err != nil {
		return false, fmt.Errorf("invalid parent DN: %w", err)
	}

	if len(child.RDNs) <= len(parent.RDNs) {
		return false, nil
	}

	tail := &ldap.DN{RDNs: child.RDNs[len(child.RDNs)-len(parent.RDNs):]}
	return foldDN(tail) == foldDN(parent), nil
}

// DNDepth returns the number of RDNs of childDN below parentDN, or -1 if it is
// not inside parentDN.
func DNDepth(childDN, parentDN string) int {
	if EqualDN(childDN, parentDN) {
		return 0
	}
	ok, err := IsDNDescendant(childDN, parentDN)
	if err != nil || !ok {
		return -1
	}
	child, _ := ParseDN(childDN)
	parent, _ := ParseDN(parentDN)
	return len(child.RDNs) - len(parent.RDNs)
}
