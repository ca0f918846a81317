package mapping

import (
	"encoding/base64"
	"strings"
)

// LDIF renders the entry as an LDIF content record. objectClass comes first,
// other attributes follow in folded-name order. Binary values and values that
// are not LDIF-safe strings are base64 encoded.
func (e *Entry) LDIF() string {
	var b strings.Builder
	writeLDIFLine(&b, "dn", Text(e.DN))
	e.writeLDIFAttributes(&b)
	return b.String()
}

// AddLDIF renders the entry as an LDIF add change record.
func (e *Entry) AddLDIF() string {
	var b strings.Builder
	writeLDIFLine(&b, "dn", Text(e.DN))
	b.WriteString("changetype: add\n")
	e.writeLDIFAttributes(&b)
	return b.String()
}

func (e *Entry) writeLDIFAttributes(b *strings.Builder) {
	keys := e.keys()
	ordered := make([]string, 0, len(keys))
	if e.Has("objectClass") {
		ordered = append(ordered, foldName("objectClass"))
	}
	for _, k := range keys {
		if k != foldName("objectClass") {
			ordered = append(ordered, k)
		}
	}

	for _, k := range ordered {
		a := e.attrs[k]
		for _, v := range a.values {
			writeLDIFLine(b, a.name, v)
		}
	}
}

// ModifyLDIF renders changes to dn as an LDIF modify change record.
func ModifyLDIF(dn string, changes []AttributeChange) string {
	var b strings.Builder
	writeLDIFLine(&b, "dn", Text(dn))
	b.WriteString("changetype: modify\n")
	for _, c := range changes {
		writeLDIFLine(&b, c.Op.String(), Text(c.Name()))
		for _, v := range c.Attribute.Values {
			writeLDIFLine(&b, c.Name(), Text(v))
		}
		for _, v := range c.Attribute.ByteValues {
			writeLDIFLine(&b, c.Name(), Binary(v))
		}
		b.WriteString("-\n")
	}
	return b.String()
}

// DeleteLDIF renders an LDIF delete change record.
func DeleteLDIF(dn string) string {
	var b strings.Builder
	writeLDIFLine(&b, "dn", Text(dn))
	b.WriteString("changetype: delete\n")
	return b.String()
}

// ModRDNLDIF renders an LDIF modrdn change record replacing the RDN of dn.
func ModRDNLDIF(dn, newRDN string) string {
	var b strings.Builder
	writeLDIFLine(&b, "dn", Text(dn))
	b.WriteString("changetype: modrdn\n")
	writeLDIFLine(&b, "newrdn", Text(newRDN))
	b.WriteString("deleteoldrdn: 1\n")
	return b.String()
}

func writeLDIFLine(b *strings.Builder, name string, v Value) {
	b.WriteString(name)
	if v.binary || !safeLDIFString(v.data) {
		b.WriteString(":: ")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(v.data)))
	} else {
		b.WriteString(": ")
		b.WriteString(v.data)
	}
	b.WriteByte('\n')
}

// safeLDIFString implements the SAFE-STRING production of RFC 2849, also
// rejecting a trailing space.
func safeLDIFString(s string) bool {
	if s == "" {
		return true
	}
	switch s[0] {
	case ' ', ':', '<':
		return false
	}
	if s[len(s)-1] == ' ' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0 || c == '\n' || c == '\r' || c > 0x7f {
			return false
		}
	}
	return true
}
