package ldap

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/go-objectsid"
	"github.com/google/uuid"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// binaryAttributes lists attributes whose values are raw octets regardless of
// content. Lookups use lowercase names.
var binaryAttributes = map[string]bool{
	"objectsid":            true,
	"objectguid":           true,
	"jpegphoto":            true,
	"usercertificate":      true,
	"cacertificate":        true,
	"usersmimecertificate": true,
	"userpkcs12":           true,
	"nssymmetrickey":       true,
}

// isBinaryAttribute reports whether the values of name should be carried as
// bytes. Besides the known binary attributes, the ";binary" option and any
// value that is not valid UTF-8 force binary handling.
func isBinaryAttribute(name string, values [][]byte) bool {
	lower := strings.ToLower(name)
	base, options, _ := strings.Cut(lower, ";")
	if binaryAttributes[base] || strings.Contains(";"+options+";", ";binary;") {
		return true
	}

	for _, v := range values {
		if !utf8.Valid(v) {
			return true
		}
	}
	return false
}

// FormatValue renders a value for display. objectSid is shown in S-1-...
// form, objectGUID as a UUID, other binary values as base64.
func FormatValue(attr string, v mapping.Value) string {
	if !v.IsBinary() {
		return v.String()
	}

	switch strings.ToLower(attr) {
	case "objectsid":
		if s, err := FormatSID(v.Bytes()); err == nil {
			return s
		}
	case "objectguid":
		if s, err := FormatGUID(v.Bytes()); err == nil {
			return s
		}
	}

	return base64.StdEncoding.EncodeToString(v.Bytes())
}

// FormatSID converts a binary SID to its string representation.
func FormatSID(b []byte) (string, error) {
	// revision, sub-authority count, 6-byte identifier authority
	if len(b) < 8 || len(b) != 8+4*int(b[1]) {
		return "", fmt.Errorf("invalid binary SID length %d", len(b))
	}

	return objectsid.Decode(b).String(), nil
}

// FormatGUID converts a GUID in the mixed-endian wire format to its
// hyphenated string form.
func FormatGUID(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("invalid GUID length %d, expected 16", len(b))
	}

	u, err := uuid.FromBytes(swapGUIDBytes(b))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// swapGUIDBytes converts between RFC 4122 byte order and the Microsoft
// layout, in which the first three fields are little-endian. The conversion
// is its own inverse.
func swapGUIDBytes(b []byte) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:])
	return out
}
