package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// S-1-5-21-1004336348-1177238915-682003330-512
var sampleSID = []byte{
	0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
	0x15, 0x00, 0x00, 0x00,
	0xdc, 0xf4, 0xdc, 0x3b,
	0x83, 0x3d, 0x2b, 0x46,
	0x82, 0x8b, 0xa6, 0x28,
	0x00, 0x02, 0x00, 0x00,
}

func TestIsBinaryAttribute(t *testing.T) {
	assert.True(t, isBinaryAttribute("objectSid", [][]byte{{0x01}}))
	assert.True(t, isBinaryAttribute("userCertificate;binary", [][]byte{[]byte("abc")}))
	assert.True(t, isBinaryAttribute("description", [][]byte{{0xff, 0xfe}}))
	assert.False(t, isBinaryAttribute("description", [][]byte{[]byte("café")}))
	assert.False(t, isBinaryAttribute("cn", nil))
}

func TestFormatSID(t *testing.T) {
	s, err := FormatSID(sampleSID)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1004336348-1177238915-682003330-512", s)

	_, err = FormatSID(sampleSID[:10])
	assert.Error(t, err)
}

// 12345678-9abc-def0-1234-56789abcdef0 in wire order
var sampleGUID = []byte{
	0x78, 0x56, 0x34, 0x12,
	0xbc, 0x9a,
	0xf0, 0xde,
	0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0,
}

func TestFormatGUID(t *testing.T) {
	s, err := FormatGUID(sampleGUID)
	require.NoError(t, err)
	assert.Equal(t, "12345678-9abc-def0-1234-56789abcdef0", s)

	assert.Equal(t, sampleGUID, swapGUIDBytes(swapGUIDBytes(sampleGUID)))

	_, err = FormatGUID([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "web01", FormatValue("cn", mapping.Text("web01")))
	assert.Equal(t, "S-1-5-21-1004336348-1177238915-682003330-512", FormatValue("objectSid", mapping.Binary(sampleSID)))

	assert.Equal(t, "12345678-9abc-def0-1234-56789abcdef0", FormatValue("objectGUID", mapping.Binary(sampleGUID)))

	assert.Equal(t, "/w==", FormatValue("jpegPhoto", mapping.Binary([]byte{0xff})))
}
