package survey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUniqueID(t *testing.T) {
	valid := []string{
		"101-201-5-A-5",
		"101-201-12-B2-roll 7",
		"1234-56789-1-a-X",
	}
	invalid := []string{
		"",
		"10-20-13-A-5",
		"101-201-13-A-5",
		"101-201-0-A-5",
		"101-201-+5-A-5",
		"101-201-5-A_1-5",
		"101-201-5-ABCDEFGHIJK-5",
		"101-201-5-A-",
		"101-201-5-A-5-6",
		"101-201-5-A",
		"101-201-5-A-" + strings.Repeat("9", 21),
		"101-201-5-A-line\nbreak",
	}
	for _, id := range valid {
		assert.True(t, ValidateUniqueID(id), "ValidateUniqueID(%q)", id)
	}
	for _, id := range invalid {
		assert.False(t, ValidateUniqueID(id), "ValidateUniqueID(%q)", id)
	}
}

func TestParseUniqueIDRoundTrip(t *testing.T) {
	id, ok := ParseUniqueID("101-201-5-A-17")
	require.True(t, ok)
	assert.Equal(t, UniqueID{DistrictCode: "101", SchoolCode: "201", Class: 5, Section: "A", RollNo: "17"}, id)
	assert.Equal(t, "101-201-5-A-17", id.String())
}
