package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitHouseNumber(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantUnit  string
		wantRest  string
		wantMatch bool
	}{
		{name: "plain number", line: "14 Tadcaster Road", wantUnit: "14", wantRest: "Tadcaster Road", wantMatch: true},
		{name: "number with letter", line: "7a Mill Lane", wantUnit: "7a", wantRest: "Mill Lane", wantMatch: true},
		{name: "range", line: "12-14 High Street", wantUnit: "12-14", wantRest: "High Street", wantMatch: true},
		{name: "slash separated", line: "3/1 Canal Walk", wantUnit: "3/1", wantRest: "Canal Walk", wantMatch: true},
		{name: "spaced range", line: "12 - 14 High Street", wantUnit: "12 - 14", wantRest: "High Street", wantMatch: true},
		{name: "no leading unit", line: "Smith & Co Ltd", wantMatch: false},
		{name: "letter first", line: "Flat 2 Brook Street", wantMatch: false},
		{name: "bare number", line: "14", wantMatch: false},
		{name: "empty", line: "", wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, rest, ok := SplitHouseNumber(tt.line)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.Equal(t, tt.wantUnit, unit)
				assert.Equal(t, tt.wantRest, rest)
			}
		})
	}
}

func TestIsPOBox(t *testing.T) {
	assert.True(t, IsPOBox("PO Box 42"))
	assert.True(t, IsPOBox("po box 7"))
	assert.True(t, IsPOBox("Returns, PO BOX 100, Leeds"))
	assert.False(t, IsPOBox("14 Tadcaster Road"))
	assert.False(t, IsPOBox("Postbox Cottage"))
	assert.False(t, IsPOBox(""))
}

func TestIsOrganisation(t *testing.T) {
	assert.True(t, IsOrganisation("Smith & Co Ltd"))
	assert.True(t, IsOrganisation("ACME PLC"))
	assert.True(t, IsOrganisation("PO Box 42"))
	assert.True(t, IsOrganisation("smith & co ltd"))
	assert.False(t, IsOrganisation("Mill Lane"))
	assert.False(t, IsOrganisation("Brook Street"))
	assert.False(t, IsOrganisation(""))
}

func TestContainsFold(t *testing.T) {
	assert.True(t, containsFold("14 Tadcaster Road", "tadcaster road"))
	assert.True(t, containsFold("UNIT 5 BROOK STREET", "Brook Street"))
	assert.False(t, containsFold("14 Tadcaster Road", "Mill Lane"))
	// The empty string is a substring of everything; the house-identifier
	// rule for PO box addresses depends on this.
	assert.True(t, containsFold("PO Box 42", ""))
}
