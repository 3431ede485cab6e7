package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseMatchesExact(t *testing.T) {
	got := CloseMatches("Tadcaster Road", []string{"Tadcaster Road", "Heworth Green"}, 3, 0.9)
	assert.Equal(t, []string{"Tadcaster Road"}, got)
}

func TestCloseMatchesPrefixedLine(t *testing.T) {
	// A house number prefix still leaves the ratio above 0.9 for a long
	// road name.
	got := CloseMatches("14 Tadcaster Road", []string{"Tadcaster Road", "Boar Lane"}, 3, 0.9)
	assert.Equal(t, []string{"Tadcaster Road"}, got)
}

func TestCloseMatchesRespectsCutoff(t *testing.T) {
	got := CloseMatches("Brook Street", []string{"Tadcaster Road", "Heworth Green"}, 3, 0.9)
	assert.Empty(t, got)
}

func TestCloseMatchesBestFirst(t *testing.T) {
	got := CloseMatches("Mill Lane", []string{"Mill Lanes", "Mill Lane"}, 3, 0.5)
	assert.Equal(t, "Mill Lane", got[0])
}

func TestCloseMatchesLimitsResults(t *testing.T) {
	candidates := []string{"Mill Lane", "Mill Lanes", "Mill Lane End", "Millers Lane"}
	got := CloseMatches("Mill Lane", candidates, 2, 0.5)
	assert.Len(t, got, 2)
}

func TestCloseMatchesLowCutoffNameSearch(t *testing.T) {
	// The constituency name search runs the same matcher with a loose
	// cutoff.
	constituencies := []string{"York Central", "York Outer", "Leeds North East", "Sheffield Hallam"}
	got := CloseMatches("york", constituencies, 5, 0.3)
	assert.Contains(t, got, "York Outer")
	assert.Contains(t, got, "York Central")
}

func TestCloseMatchesEmptyInputs(t *testing.T) {
	assert.Nil(t, CloseMatches("Mill Lane", nil, 3, 0.9))
	assert.Nil(t, CloseMatches("Mill Lane", []string{"Mill Lane"}, 0, 0.9))
}

func TestBestMatch(t *testing.T) {
	assert.Equal(t, "Tadcaster Road", BestMatch("14 Tadcaster Road", []string{"Tadcaster Road"}, 0.9))
	assert.Equal(t, "", BestMatch("Brook Street", []string{"Tadcaster Road"}, 0.9))
}
