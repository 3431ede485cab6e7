package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constituency-streets/internal/models"
)

func addr(lines ...string) *models.Address {
	a := &models.Address{}
	if len(lines) > 0 {
		a.Line1 = lines[0]
	}
	if len(lines) > 1 {
		a.Line2 = lines[1]
	}
	if len(lines) > 2 {
		a.Line3 = lines[2]
	}
	if len(lines) > 3 {
		a.Line4 = lines[3]
	}
	return a
}

func TestResolveBatchFuzzyMatch(t *testing.T) {
	a := addr("14 Tadcaster Road")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{a}, []string{"Tadcaster Road"})

	assert.Equal(t, "Tadcaster Road", a.Thoroughfare)
	assert.Equal(t, "14", a.HouseIdentifier)
	assert.Equal(t, 1, summary.FuzzyMatched)
}

func TestResolveBatchLaterLinesStillEnrichFoundRoads(t *testing.T) {
	// Line1 fixes the thoroughfare; line2's road must still be discovered
	// for the batch so a substring-only neighbour can use it.
	first := addr("5 Acomb Road", "Tadcaster Road")
	second := addr("Rear of 27 Tadcaster Road Trading Estate")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{first, second},
		[]string{"Acomb Road", "Tadcaster Road"})

	assert.Equal(t, "Acomb Road", first.Thoroughfare, "first match is never overwritten")
	assert.Equal(t, "Tadcaster Road", second.Thoroughfare)
	assert.Equal(t, 1, summary.FuzzyMatched)
	assert.Equal(t, 1, summary.Substring)
}

func TestResolveBatchPOBox(t *testing.T) {
	a := addr("PO Box 42")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{a}, []string{"Box Lane"})

	assert.Equal(t, "", a.Thoroughfare, "PO box addresses get no thoroughfare")
	assert.Equal(t, "PO Box 42", a.HouseIdentifier)
	assert.Equal(t, 1, summary.POBoxes)
	assert.Equal(t, 0, summary.LastResort, "PO box must not fall through to later passes")
}

func TestResolveBatchSubstringFromBatchDiscovery(t *testing.T) {
	// The first address resolves "Brook Street" through the gazetteer; the
	// second has no close match but contains the discovered road in line2.
	first := addr("5 Brook Street")
	second := addr("Smith & Co", "Unit 5 Brook Street")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{first, second}, []string{"Brook Street"})

	assert.Equal(t, "Brook Street", first.Thoroughfare)
	assert.Equal(t, "Brook Street", second.Thoroughfare)
	assert.Equal(t, 1, summary.Substring)
	assert.Equal(t, "Smith & Co", second.HouseIdentifier)
}

func TestResolveBatchSubstringUsesPreLabeled(t *testing.T) {
	labeled := addr("1 Heworth Green")
	labeled.Thoroughfare = "Heworth Green"
	other := addr("The Lodge, Heworth Green")
	r := New(nil)

	r.ResolveBatch([]*models.Address{labeled, other}, nil)

	assert.Equal(t, "Heworth Green", other.Thoroughfare)
}

func TestResolveBatchRegexExtraction(t *testing.T) {
	a := addr("7a Mill Lane")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{a}, nil)

	assert.Equal(t, "Mill Lane", a.Thoroughfare)
	assert.Equal(t, "7a", a.HouseIdentifier)
	assert.Equal(t, 1, summary.RegexParsed)
}

func TestResolveBatchRegexRejectsOrganisations(t *testing.T) {
	a := addr("12 Smith & Co Ltd", "Riverside Walk")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{a}, nil)

	// The regex remainder names an organisation, so the last-resort pass
	// picks the later line instead.
	assert.Equal(t, "Riverside Walk", a.Thoroughfare)
	assert.Equal(t, 0, summary.RegexParsed)
	assert.Equal(t, 1, summary.LastResort)
}

func TestResolveBatchLastResortScansInReverse(t *testing.T) {
	a := addr("The Old Mill", "Acme PLC", "", "Riverside Walk")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{a}, nil)

	assert.Equal(t, "Riverside Walk", a.Thoroughfare)
	assert.Equal(t, 1, summary.LastResort)
	assert.Equal(t, "The Old Mill", a.HouseIdentifier)
}

func TestResolveBatchPassPrecedence(t *testing.T) {
	// A line eligible for both the fuzzy pass and the regex pass must take
	// the fuzzy result and never be overridden.
	a := addr("14 Tadcaster Road")
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{a}, []string{"Tadcaster Road"})

	assert.Equal(t, "Tadcaster Road", a.Thoroughfare)
	assert.Equal(t, 0, summary.RegexParsed)
	assert.Equal(t, 0, summary.LastResort)
}

func TestResolveBatchIdempotent(t *testing.T) {
	addresses := []*models.Address{
		addr("14 Tadcaster Road"),
		addr("PO Box 42"),
		addr("7a Mill Lane"),
		addr("Smith & Co", "Unit 5 Brook Street"),
		addr("5 Brook Street"),
	}
	roads := []string{"Tadcaster Road", "Brook Street"}
	r := New(nil)

	r.ResolveBatch(addresses, roads)

	snapshot := make([]models.Address, len(addresses))
	for i, a := range addresses {
		snapshot[i] = *a
	}

	summary := r.ResolveBatch(addresses, roads)

	for i, a := range addresses {
		assert.Equal(t, snapshot[i], *a, "re-run must not change address %d", i)
	}
	assert.Equal(t, 4, summary.PreLabeled)
	assert.Equal(t, 1, summary.POBoxes)
}

func TestResolveBatchDoesNotTouchOtherFields(t *testing.T) {
	a := addr("14 Tadcaster Road")
	a.LookupID = "abc"
	a.TownOrCity = "York"
	a.County = "North Yorkshire"
	a.Postcode = "YO311EB"
	r := New(nil)

	r.ResolveBatch([]*models.Address{a}, []string{"Tadcaster Road"})

	assert.Equal(t, "abc", a.LookupID)
	assert.Equal(t, "York", a.TownOrCity)
	assert.Equal(t, "North Yorkshire", a.County)
	assert.EqualValues(t, "YO311EB", a.Postcode)
}

func TestHouseIdentifierLaw(t *testing.T) {
	tests := []struct {
		name string
		a    *models.Address
		want string
	}{
		{
			name: "thoroughfare not in line1 takes line1 verbatim",
			a:    &models.Address{Line1: "Smith & Co", Thoroughfare: "Brook Street"},
			want: "Smith & Co",
		},
		{
			name: "unit token extracted when thoroughfare in line1",
			a:    &models.Address{Line1: "14 Tadcaster Road", Thoroughfare: "Tadcaster Road"},
			want: "14",
		},
		{
			name: "line1 fallback when no unit token",
			a:    &models.Address{Line1: "Tadcaster Road", Thoroughfare: "Tadcaster Road"},
			want: "Tadcaster Road",
		},
		{
			name: "empty thoroughfare falls through to regex then line1",
			a:    &models.Address{Line1: "PO Box 42", Thoroughfare: ""},
			want: "PO Box 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveHouseIdentifier(tt.a))
		})
	}
}

func TestResolveBatchUnresolvedWhenAllLinesExcluded(t *testing.T) {
	a := addr("Acme PLC", "PO Box 9 Ltd")
	// Line2 is a PO box, so the fuzzy pass consumes the address.
	r := New(nil)

	summary := r.ResolveBatch([]*models.Address{a}, nil)

	require.Equal(t, 1, summary.POBoxes)
	assert.Equal(t, "", a.Thoroughfare)
}
