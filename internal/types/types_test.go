package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostcodeNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Postcode
		want Postcode
	}{
		{name: "strips single space", in: "YO31 1EB", want: "YO311EB"},
		{name: "uppercases", in: "yo31 1eb", want: "YO311EB"},
		{name: "strips multiple spaces", in: " SW1A  2AA ", want: "SW1A2AA"},
		{name: "already normalized", in: "EC1A1BB", want: "EC1A1BB"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPostcodeDistrict(t *testing.T) {
	tests := []struct {
		name string
		in   Postcode
		want District
	}{
		{name: "four character district", in: "YO31 1EB", want: "YO31"},
		{name: "two character district", in: "M1 1AE", want: "M1"},
		{name: "subdistrict letter retained", in: "EC1A 1BB", want: "EC1A"},
		{name: "formatted with lowercase", in: "sw1a 2aa", want: "SW1A"},
		{name: "too short yields empty", in: "M1", want: ""},
		{name: "empty yields empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.District())
		})
	}
}

func TestPostcodeValidForLookup(t *testing.T) {
	assert.True(t, Postcode("M1 1AE").ValidForLookup())
	assert.True(t, Postcode("YO31 1EB").ValidForLookup())
	assert.False(t, Postcode("M1").ValidForLookup())
	assert.False(t, Postcode("YO31").ValidForLookup())
	assert.False(t, Postcode("").ValidForLookup())
}
