package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNameFromEmail(t *testing.T) {
	tests := []struct {
		address string
		first   string
		last    string
	}{
		{"marta.moreno@example.com", "Marta", "Moreno"},
		{"jo_van-dam@example.com", "Jo", "Dam"},
		{"single@example.com", "Single", "User"},
		{"plus+tag@example.com", "Plus", "Tag"},
		{"@example.com", "User", "User"},
		{"", "User", "User"},
	}
	for _, tc := range tests {
		first, last := DeriveNameFromEmail(tc.address)
		assert.Equal(t, tc.first, first, tc.address)
		assert.Equal(t, tc.last, last, tc.address)
	}
}
