package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"kim@example.com", true},
		{"  kim@example.co.kr ", true},
		{"kim@example", false},
		{"kim example@test.com", false},
		{"", false},
		{"@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidEmail(tt.email))
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("010-1234-5678"))
	assert.True(t, IsValidPhone("+82 10 1234 5678"))
	assert.True(t, IsValidPhone("(02) 123-4567"))
	assert.False(t, IsValidPhone("12345"))
	assert.False(t, IsValidPhone("010-abcd-5678"))
	assert.False(t, IsValidPhone(""))
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "acme.com", NormalizeDomain(" https://www.ACME.com/careers "))
	assert.Equal(t, "corp.example.co.kr", NormalizeDomain("corp.example.co.kr"))
}

func TestIsValidDomain(t *testing.T) {
	assert.True(t, IsValidDomain("acme.com"))
	assert.True(t, IsValidDomain("https://acme.co.kr/about"))
	assert.False(t, IsValidDomain("acme"))
	assert.False(t, IsValidDomain("-acme.com"))
	assert.False(t, IsValidDomain(""))
}

func TestDates(t *testing.T) {
	got, ok := ParsePeriod("2021-07")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC), got)

	got, ok = ParsePeriod(" 2024-02-29 ")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)

	for _, bad := range []string{"2023-13", "2023-02-29", "July 2021", ""} {
		_, ok = ParsePeriod(bad)
		assert.False(t, ok, bad)
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+821012345678", NormalizePhone("+82 10-1234-5678"))
	assert.Equal(t, "", NormalizePhone("   "))
}
