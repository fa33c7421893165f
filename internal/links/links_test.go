package links

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	b, err := NewBuilder("https://refs.example.com/app/", "")
	require.NoError(t, err)

	assert.Equal(t, "https://refs.example.com/app/respond/consent?token=abc", b.Consent("abc"))
	assert.Equal(t, "https://refs.example.com/app/respond/answer?token=abc", b.Answer("abc"))
	assert.Equal(t, "https://refs.example.com/app/respond/reject?token=abc", b.Reject("abc"))
}

func TestBuilderEscapesAndTags(t *testing.T) {
	b, err := NewBuilder("http://localhost:5173", "email")
	require.NoError(t, err)

	raw := b.Consent("a b&c")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/respond/consent", u.Path)
	assert.Equal(t, "a b&c", u.Query().Get("token"))
	assert.Equal(t, "email", u.Query().Get("utm_source"))
}

func TestNewBuilderRejectsRelative(t *testing.T) {
	_, err := NewBuilder("localhost:5173", "")
	assert.Error(t, err)

	_, err = NewBuilder("/respond", "")
	assert.Error(t, err)
}
