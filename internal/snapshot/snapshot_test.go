package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestEncodeDecodeCurrentVersion(t *testing.T) {
	data, err := Encode(sample{Name: "a", N: 2}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":1`)

	var got sample
	v, err := Decode(data, &got)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, v)
	assert.Equal(t, sample{Name: "a", N: 2}, got)
}

func TestDecodeLegacyPayload(t *testing.T) {
	var got sample
	v, err := Decode([]byte(`{"name":"legacy","n":7}`), &got)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, "legacy", got.Name)

	var step int
	v, err = Decode([]byte(`3`), &step)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 3, step)
}

func TestDecodeRejectsNewerVersion(t *testing.T) {
	var got sample
	_, err := Decode([]byte(`{"version":9,"payload":{"name":"x"}}`), &got)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeGarbage(t *testing.T) {
	var got sample
	_, err := Decode([]byte(`{not json`), &got)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, IsReadFailure(err))
}

func TestIsReadFailure(t *testing.T) {
	assert.False(t, IsReadFailure(nil))
	assert.False(t, IsReadFailure(ErrMissing))
	assert.False(t, IsReadFailure(fmt.Errorf("%w: 9", ErrUnsupportedVersion)))
	assert.True(t, IsReadFailure(errors.New("dial tcp: connection refused")))
	assert.True(t, IsReadFailure(context.DeadlineExceeded))
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestLoadSaveRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := WizardStepKey("user-1")
	assert.Equal(t, "com.refcheck.wizard.user-1.currentStep", key)

	require.NoError(t, Save(ctx, s, key, 4, 0, time.Now()))
	var step int
	_, err := Load(ctx, s, key, &step)
	require.NoError(t, err)
	assert.Equal(t, 4, step)

	require.NoError(t, s.Delete(ctx, key))
	_, err = Load(ctx, s, key, &step)
	assert.ErrorIs(t, err, ErrMissing)
}
