package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesign/signdeck/internal/errors"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func logoNamed(id string, order int) Logo {
	return Logo{
		ID:         id,
		Name:       id + ".png",
		URL:        "https://cdn.example.com/logos/" + id + ".png",
		Order:      order,
		UploadedAt: testTime,
	}
}

func TestParseEmptyIsFresh(t *testing.T) {
	for _, blob := range [][]byte{nil, {}, []byte("  \n")} {
		m, err := Parse(blob)
		require.NoError(t, err)
		assert.Empty(t, m.Logos)
		assert.Equal(t, DefaultSettings(), m.Settings)
	}
}

func TestParseToleratesUnknownFields(t *testing.T) {
	blob := []byte(`{
		"logos": [{"id": "acme", "name": "acme.png", "url": "https://cdn/x.png", "order": 1, "firmware_hint": "v2"}],
		"settings": {"rotation_seconds": 15, "brightness": 70, "legacy_field": true},
		"updated_at": "2026-03-14T09:30:00Z"
	}`)

	m, err := Parse(blob)
	require.NoError(t, err)
	require.Len(t, m.Logos, 1)
	assert.Equal(t, "acme", m.Logos[0].ID)
	assert.Equal(t, 15, m.Settings.RotationSeconds)
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	blob := []byte(`{"logos": [{"id": "a", "order": 1}, {"id": "a", "order": 2}]}`)
	_, err := Parse(blob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate logo id "a"`)
}

func TestAddRejectsDuplicate(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(logoNamed("acme", 1)))

	err := m.Add(logoNamed("acme", 2))
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
	assert.Len(t, m.Logos, 1)
}

func TestAddAssignsNextOrder(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(logoNamed("first", 3)))

	unordered := logoNamed("second", 0)
	require.NoError(t, m.Add(unordered))

	got, ok := m.Find("second")
	require.True(t, ok)
	assert.Equal(t, 4, got.Order)
}

func TestReplaceKeepsOrder(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(logoNamed("acme", 7)))

	replacement := logoNamed("acme", 0)
	replacement.URL = "https://cdn.example.com/logos/acme-v2.png"
	require.NoError(t, m.Replace(replacement))

	got, ok := m.Find("acme")
	require.True(t, ok)
	assert.Equal(t, 7, got.Order)
	assert.Equal(t, "https://cdn.example.com/logos/acme-v2.png", got.URL)
}

func TestReplaceMissing(t *testing.T) {
	m := New()
	err := m.Replace(logoNamed("ghost", 1))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRemove(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(logoNamed("a", 1)))
	require.NoError(t, m.Add(logoNamed("b", 2)))

	require.NoError(t, m.Remove("a", testTime))
	assert.Len(t, m.Logos, 1)
	assert.ErrorIs(t, m.Remove("a", testTime), errors.ErrNotFound)
}

func TestEncodeDeterministic(t *testing.T) {
	// Each ID keeps the same order regardless of insertion position, so
	// the two builds describe the same logical document.
	orders := map[string]int{"x": 3, "y": 2, "z": 1}
	build := func(order []string) *Manifest {
		m := New()
		for _, id := range order {
			require.NoError(t, m.Add(logoNamed(id, orders[id])))
		}
		return m
	}

	a, err := build([]string{"x", "y", "z"}).Encode()
	require.NoError(t, err)
	b, err := build([]string{"z", "y", "x"}).Encode()
	require.NoError(t, err)

	// Same logical content encodes identically regardless of insertion
	// order, and a round trip is stable.
	assert.Equal(t, string(a), string(b))

	reparsed, err := Parse(a)
	require.NoError(t, err)
	again, err := reparsed.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(again))
}

func TestSlugID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp.png", "acme-corp"},
		{"logos/Acme Corp.png", "acme-corp"},
		{"Café-Brand.JPEG", "cafe-brand"},
		{"__weird__name__.svg", "weird-name"},
		{"2024 campaign (final).webp", "2024-campaign-final"},
		{"ümlaut.png", "umlaut"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SlugID(tt.in), "input %q", tt.in)
	}
}
