// Package manifest models the billboard display manifest: the JSON
// document on the CDN that lists every logo asset and the fleet-wide
// display settings. Devices poll it; the console mutates it through the
// CDN publisher.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/vantagesign/signdeck/internal/errors"
)

// Logo is one displayable asset on the CDN.
type Logo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Order      int       `json:"order"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Schedule is the daily on/off window in "HH:MM" local time. Empty means
// always on.
type Schedule struct {
	On  string `json:"on,omitempty"`
	Off string `json:"off,omitempty"`
}

// Settings holds the fleet-wide display settings.
type Settings struct {
	RotationSeconds int      `json:"rotation_seconds"`
	Brightness      int      `json:"brightness"`
	Theme           string   `json:"theme,omitempty"`
	Schedule        Schedule `json:"schedule"`
}

// DefaultSettings are applied when the CDN has no manifest yet.
func DefaultSettings() Settings {
	return Settings{
		RotationSeconds: 10,
		Brightness:      80,
		Theme:           "dark",
	}
}

// Manifest is the document published to the CDN.
type Manifest struct {
	Logos     []Logo    `json:"logos"`
	Settings  Settings  `json:"settings"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty manifest with default settings, used when the CDN
// copy does not exist yet.
func New() *Manifest {
	return &Manifest{Settings: DefaultSettings()}
}

// Parse decodes manifest JSON. Unknown fields are tolerated so older
// consoles and newer device firmware can share one document. An empty or
// all-whitespace blob parses as a fresh manifest.
func Parse(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Settings == (Settings{}) {
		m.Settings = DefaultSettings()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Encode renders the manifest deterministically: logos sorted by Order
// then ID, two-space indentation, trailing newline. Publishing the same
// state twice produces byte-identical blobs, which keeps the CDN history
// free of no-op commits.
func (m *Manifest) Encode() ([]byte, error) {
	sort.SliceStable(m.Logos, func(i, j int) bool {
		if m.Logos[i].Order != m.Logos[j].Order {
			return m.Logos[i].Order < m.Logos[j].Order
		}
		return m.Logos[i].ID < m.Logos[j].ID
	})

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Validate checks the manifest invariants, principally logo ID uniqueness.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Logos))
	for _, logo := range m.Logos {
		if logo.ID == "" {
			return errors.NewValidation("logo_missing_id", "logo with empty id")
		}
		if _, dup := seen[logo.ID]; dup {
			return errors.NewValidation("logo_duplicate_id",
				fmt.Sprintf("duplicate logo id %q", logo.ID))
		}
		seen[logo.ID] = struct{}{}
	}
	return nil
}

// Find returns the logo with the given ID.
func (m *Manifest) Find(id string) (Logo, bool) {
	for _, logo := range m.Logos {
		if logo.ID == id {
			return logo, true
		}
	}
	return Logo{}, false
}

// Add appends a logo. Adding an ID that already exists is an error; use
// Replace for explicit overwrites.
func (m *Manifest) Add(logo Logo) error {
	if logo.ID == "" {
		return errors.NewValidation("logo_missing_id", "logo with empty id")
	}
	if _, exists := m.Find(logo.ID); exists {
		return fmt.Errorf("logo %q: %w", logo.ID, errors.ErrAlreadyExists)
	}
	if logo.Order == 0 {
		logo.Order = m.nextOrder()
	}
	m.Logos = append(m.Logos, logo)
	m.UpdatedAt = logo.UploadedAt
	return nil
}

// Replace swaps the logo with the same ID, keeping its Order unless the
// replacement sets one.
func (m *Manifest) Replace(logo Logo) error {
	for i, existing := range m.Logos {
		if existing.ID == logo.ID {
			if logo.Order == 0 {
				logo.Order = existing.Order
			}
			m.Logos[i] = logo
			m.UpdatedAt = logo.UploadedAt
			return nil
		}
	}
	return fmt.Errorf("logo %q: %w", logo.ID, errors.ErrNotFound)
}

// Upsert adds the logo, or replaces it when the ID is already present.
func (m *Manifest) Upsert(logo Logo) error {
	if _, exists := m.Find(logo.ID); exists {
		return m.Replace(logo)
	}
	return m.Add(logo)
}

// Remove deletes the logo with the given ID.
func (m *Manifest) Remove(id string, now time.Time) error {
	for i, logo := range m.Logos {
		if logo.ID == id {
			m.Logos = append(m.Logos[:i], m.Logos[i+1:]...)
			m.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("logo %q: %w", id, errors.ErrNotFound)
}

func (m *Manifest) nextOrder() int {
	max := 0
	for _, logo := range m.Logos {
		if logo.Order > max {
			max = logo.Order
		}
	}
	return max + 1
}
