// Package library provides the mood pack and library domain entities.
package library

import (
	"github.com/samber/lo"

	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
)

// Mood is one mood pack: the tracks available for a mood.
type Mood struct {
	ID      mood.ID       `json:"id"`
	Name    string        `json:"name"`
	Path    string        `json:"path"`
	Artwork string        `json:"artwork,omitempty"`
	Tracks  []track.Track `json:"tracks"`
	Enabled bool          `json:"enabled"`
}

// TrackIDs returns all track IDs in the pack.
func (m *Mood) TrackIDs() []string {
	return track.IDs(m.Tracks)
}

// TotalDuration returns the total duration of all tracks in seconds.
func (m *Mood) TotalDuration() float64 {
	return lo.SumBy(m.Tracks, func(t track.Track) float64 { return t.Duration })
}

// Library is the ordered set of mood packs.
type Library []Mood

// Find returns the pack for a mood.
func (l Library) Find(id mood.ID) (Mood, bool) {
	return lo.Find(l, func(m Mood) bool { return m.ID == id })
}

// Tracks returns the tracks of a mood, or nil when the pack is absent or disabled.
func (l Library) Tracks(id mood.ID) []track.Track {
	m, ok := l.Find(id)
	if !ok || !m.Enabled {
		return nil
	}
	return m.Tracks
}

// Track looks up a track by ID across all packs.
func (l Library) Track(id string) (track.Track, bool) {
	for _, m := range l {
		if t, ok := lo.Find(m.Tracks, func(t track.Track) bool { return t.ID == id }); ok {
			return t, true
		}
	}
	return track.Track{}, false
}

// TrackCount returns the number of tracks across all packs.
func (l Library) TrackCount() int {
	return lo.SumBy(l, func(m Mood) int { return len(m.Tracks) })
}

// Clone returns a copy whose pack and track slices are not shared with l.
func (l Library) Clone() Library {
	if l == nil {
		return nil
	}
	out := make(Library, len(l))
	for i, m := range l {
		m.Tracks = append([]track.Track(nil), m.Tracks...)
		out[i] = m
	}
	return out
}
