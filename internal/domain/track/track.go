// Package track provides the Track domain entity.
package track

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/osa030/openfm/internal/domain/mood"
)

// DefaultArtist is used for tracks whose source carries no artist tag.
const DefaultArtist = "OpenFM"

// DefaultDurationSec is assumed when a track's length cannot be probed.
const DefaultDurationSec = 180.0

// Track is an immutable, playable audio item belonging to exactly one mood.
type Track struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Mood     mood.ID `json:"mood"`
	Duration float64 `json:"duration"` // seconds
	Locator  string  `json:"filePath"` // file path, s3://bucket/key or URL
	Artwork  string  `json:"artwork,omitempty"`
}

// Length returns the duration as a time.Duration.
func (t Track) Length() time.Duration {
	return time.Duration(t.Duration * float64(time.Second))
}

// IsZero reports whether t is the zero Track.
func (t Track) IsZero() bool {
	return t.ID == ""
}

// MakeID builds the stable track ID for a file inside a mood pack.
func MakeID(m mood.ID, fileName string) string {
	return string(m) + "-" + fileName
}

// TitleFromFile derives a display title from a file name: the extension is
// dropped and underscores become spaces.
func TitleFromFile(fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}

// IDs returns the IDs of the given tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
