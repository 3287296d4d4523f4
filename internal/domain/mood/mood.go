// Package mood provides the Mood enumeration and its display metadata.
package mood

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ID identifies a mood.
type ID string

const (
	Epic     ID = "epic"
	Romantic ID = "romantic"
	Funny    ID = "funny"
	Scary    ID = "scary"
	Sad      ID = "sad"
)

// Default is the mood a fresh engine starts with.
const Default = Epic

// ErrUnknown is returned by Parse for an unrecognized tag.
var ErrUnknown = errors.New("unknown mood")

// Config holds display metadata for a mood.
type Config struct {
	ID      ID     `json:"id"`
	Label   string `json:"label"`
	Tagline string `json:"tagline"`
	Color   string `json:"color"`
}

var configs = map[ID]Config{
	Epic:     {ID: Epic, Label: "Epic", Tagline: "Arena-scale crescendos, stream-safe.", Color: "#4A5568"},
	Romantic: {ID: Romantic, Label: "Romantic", Tagline: "Slow-bloom textures wrapped in neon dusk.", Color: "#8B7355"},
	Funny:    {ID: Funny, Label: "Funny", Tagline: "Bouncy chip-pop and curious percussion.", Color: "#2DD4BF"},
	Scary:    {ID: Scary, Label: "Scary", Tagline: "Dark ambience with pulse-raising drones.", Color: "#9B2C2C"},
	Sad:      {ID: Sad, Label: "Sad", Tagline: "Gentle downtempo reflections for late nights.", Color: "#63B3ED"},
}

// All returns every mood in display order.
func All() []ID {
	return []ID{Epic, Romantic, Funny, Scary, Sad}
}

// Valid reports whether id is a known mood.
func (id ID) Valid() bool {
	_, ok := configs[id]
	return ok
}

// String returns the tag.
func (id ID) String() string {
	return string(id)
}

// Config returns the display metadata. Unknown moods get a config whose
// label is the raw tag.
func (id ID) Config() Config {
	if c, ok := configs[id]; ok {
		return c
	}
	return Config{ID: id, Label: string(id)}
}

// Label returns the display label.
func (id ID) Label() string {
	return id.Config().Label
}

// Parse converts a tag (case-insensitive, surrounding space ignored) to an ID.
func Parse(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", errors.Wrapf(ErrUnknown, "%q", s)
	}
	return id, nil
}
