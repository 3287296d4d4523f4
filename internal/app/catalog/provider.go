// Package catalog provides the library providers that build mood packs from
// a directory tree, an object store bucket or Spotify playlists, and the
// catalog that picks a provider per source mode.
package catalog

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
)

// Provider scans a library root into one mood pack per mood.
type Provider interface {
	Scan(ctx context.Context, root string) (library.Library, error)

	// Name returns the provider type (used in config).
	Name() string
}

// Catalog maps each source mode to its provider.
type Catalog struct {
	providers map[state.Mode]Provider
}

// NewCatalog creates a catalog.
func NewCatalog(providers map[state.Mode]Provider) *Catalog {
	return &Catalog{providers: providers}
}

// Load scans the library for mode.
func (c *Catalog) Load(ctx context.Context, mode state.Mode, root string) (library.Library, error) {
	p, ok := c.providers[mode]
	if !ok {
		return nil, errors.Newf("no library provider for mode %s", mode)
	}

	lib, err := p.Scan(ctx, root)
	if err != nil {
		return nil, errors.Wrapf(err, "%s provider scan failed", p.Name())
	}
	zlog.Info().Msgf("catalog: scanned: mode=%s provider=%s root=%s tracks=%d", mode, p.Name(), root, lib.TrackCount())
	return lib, nil
}

// Modes returns the modes that have a provider.
func (c *Catalog) Modes() []state.Mode {
	modes := lo.Keys(c.providers)
	slices.Sort(modes)
	return modes
}

// Provider returns the provider for a mode.
func (c *Catalog) Provider(mode state.Mode) (Provider, bool) {
	p, ok := c.providers[mode]
	return p, ok
}

// pack builds a mood pack; it is enabled when it has tracks.
func pack(m mood.ID, path, artwork string, tracks []track.Track) library.Mood {
	if tracks == nil {
		tracks = []track.Track{}
	}
	return library.Mood{
		ID:      m,
		Name:    m.Label(),
		Path:    path,
		Artwork: artwork,
		Tracks:  tracks,
		Enabled: len(tracks) > 0,
	}
}
