package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
)

// PlaylistSource fetches the tracks of a playlist.
type PlaylistSource interface {
	PlaylistTracks(ctx context.Context, playlistURL string, m mood.ID) ([]track.Track, error)
}

// SpotifyProviderConfig maps moods to playlist URLs.
type SpotifyProviderConfig struct {
	Playlists map[string]string `yaml:"playlists" mapstructure:"playlists" validate:"required,min=1,dive,keys,oneof=epic romantic funny scary sad,endkeys,required"`
}

// SpotifyProvider builds one pack per mood from a configured playlist.
// The library root is ignored.
type SpotifyProvider struct {
	spotify PlaylistSource
	config  *SpotifyProviderConfig
}

// NewSpotifyProvider creates a new SpotifyProvider.
func NewSpotifyProvider(spotify PlaylistSource, settings map[string]any) (*SpotifyProvider, error) {
	if spotify == nil {
		return nil, errors.New("spotify provider requires spotify credentials")
	}
	config, err := decodeSettings[SpotifyProviderConfig](settings)
	if err != nil {
		return nil, err
	}
	return &SpotifyProvider{spotify: spotify, config: config}, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}

// Scan fetches every configured playlist. Moods without a playlist get a
// disabled pack.
func (p *SpotifyProvider) Scan(ctx context.Context, _ string) (library.Library, error) {
	lib := make(library.Library, 0, len(mood.All()))
	for _, m := range mood.All() {
		url, ok := p.config.Playlists[string(m)]
		if !ok {
			lib = append(lib, pack(m, "", "", nil))
			continue
		}

		tracks, err := p.spotify.PlaylistTracks(ctx, url, m)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load playlist for mood %s", m)
		}

		var artwork string
		if len(tracks) > 0 {
			artwork = tracks[0].Artwork
		}
		zlog.Debug().Msgf("catalog: playlist loaded: mood=%s tracks=%d", m, len(tracks))
		lib = append(lib, pack(m, url, artwork, tracks))
	}
	return lib, nil
}
