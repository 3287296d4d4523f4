// Package spotify provides a read-only client for Spotify playlists, used as
// the alternate track source.
package spotify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
)

// TrackIDPrefix namespaces Spotify track IDs so they never collide with
// local file IDs.
const TrackIDPrefix = "spotify-"

const pageSize = 100

// Client reads playlists through the Spotify Web API.
type Client struct {
	client   *spotify.Client
	market   string
	attempts int
	backoff  time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// Scopes are the OAuth scopes the client needs.
var Scopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// The refresh token is exchanged on first use.
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	httpClient := auth.Client(ctx, token)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:   spotify.New(httpClient, spotify.WithRetry(true)),
		market:   market,
		attempts: 3,
		backoff:  time.Second,
	}, nil
}

// PlaylistTracks retrieves every playable track of a playlist, tagged with m.
func (c *Client) PlaylistTracks(ctx context.Context, playlistURL string, m mood.ID) ([]track.Track, error) {
	id, err := ParsePlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	var tracks []track.Track
	for offset := 0; ; offset += pageSize {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			var err error
			page, err = c.client.GetPlaylistItems(ctx, id,
				spotify.Limit(pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get playlist items: playlist=%s", id)
		}

		for _, item := range page.Items {
			// Episodes carry no Track.
			t := item.Track.Track
			if t == nil || t.ID == "" {
				continue
			}
			if t.IsPlayable != nil && !*t.IsPlayable {
				continue
			}
			tracks = append(tracks, c.convertTrack(t, m))
		}

		if len(page.Items) < pageSize {
			break
		}
	}

	zlog.Debug().Msgf("spotify: playlist loaded: playlist=%s mood=%s tracks=%d", id, m, len(tracks))
	return tracks, nil
}

func (c *Client) convertTrack(t *spotify.FullTrack, m mood.ID) track.Track {
	artist := strings.Join(lo.Map(t.Artists, func(a spotify.SimpleArtist, _ int) string { return a.Name }), ", ")
	if artist == "" {
		artist = track.DefaultArtist
	}

	var artwork string
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}

	return track.Track{
		ID:       TrackIDPrefix + string(t.ID),
		Title:    t.Name,
		Artist:   artist,
		Mood:     m,
		Duration: float64(t.Duration) / 1000,
		Locator:  TrackURL(string(t.ID)),
		Artwork:  artwork,
	}
}

// TrackURL returns the Spotify URL for a track.
func TrackURL(trackID string) string {
	return "https://open.spotify.com/track/" + trackID
}

// retry runs fn until it succeeds, fails permanently or attempts run out.
// The wait grows linearly and is cut short by ctx.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = fn(); err == nil || !isRetryable(err) {
			return err
		}
		if attempt == c.attempts {
			break
		}
		wait := c.backoff * time.Duration(attempt)
		zlog.Debug().Err(err).Msgf("spotify: retrying in %v: attempt=%d", wait, attempt)
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "spotify: retry aborted")
		case <-time.After(wait):
		}
	}
	return errors.Wrapf(err, "spotify: gave up after %d attempts", c.attempts)
}

// isRetryable reports whether err is a server-side failure. Rate limits are
// left to the library, which waits out Retry-After itself.
func isRetryable(err error) bool {
	var apiErr spotify.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= http.StatusInternalServerError
}

// ParsePlaylistID accepts a bare playlist ID, a spotify:playlist: URI or an
// open.spotify.com link (localized paths and query strings included).
func ParsePlaylistID(input string) (spotify.ID, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty playlist reference")
	}
	if id, ok := strings.CutPrefix(input, "spotify:playlist:"); ok {
		return spotify.ID(id), nil
	}
	if !strings.Contains(input, "/") {
		return spotify.ID(input), nil
	}

	u, err := url.Parse(input)
	if err != nil || u.Host != "open.spotify.com" {
		return "", errors.Newf("not a spotify playlist link: %q", input)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "playlist" && i+1 < len(segments) && segments[i+1] != "" {
			return spotify.ID(segments[i+1]), nil
		}
	}
	return "", errors.Newf("not a spotify playlist link: %q", input)
}
