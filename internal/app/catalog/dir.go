package catalog

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
)

// DirProviderConfig configures the directory provider.
type DirProviderConfig struct {
	Extensions      []string `yaml:"extensions" mapstructure:"extensions" default:"[\".mp3\",\".wav\",\".ogg\",\".m4a\",\".flac\"]" validate:"min=1,dive,startswith=."`
	Artwork         string   `yaml:"artwork" mapstructure:"artwork" default:"artwork.png"`
	DefaultDuration float64  `yaml:"default_duration" mapstructure:"default_duration" default:"180" validate:"gt=0"`
	SkipProbe       bool     `yaml:"skip_probe" mapstructure:"skip_probe"`
}

// Prober reads a track's length from its audio data.
type Prober interface {
	Probe(path string) (time.Duration, error)
}

// DirProvider scans <root>/<mood>/ directories for audio files.
type DirProvider struct {
	config *DirProviderConfig
	prober Prober
}

// NewDirProvider creates a new DirProvider.
func NewDirProvider(prober Prober, settings map[string]any) (*DirProvider, error) {
	config, err := decodeSettings[DirProviderConfig](settings)
	if err != nil {
		return nil, err
	}
	config.Extensions = lowerAll(config.Extensions)
	zlog.Debug().Msgf("dir provider config: %+v", *config)
	return &DirProvider{config: config, prober: prober}, nil
}

// Name returns the provider name.
func (p *DirProvider) Name() string {
	return "dir"
}

// Scan builds one pack per mood. A missing mood directory yields a disabled
// pack; a missing root is an error.
func (p *DirProvider) Scan(ctx context.Context, root string) (library.Library, error) {
	if root == "" {
		return nil, errors.New("library root is not set")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat library root %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Newf("library root %s is not a directory", root)
	}

	lib := make(library.Library, 0, len(mood.All()))
	for _, m := range mood.All() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "scan cancelled")
		}
		mp, err := p.scanMood(root, m)
		if err != nil {
			return nil, err
		}
		lib = append(lib, mp)
	}
	return lib, nil
}

func (p *DirProvider) scanMood(root string, m mood.ID) (library.Mood, error) {
	dir := filepath.Join(root, string(m))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return pack(m, dir, "", nil), nil
		}
		return library.Mood{}, errors.Wrapf(err, "failed to read mood directory %s", dir)
	}

	var artwork string
	var tracks []track.Track
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(dir, name)
		if p.config.Artwork != "" && strings.EqualFold(name, p.config.Artwork) {
			artwork = path
			continue
		}
		if !slices.Contains(p.config.Extensions, strings.ToLower(filepath.Ext(name))) {
			continue
		}
		tracks = append(tracks, track.Track{
			ID:       track.MakeID(m, name),
			Title:    track.TitleFromFile(name),
			Artist:   track.DefaultArtist,
			Mood:     m,
			Duration: p.duration(path),
			Locator:  path,
		})
	}

	// Artwork applies to every track in the pack.
	for i := range tracks {
		tracks[i].Artwork = artwork
	}
	return pack(m, dir, artwork, tracks), nil
}

func (p *DirProvider) duration(path string) float64 {
	if p.config.SkipProbe || p.prober == nil {
		return p.config.DefaultDuration
	}
	d, err := p.prober.Probe(path)
	if err != nil || d <= 0 {
		zlog.Debug().Msgf("catalog: duration probe failed, using default: path=%s err=%v", path, err)
		return p.config.DefaultDuration
	}
	return d.Seconds()
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
