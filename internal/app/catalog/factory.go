package catalog

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/infra/config"
)

// Deps are the clients providers may need. Any of them may be nil when not
// configured; a provider that needs a missing one fails to build.
type Deps struct {
	Prober  Prober
	Bucket  ObjectLister
	Spotify PlaylistSource
}

// NewProvider creates a provider of the given type.
func NewProvider(typ string, settings map[string]any, deps Deps) (Provider, error) {
	switch typ {
	case "dir":
		return NewDirProvider(deps.Prober, settings)
	case "bucket":
		return NewBucketProvider(deps.Bucket, settings)
	case "spotify":
		return NewSpotifyProvider(deps.Spotify, settings)
	default:
		return nil, errors.Newf("unsupported provider type: %s", typ)
	}
}

// NewCatalogFromConfig creates a catalog from the library provider section.
func NewCatalogFromConfig(cfg *config.Config, deps Deps) (*Catalog, error) {
	if len(cfg.Library.Providers) == 0 {
		return nil, errors.New("no library providers configured")
	}

	providers := make(map[state.Mode]Provider, len(cfg.Library.Providers))
	for name, pcfg := range cfg.Library.Providers {
		mode, err := state.ParseMode(name)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid provider mode %q", name)
		}

		zlog.Debug().Msgf("creating library provider: mode=%s type=%s settings=%+v", mode, pcfg.Type, pcfg.Settings)
		p, err := NewProvider(pcfg.Type, pcfg.Settings, deps)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (mode %s, type %s)", mode, pcfg.Type)
		}
		providers[mode] = p
		zlog.Info().Msgf("registered library provider: mode=%s type=%s", mode, pcfg.Type)
	}

	return NewCatalog(providers), nil
}
