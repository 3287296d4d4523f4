package catalog

import (
	"context"
	"path"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/domain/track"
	"github.com/osa030/openfm/internal/infra/content"
)

// ObjectLister lists objects of one bucket.
type ObjectLister interface {
	Name() string
	List(ctx context.Context, prefix string) ([]content.Object, error)
}

// BucketProviderConfig configures the bucket provider.
type BucketProviderConfig struct {
	Prefix          string   `yaml:"prefix" mapstructure:"prefix"`
	Extensions      []string `yaml:"extensions" mapstructure:"extensions" default:"[\".mp3\",\".wav\",\".ogg\",\".m4a\",\".flac\"]" validate:"min=1,dive,startswith=."`
	Artwork         string   `yaml:"artwork" mapstructure:"artwork" default:"artwork.png"`
	DefaultDuration float64  `yaml:"default_duration" mapstructure:"default_duration" default:"180" validate:"gt=0"`
}

// BucketProvider builds mood packs from <prefix>/<mood>/ objects in a
// MinIO/S3 bucket. Lengths are not probed; renderers report the real one.
type BucketProvider struct {
	bucket ObjectLister
	config *BucketProviderConfig
}

// NewBucketProvider creates a new BucketProvider.
func NewBucketProvider(bucket ObjectLister, settings map[string]any) (*BucketProvider, error) {
	if bucket == nil {
		return nil, errors.New("bucket provider requires content.minio to be configured")
	}
	config, err := decodeSettings[BucketProviderConfig](settings)
	if err != nil {
		return nil, err
	}
	config.Extensions = lowerAll(config.Extensions)
	return &BucketProvider{bucket: bucket, config: config}, nil
}

// Name returns the provider name.
func (p *BucketProvider) Name() string {
	return "bucket"
}

// Scan lists the bucket. A root of the form s3://bucket/prefix overrides
// the configured prefix.
func (p *BucketProvider) Scan(ctx context.Context, root string) (library.Library, error) {
	prefix := p.config.Prefix
	if strings.HasPrefix(root, content.S3Scheme) {
		bucket, key, _ := strings.Cut(strings.TrimPrefix(root, content.S3Scheme), "/")
		if bucket != p.bucket.Name() {
			return nil, errors.Newf("root %s is not in bucket %s", root, p.bucket.Name())
		}
		prefix = key
	}
	prefix = strings.Trim(prefix, "/")

	lib := make(library.Library, 0, len(mood.All()))
	for _, m := range mood.All() {
		dir := path.Join(prefix, string(m)) + "/"
		objects, err := p.bucket.List(ctx, dir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list mood %s", m)
		}

		var artwork string
		var tracks []track.Track
		for _, obj := range objects {
			name := path.Base(obj.Key)
			// Only direct children of the mood prefix.
			if path.Dir(obj.Key)+"/" != dir {
				continue
			}
			locator := content.S3Locator(p.bucket.Name(), obj.Key)
			if p.config.Artwork != "" && strings.EqualFold(name, p.config.Artwork) {
				artwork = locator
				continue
			}
			if !slices.Contains(p.config.Extensions, strings.ToLower(path.Ext(name))) {
				continue
			}
			tracks = append(tracks, track.Track{
				ID:       track.MakeID(m, name),
				Title:    track.TitleFromFile(name),
				Artist:   track.DefaultArtist,
				Mood:     m,
				Duration: p.config.DefaultDuration,
				Locator:  locator,
			})
		}
		slices.SortFunc(tracks, func(a, b track.Track) int { return strings.Compare(a.ID, b.ID) })
		for i := range tracks {
			tracks[i].Artwork = artwork
		}

		lib = append(lib, pack(m, content.S3Locator(p.bucket.Name(), dir), artwork, tracks))
	}

	zlog.Debug().Msgf("catalog: bucket listed: bucket=%s prefix=%s", p.bucket.Name(), prefix)
	return lib, nil
}
