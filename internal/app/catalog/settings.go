package catalog

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// decodeSettings decodes provider settings from config, applies defaults and
// validates the result.
func decodeSettings[T any](settings map[string]any) (*T, error) {
	var config T
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("provider settings validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &config, nil
}
