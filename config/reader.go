package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/navbot/navbot/logging"
)

// Read reads a config from the given file. Environment variables in the file are expanded.
func Read(ctx context.Context, filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from. The format follows the
// extension of originalPath: .yaml/.yml, .toml, anything else is JSON.
func FromReader(ctx context.Context, originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	attributes, err := decodeAttributes(originalPath, r)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %s", originalPath)
	}

	var cfg Config
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &cfg,
		Metadata:   &md,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrapf(err, "cannot decode config %s", originalPath)
	}

	sort.Strings(md.Unused)
	for _, key := range md.Unused {
		logger.CWarnw(ctx, "unused config key", "key", key, "path", originalPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", originalPath)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func decodeAttributes(originalPath string, r io.Reader) (map[string]interface{}, error) {
	var attributes map[string]interface{}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(&attributes); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.NewDecoder(r).Decode(&attributes); err != nil {
			return nil, err
		}
	default:
		if err := json.NewDecoder(r).Decode(&attributes); err != nil {
			return nil, err
		}
	}
	return attributes, nil
}
