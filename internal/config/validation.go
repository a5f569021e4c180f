package config

import (
	"strings"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// normalize maps free-form enum spellings before defaults are applied.
func (c *Config) normalize() error {
	if c.Generation.Provider != "" {
		p, err := providerNormalizer.NormalizeWithError(string(c.Generation.Provider))
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid generation.provider").Fatal().Build()
		}
		c.Generation.Provider = p
	}
	if c.Storage.Driver != "" {
		d, err := storageNormalizer.NormalizeWithError(string(c.Storage.Driver))
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid storage.driver").Fatal().Build()
		}
		c.Storage.Driver = d
	}
	if c.Retry.Mode != "" {
		m, err := retryNormalizer.NormalizeWithError(string(c.Retry.Mode))
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid retry.mode").Fatal().Build()
		}
		c.Retry.Mode = m
	}
	return nil
}

// Validate checks cross-field invariants after defaults are applied.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.ConfigError("retry.max_attempts must be at least 1").Build()
	}
	if c.Retry.Initial < 0 || c.Retry.Max < 0 {
		return errors.ConfigError("retry delays cannot be negative").Build()
	}
	if c.Server.StreamKeepAlive < 0 {
		return errors.ConfigError("server.stream_keepalive cannot be negative").Build()
	}
	if c.Generation.MaxTokens < 1 {
		return errors.ConfigError("generation.max_tokens must be positive").Build()
	}
	switch c.Storage.Driver {
	case StorageSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.ConfigError("storage.path is required for sqlite").Build()
		}
	case StorageMongo:
		if strings.TrimSpace(c.Storage.MongoURI) == "" {
			return errors.ConfigError("storage.mongo_uri is required for mongo").Build()
		}
	}
	if c.Notify.Enabled && strings.TrimSpace(c.Notify.NATSURL) == "" {
		return errors.ConfigError("notify.nats_url is required when notify is enabled").Build()
	}
	prefix := c.Preview.AssetPrefix
	if strings.Contains(prefix, "://") || strings.HasPrefix(prefix, "/") {
		return errors.ConfigError("preview.asset_prefix must be a relative path prefix").WithContext("asset_prefix", prefix).Build()
	}
	return nil
}
