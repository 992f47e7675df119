package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/medshare/hub/cmd/core"
	"github.com/medshare/hub/component/audit"
	"github.com/medshare/hub/component/authz"
	"github.com/medshare/hub/component/consent"
	libHTTP "github.com/medshare/hub/component/http"
	"github.com/medshare/hub/component/notification"
	"github.com/medshare/hub/component/relationship"
	"github.com/medshare/hub/component/tracing"
)

const (
	configFile = "config/medshare.yaml"
	envPrefix  = "MEDSHARE_"
)

type Config struct {
	Core          core.Config         `koanf:"core"`
	HTTP          libHTTP.Config      `koanf:"http"`
	Tracing       tracing.Config      `koanf:"tracing"`
	Authz         authz.Config        `koanf:"authz"`
	Audit         audit.Config        `koanf:"audit"`
	Consent       consent.Config      `koanf:"consent"`
	Relationship  relationship.Config `koanf:"relationship"`
	Notification  notification.Config `koanf:"notification"`
	DecisionCache DecisionCacheConfig `koanf:"decisioncache"`
}

// DecisionCacheConfig bounds the decision cache layer.
type DecisionCacheConfig struct {
	// Enabled toggles the cache layer entirely.
	Enabled bool `koanf:"enabled"`
	// TTLSeconds bounds how long a non-emergency decision may be reused.
	TTLSeconds int `koanf:"ttlseconds"`
}

// TTL returns the configured cache lifetime.
func (c DecisionCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func DefaultConfig() Config {
	return Config{
		Core:         core.DefaultConfig(),
		HTTP:         libHTTP.DefaultConfig(),
		Tracing:      tracing.DefaultConfig(),
		Authz:        authz.DefaultConfig(),
		Audit:        audit.DefaultConfig(),
		Consent:      consent.DefaultConfig(),
		Relationship: relationship.DefaultConfig(),
		Notification: notification.DefaultConfig(),
		DecisionCache: DecisionCacheConfig{
			Enabled:    true,
			TTLSeconds: 60,
		},
	}
}

// LoadConfig layers defaults, the YAML config file (when present), and
// MEDSHARE_-prefixed environment variables, in that order.
func LoadConfig() (Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to load environment config")
	}

	config := DefaultConfig()
	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return config, nil
}
