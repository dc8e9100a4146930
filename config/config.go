package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const FileName = "relvet.toml"

// Config is the optional repository-level configuration file.
type Config struct {
	// NpmTokenEnv names an environment variable holding an explicit npm
	// token. When set, token auth is used for the public npm registry and
	// OIDC eligibility is overridden. Required for first-time publishes and
	// environments without trusted publishing.
	NpmTokenEnv string `toml:"npm_token_env"`
	// Provenance requests provenance attestations for all npm targets that
	// do not override it themselves.
	Provenance bool `toml:"provenance"`
	// Registries declares additional custom registries to authenticate
	// against, beyond the ones referenced by package manifests.
	Registries []RegistryEntry `toml:"registries"`
}

// RegistryEntry is one custom registry declaration. Either a bare URL, in
// which case the resolved GitHub token is reused, or a URL with an explicit
// auth string.
type RegistryEntry struct {
	URL  string `toml:"url"`
	Auth string `toml:"auth"`
}

// Load reads the configuration file from dir. A missing file yields the zero
// configuration, not an error.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, errors.Wrapf(err, "failed reading %s", path)
	}
	conf := &Config{}
	if err := toml.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "failed parsing %s", path)
	}
	return conf, nil
}
