// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

import (
	"crypto"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by [ConfigFromEnv].
const (
	EnvAppID          = "GITHUB_APP_ID"
	EnvPrivateKeyPath = "GITHUB_PRIVATE_KEY_PATH"
	EnvPrivateKey     = "GITHUB_PRIVATE_KEY"
	EnvInstallationID = "GITHUB_APP_INSTALLATION_ID"
	EnvAPIURL         = "GITHUB_API_URL"
)

// Config is GitHub app credential configuration. It is typically resolved
// once at startup and passed to [NewTokenManagerFromConfig].
type Config struct {
	// GitHub app ID.
	AppID uint64 `json:"app_id" yaml:"appID"`

	// Path to PEM encoded private key. Ignored if PrivateKey is not empty.
	PrivateKeyPath string `json:"private_key_path,omitempty" yaml:"privateKeyPath,omitempty"`

	// PEM encoded private key.
	PrivateKey []byte `json:"-" yaml:"-"`

	// Installation ID. If zero, installation is looked up based on
	// owner or repositories options.
	InstallationID uint64 `json:"installation_id,omitempty" yaml:"installationID,omitempty"`

	// REST API endpoint. Defaults to https://api.github.com/.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// RefreshMargin is duration before expiry, at which installation token
	// is considered stale. Defaults to 60s if nil. Zero margin is valid.
	RefreshMargin *time.Duration `json:"refresh_margin,omitempty" yaml:"refreshMargin,omitempty"`
}

// ConfigFromEnv builds [Config] from environment variables.
//
//   - GITHUB_APP_ID (required) app id.
//   - GITHUB_PRIVATE_KEY_PATH path to private key file.
//   - GITHUB_PRIVATE_KEY PEM encoded private key. Takes precedence over
//     GITHUB_PRIVATE_KEY_PATH.
//   - GITHUB_APP_INSTALLATION_ID (optional) installation id.
//   - GITHUB_API_URL (optional) REST API endpoint.
//
// Private key is not read or parsed here, use [Config.Signer].
func ConfigFromEnv() (Config, error) {
	var cfg Config
	var err error

	cfg.AppID, err = parseAppID(os.Getenv(EnvAppID))
	if err != nil {
		return Config{}, fmt.Errorf("%w (%s)", err, EnvAppID)
	}

	if v := os.Getenv(EnvPrivateKey); strings.TrimSpace(v) != "" {
		cfg.PrivateKey = []byte(v)
	}
	cfg.PrivateKeyPath = os.Getenv(EnvPrivateKeyPath)

	if len(cfg.PrivateKey) == 0 && cfg.PrivateKeyPath == "" {
		return Config{}, fmt.Errorf("%w: neither %s nor %s is defined",
			ErrConfiguration, EnvPrivateKey, EnvPrivateKeyPath)
	}

	if v := strings.TrimSpace(os.Getenv(EnvInstallationID)); v != "" {
		cfg.InstallationID, err = strconv.ParseUint(v, 10, 64)
		if err != nil || cfg.InstallationID == 0 {
			return Config{}, fmt.Errorf("%w: invalid installation id(%s)", ErrConfiguration, EnvInstallationID)
		}
	}

	cfg.Endpoint = os.Getenv(EnvAPIURL)
	return cfg, nil
}

// Signer loads the private key. Inline key material takes precedence over
// the key path.
func (c Config) Signer() (crypto.Signer, error) {
	if len(c.PrivateKey) > 0 {
		return ParsePrivateKey(c.PrivateKey)
	}
	return LoadPrivateKey(c.PrivateKeyPath)
}

// options returns token manager options described by the config.
func (c Config) options() []Option {
	opts := []Option{WithEndpoint(c.Endpoint)}
	if c.InstallationID != 0 {
		opts = append(opts, WithInstallationID(c.InstallationID))
	}
	if c.RefreshMargin != nil {
		opts = append(opts, WithRefreshMargin(*c.RefreshMargin))
	}
	return opts
}
