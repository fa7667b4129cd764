// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/tprasadtp/go-sourcemanagement/githubapp"
)

// appOptions are GitHub app credentials. When app id is not specified,
// credentials are read from the environment, see [githubapp.ConfigFromEnv].
type appOptions struct {
	appID          uint64
	privateKeyPath string
	installationID uint64
	endpoint       string
	refreshMargin  time.Duration
}

func (o *appOptions) addFlags(flags *pflag.FlagSet) {
	flags.Uint64Var(&o.appID, "app-id", 0, "GitHub app ID (default $"+githubapp.EnvAppID+")")
	flags.StringVar(&o.privateKeyPath, "private-key", "", "Path to app private key (default $"+githubapp.EnvPrivateKeyPath+")")
	flags.Uint64Var(&o.installationID, "installation-id", 0, "Installation ID (default $"+githubapp.EnvInstallationID+")")
	flags.StringVar(&o.endpoint, "endpoint", "", "GitHub REST API endpoint (default $"+githubapp.EnvAPIURL+")")
	flags.DurationVar(&o.refreshMargin, "refresh-margin", githubapp.DefaultRefreshMargin, "Refresh installation tokens this long before they expire")
}

// configured reports whether app credentials are available from flags or environment.
func (o *appOptions) configured(getenv func(string) string) bool {
	return o.appID != 0 || getenv(githubapp.EnvAppID) != ""
}

func (o *appOptions) config() (githubapp.Config, error) {
	var cfg githubapp.Config
	if o.appID == 0 {
		var err error
		cfg, err = githubapp.ConfigFromEnv()
		if err != nil {
			return githubapp.Config{}, err
		}
	} else {
		if o.privateKeyPath == "" {
			return githubapp.Config{}, fmt.Errorf("%w: private key not specified", githubapp.ErrConfiguration)
		}
		cfg.AppID = o.appID
	}

	if o.privateKeyPath != "" {
		cfg.PrivateKeyPath = o.privateKeyPath
		cfg.PrivateKey = nil
	}
	if o.installationID != 0 {
		cfg.InstallationID = o.installationID
	}
	if o.endpoint != "" {
		cfg.Endpoint = o.endpoint
	}
	margin := o.refreshMargin
	cfg.RefreshMargin = &margin
	return cfg, nil
}
