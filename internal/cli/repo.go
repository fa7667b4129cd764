// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tprasadtp/go-sourcemanagement"
	"github.com/tprasadtp/go-sourcemanagement/githubapp"
)

// EnvToken is the environment variable holding access token, used when
// --token flag is not specified.
const EnvToken = "SOURCEMANAGEMENT_TOKEN"

// repoOptions select the repository and credentials.
type repoOptions struct {
	service    sourcemanagement.ServiceType
	slug       string
	serviceURL string
	token      string
	app        appOptions
}

func (o *repoOptions) addFlags(flags *pflag.FlagSet) {
	o.service = sourcemanagement.GitHub
	flags.Var(&o.service, "service", "Service type: github, gitlab or pagure")
	flags.StringVarP(&o.slug, "repo", "R", "", "Repository in namespace/name format")
	flags.StringVar(&o.serviceURL, "service-url", "", "API endpoint for GitHub, instance URL for GitLab and Pagure")
	flags.StringVar(&o.token, "token", "", "Access token (default $"+EnvToken+")")
	o.app.addFlags(flags)
}

// open returns [sourcemanagement.SourceManagement] for the repository.
// Static tokens take precedence over GitHub app credentials.
func (o *repoOptions) open(ctx context.Context, g *globals) (*sourcemanagement.SourceManagement, error) {
	token := o.token
	if token == "" {
		token = os.Getenv(EnvToken)
	}

	opts := []sourcemanagement.Option{
		sourcemanagement.WithServiceURL(o.serviceURL),
		sourcemanagement.WithLogger(g.logr),
	}

	switch {
	case token != "":
		opts = append(opts, sourcemanagement.WithToken(token))
	case o.service == sourcemanagement.GitHub && o.app.configured(os.Getenv):
		cfg, err := o.app.config()
		if err != nil {
			return nil, err
		}
		mopts := []githubapp.Option{githubapp.WithLogger(g.slog)}
		if cfg.InstallationID == 0 {
			mopts = append(mopts, githubapp.WithRepositories(o.slug))
		}
		manager, err := githubapp.NewTokenManagerFromConfig(cfg, mopts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sourcemanagement.WithTokenManager(manager))
	}

	return sourcemanagement.New(ctx, o.service, o.slug, opts...)
}

// newRepoCommand returns a parent command with repository flags.
func newRepoCommand(use, short string, repo *repoOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
	}
	repo.addFlags(cmd.PersistentFlags())
	_ = cmd.MarkPersistentFlagRequired("repo")
	return cmd
}
