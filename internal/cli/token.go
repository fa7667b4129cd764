// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tprasadtp/go-sourcemanagement/githubapp"
)

func newTokenCommand(g *globals) *cobra.Command {
	var (
		app         appOptions
		owner       string
		repos       []string
		permissions []string
		gitHelper   bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain installation access token for GitHub app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}

			opts := []githubapp.Option{
				githubapp.WithRepositories(repos...),
				githubapp.WithPermissions(permissions...),
				githubapp.WithLogger(g.slog),
			}
			if owner != "" {
				opts = append(opts, githubapp.WithOwner(owner))
			}

			manager, err := githubapp.NewTokenManagerFromConfig(cfg, opts...)
			if err != nil {
				return err
			}

			token, err := manager.Token(cmd.Context())
			if err != nil {
				return err
			}

			if gitHelper {
				return writeGitCredential(g.stdout, token)
			}

			return g.printer().print(token, func(w io.Writer) {
				fmt.Fprintf(w, "Token\t%s\n", token.Token)
				fmt.Fprintf(w, "Expires\t%s\n", token.Exp.Format(time.RFC3339))
				fmt.Fprintf(w, "Installation\t%d\n", token.InstallationID)
				fmt.Fprintf(w, "Target\t%s\n", token.Target)
				if token.Owner != "" {
					fmt.Fprintf(w, "Owner\t%s\n", token.Owner)
				}
				if len(token.Repositories) > 0 {
					fmt.Fprintf(w, "Repositories\t%s\n", strings.Join(token.Repositories, ","))
				}
				for _, k := range sortedKeys(token.Permissions) {
					fmt.Fprintf(w, "Permission\t%s=%s\n", k, token.Permissions[k])
				}
			})
		},
	}

	flags := cmd.Flags()
	app.addFlags(flags)
	flags.StringVar(&owner, "owner", "", "Installation owner")
	flags.StringSliceVar(&repos, "repos", nil, "Repositories to scope the token to")
	flags.StringSliceVar(&permissions, "permissions", nil, "Permissions to scope the token to, for example issues:write")
	flags.BoolVar(&gitHelper, "git-credential", false, "Print token in git credential helper format")
	return cmd
}

// writeGitCredential writes token in the format expected from git credential helpers.
func writeGitCredential(w io.Writer, token githubapp.InstallationToken) error {
	_, err := fmt.Fprintf(w, "protocol=https\nusername=x-access-token\npassword=%s\npassword_expiry_utc=%d\n\n",
		token.Token, token.Exp.Truncate(time.Second).Unix())
	return err
}
