// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tprasadtp/go-sourcemanagement/githubapp"
)

func newJWTCommand(g *globals) *cobra.Command {
	var app appOptions
	cmd := &cobra.Command{
		Use:   "jwt",
		Short: "Mint a JWT to authenticate as GitHub app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			signer, err := cfg.Signer()
			if err != nil {
				return err
			}
			token, err := githubapp.NewJWT(cmd.Context(), cfg.AppID, signer)
			if err != nil {
				return err
			}
			g.slog.DebugContext(cmd.Context(), "Minted JWT", "jwt", token)
			return g.printer().print(token, func(w io.Writer) {
				fmt.Fprintf(w, "JWT\t%s\n", token.Token)
				fmt.Fprintf(w, "App ID\t%d\n", token.AppID)
				fmt.Fprintf(w, "Issued At\t%s\n", token.IssuedAt.Format(time.RFC3339))
				fmt.Fprintf(w, "Expires\t%s\n", token.Exp.Format(time.RFC3339))
			})
		},
	}
	app.addFlags(cmd.Flags())
	return cmd
}
