// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

func newBranchCommand(g *globals) *cobra.Command {
	var repo repoOptions
	cmd := newRepoCommand("branch", "Manage branches", &repo)
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List branches",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := repo.open(cmd.Context(), g)
				if err != nil {
					return err
				}
				branches, err := s.ListBranches(cmd.Context())
				if err != nil {
					return err
				}
				if branches == nil {
					branches = []forge.Branch{}
				}
				return g.printer().print(branches, func(w io.Writer) {
					fmt.Fprintln(w, "NAME\tSHA")
					for _, b := range branches {
						fmt.Fprintf(w, "%s\t%s\n", b.Name, b.SHA)
					}
				})
			},
		},
		&cobra.Command{
			Use:   "delete BRANCH",
			Short: "Delete a branch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := repo.open(cmd.Context(), g)
				if err != nil {
					return err
				}
				return s.DeleteBranch(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}
