// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

func newPullRequestCommand(g *globals) *cobra.Command {
	var repo repoOptions
	cmd := newRepoCommand("pr", "Manage pull requests", &repo)
	cmd.Aliases = []string{"mr"}
	cmd.AddCommand(
		newPullRequestListCommand(g, &repo),
		newPullRequestOpenCommand(g, &repo),
	)
	return cmd
}

func printPullRequests(g *globals, prs ...forge.PullRequest) error {
	if prs == nil {
		prs = []forge.PullRequest{}
	}
	return g.printer().print(prs, func(w io.Writer) {
		fmt.Fprintln(w, "NUMBER\tTITLE\tSOURCE\tTARGET\tURL")
		for _, pr := range prs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", pr.Number, pr.Title, pr.SourceBranch, pr.TargetBranch, pr.URL)
		}
	})
}

func newPullRequestListCommand(g *globals, repo *repoOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open pull requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := repo.open(cmd.Context(), g)
			if err != nil {
				return err
			}
			prs, err := s.GetPullRequests(cmd.Context())
			if err != nil {
				return err
			}
			return printPullRequests(g, prs...)
		},
	}
}

func newPullRequestOpenCommand(g *globals, repo *repoOptions) *cobra.Command {
	var (
		title  string
		branch string
		body   string
		labels []string
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a pull request from branch to the default branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := repo.open(cmd.Context(), g)
			if err != nil {
				return err
			}
			pr, err := s.OpenMergeRequest(cmd.Context(), title, branch, body, labels...)
			if err != nil {
				return err
			}
			return printPullRequests(g, pr)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "Pull request title")
	flags.StringVar(&branch, "branch", "", "Source branch")
	flags.StringVar(&body, "body", "", "Pull request description")
	flags.StringSliceVar(&labels, "label", nil, "Labels to add to the pull request")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}
