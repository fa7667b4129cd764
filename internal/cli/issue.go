// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

func newIssueCommand(g *globals) *cobra.Command {
	var repo repoOptions
	cmd := newRepoCommand("issue", "Manage issues", &repo)
	cmd.AddCommand(
		newIssueListCommand(g, &repo),
		newIssueOpenCommand(g, &repo),
		newIssueCloseCommand(g, &repo),
		newIssueAssignCommand(g, &repo),
	)
	return cmd
}

func printIssues(g *globals, issues ...forge.Issue) error {
	if issues == nil {
		issues = []forge.Issue{}
	}
	return g.printer().print(issues, func(w io.Writer) {
		fmt.Fprintln(w, "NUMBER\tTITLE\tLABELS\tURL")
		for _, issue := range issues {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", issue.Number, issue.Title, strings.Join(issue.Labels, ","), issue.URL)
		}
	})
}

func newIssueListCommand(g *globals, repo *repoOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := repo.open(cmd.Context(), g)
			if err != nil {
				return err
			}
			issues, err := s.Client().ListIssues(cmd.Context())
			if err != nil {
				return err
			}
			return printIssues(g, issues...)
		},
	}
}

func newIssueOpenCommand(g *globals, repo *repoOptions) *cobra.Command {
	var (
		title   string
		body    string
		refresh string
		labels  []string
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open an issue unless an open issue with the same title exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := repo.open(cmd.Context(), g)
			if err != nil {
				return err
			}
			var refreshComment func(forge.Issue) string
			if refresh != "" {
				refreshComment = func(forge.Issue) string { return refresh }
			}
			issue, err := s.OpenIssueIfNotExist(cmd.Context(), title,
				func() string { return body }, refreshComment, labels...)
			if err != nil {
				return err
			}
			return printIssues(g, issue)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "Issue title")
	flags.StringVar(&body, "body", "", "Issue body")
	flags.StringVar(&refresh, "refresh-comment", "", "Comment to add if the issue already exists")
	flags.StringSliceVar(&labels, "label", nil, "Labels to add to the issue")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newIssueCloseCommand(g *globals, repo *repoOptions) *cobra.Command {
	var title, comment string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the open issue with title, if it exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := repo.open(cmd.Context(), g)
			if err != nil {
				return err
			}
			return s.CloseIssueIfExists(cmd.Context(), title, comment)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "Issue title")
	flags.StringVar(&comment, "comment", "", "Comment to add before closing")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newIssueAssignCommand(g *globals, repo *repoOptions) *cobra.Command {
	var (
		title     string
		assignees []string
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign users to the open issue with title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := repo.open(cmd.Context(), g)
			if err != nil {
				return err
			}
			issue, ok, err := s.GetIssue(cmd.Context(), title)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("issue %q: %w", title, forge.ErrNotFound)
			}
			return s.Assign(cmd.Context(), issue, assignees...)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "Issue title")
	flags.StringSliceVar(&assignees, "assignee", nil, "Usernames to assign")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}
