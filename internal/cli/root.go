// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package cli implements sourcemanagement command line interface.
package cli

import (
	"io"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/tprasadtp/go-sourcemanagement/internal/logging"
)

// globals are shared by all sub commands.
type globals struct {
	stdout  io.Writer
	stderr  io.Writer
	output  string
	logging logging.Config

	// populated before running sub commands.
	slog *slog.Logger
	logr logr.Logger
}

func (g *globals) printer() printer {
	return printer{w: g.stdout, format: g.output}
}

// New returns the root command. Output is written to stdout and
// logs to stderr.
func New(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{
		stdout: stdout,
		stderr: stderr,
		logr:   logr.Discard(),
	}

	cmd := &cobra.Command{
		Use:           "sourcemanagement",
		Short:         "Manage issues, pull requests and branches on GitHub, GitLab and Pagure",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := validateFormat(g.output); err != nil {
				return err
			}
			var err error
			g.slog, g.logr, err = logging.New(g.stderr, g.logging)
			return err
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	logging.AddFlags(flags, &g.logging)
	flags.StringVarP(&g.output, "output", "o", formatText, "Output format: text, json or yaml")

	cmd.AddCommand(
		newJWTCommand(g),
		newTokenCommand(g),
		newIssueCommand(g),
		newPullRequestCommand(g),
		newBranchCommand(g),
	)
	return cmd
}
