// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package logging builds slog handlers from command line flags.
// The same handler backs [log/slog] loggers used by githubapp and
// [github.com/go-logr/logr] loggers used by sourcemanagement.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
)

// Log formats.
const (
	TextFormat = "text"
	JSONFormat = "json"
)

// Config is logging configuration.
type Config struct {
	Verbosity int
	Format    string
}

// AddFlags adds logging flags to flags. Flag values populate cfg
// after flags are parsed.
func AddFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.IntVarP(&cfg.Verbosity, "verbosity", "v", 0, "Logging verbosity")
	flags.StringVar(&cfg.Format, "log-format", TextFormat, "Logging format: text or json")
}

// NewHandler returns a handler writing to w.
func NewHandler(w io.Writer, cfg Config) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: Level(cfg.Verbosity)}
	switch cfg.Format {
	case TextFormat, "":
		return slog.NewTextHandler(w, opts), nil
	case JSONFormat:
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unrecognised logging format: %s", cfg.Format)
	}
}

// New returns slog and logr loggers sharing a handler writing to w.
func New(w io.Writer, cfg Config) (*slog.Logger, logr.Logger, error) {
	h, err := NewHandler(w, cfg)
	if err != nil {
		return nil, logr.Discard(), err
	}
	return slog.New(h), logr.FromSlogHandler(h), nil
}

// Level converts verbosity to slog level. Verbosity 1 enables
// debug logs of githubapp and V(1) logs of logr loggers.
func Level(verbosity int) slog.Level {
	if verbosity <= 0 {
		return slog.LevelInfo
	}
	return slog.Level(-4 - (verbosity - 1))
}
