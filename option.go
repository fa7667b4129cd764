// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package sourcemanagement

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-logr/logr"

	"github.com/tprasadtp/go-sourcemanagement/forge"
	"github.com/tprasadtp/go-sourcemanagement/githubapp"
)

// Option is option to apply for [SourceManagement].
type Option interface {
	apply(s *SourceManagement) error
}

type funcOption struct {
	f func(*SourceManagement) error
}

func (opt *funcOption) apply(s *SourceManagement) error {
	return opt.f(s)
}

// Options takes a variadic slice of [Option] and returns
// a single [Option] which includes all the given options.
// If all specified options are nil, this returns nil.
func Options(options ...Option) Option {
	nils := 0
	for i := range options {
		if options[i] == nil {
			nils++
		}
	}
	if len(options) == nils {
		return nil
	}

	return &funcOption{
		f: func(s *SourceManagement) error {
			var err error
			for i := range options {
				if options[i] != nil {
					err = errors.Join(err, options[i].apply(s))
				}
			}
			return err
		},
	}
}

// WithServiceURL configures the service instance. For GitHub this is the
// REST API endpoint (for example "https://github.example.com/api/v3/"), for
// GitLab and Pagure it is the web URL of the instance.
//
// When not specified, public instance of the service is used.
func WithServiceURL(serviceURL string) Option {
	if serviceURL == "" {
		return nil
	}
	return &funcOption{
		f: func(s *SourceManagement) error {
			u, err := url.Parse(serviceURL)
			if err != nil {
				return fmt.Errorf("invalid service url: %w", err)
			}
			switch u.Scheme {
			case "http", "https":
			default:
				return fmt.Errorf("invalid url scheme : %s (%s)", u.Scheme, serviceURL)
			}
			s.serviceURL = serviceURL
			return nil
		},
	}
}

// WithToken configures a static access token. This cannot be used
// together with [WithTokenManager].
func WithToken(token string) Option {
	return &funcOption{
		f: func(s *SourceManagement) error {
			if strings.TrimSpace(token) == "" {
				return errors.New("token is empty")
			}
			s.token = token
			return nil
		},
	}
}

// WithTokenManager configures GitHub app installation tokens. Tokens are
// refreshed by the manager before they expire. This is only supported
// for GitHub and cannot be used together with [WithToken].
func WithTokenManager(m *githubapp.TokenManager) Option {
	return &funcOption{
		f: func(s *SourceManagement) error {
			if m == nil {
				return errors.New("token manager is nil")
			}
			s.manager = m
			return nil
		},
	}
}

// WithHTTPClient configures the HTTP client used for API requests.
// Authentication is added on top of the client's transport.
func WithHTTPClient(client *http.Client) Option {
	if client == nil {
		return nil
	}
	return &funcOption{
		f: func(s *SourceManagement) error {
			s.httpClient = client
			return nil
		},
	}
}

// WithLogger configures the logger. By default, nothing is logged.
func WithLogger(logger logr.Logger) Option {
	return &funcOption{
		f: func(s *SourceManagement) error {
			s.logger = logger
			return nil
		},
	}
}

// WithForgeClient uses client instead of building one for the service.
// Credentials are optional when this option is used.
func WithForgeClient(client forge.Client) Option {
	if client == nil {
		return nil
	}
	return &funcOption{
		f: func(s *SourceManagement) error {
			s.client = client
			return nil
		},
	}
}
