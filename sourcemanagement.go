// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package sourcemanagement provides high level operations on issues,
// pull requests and branches of a single repository hosted on GitHub,
// GitLab or Pagure.
//
// GitHub repositories can be accessed with app installation tokens
// managed by [githubapp.TokenManager]. Installation tokens are refreshed
// transparently before they expire.
package sourcemanagement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/oauth2"

	"github.com/tprasadtp/go-sourcemanagement/forge"
	"github.com/tprasadtp/go-sourcemanagement/forge/github"
	"github.com/tprasadtp/go-sourcemanagement/forge/gitlab"
	"github.com/tprasadtp/go-sourcemanagement/forge/pagure"
	"github.com/tprasadtp/go-sourcemanagement/githubapp"
)

// DefaultBaseBranch is target branch of merge requests, when
// default branch of the repository is unknown.
const DefaultBaseBranch = "master"

// SourceManagement operates on a single repository.
//
// SourceManagement is safe for concurrent use if the underlying
// [forge.Client] is.
type SourceManagement struct {
	service    ServiceType
	namespace  string
	name       string
	serviceURL string
	token      string
	manager    *githubapp.TokenManager
	httpClient *http.Client
	logger     logr.Logger
	client     forge.Client
}

// New returns [SourceManagement] for repository slug "namespace/name"
// hosted on service. Exactly one of [WithToken] or [WithTokenManager]
// must be specified, unless [WithForgeClient] is used.
//
// This does not perform any network I/O for GitHub and Pagure. GitLab
// tokens are obtained once, when the client is created.
func New(ctx context.Context, service ServiceType, slug string, opts ...Option) (*SourceManagement, error) {
	switch service {
	case GitHub, GitLab, Pagure:
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, service)
	}

	namespace, name, err := forge.ParseSlug(slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	s := &SourceManagement{
		service:   service,
		namespace: namespace,
		name:      name,
		logger:    logr.Discard(),
	}

	for i := range opts {
		if opts[i] != nil {
			err = errors.Join(err, opts[i].apply(s))
		}
	}

	if s.token != "" && s.manager != nil {
		err = errors.Join(err, errors.New("both token and token manager are specified"))
	}

	if s.manager != nil && service != GitHub {
		err = errors.Join(err, fmt.Errorf("token manager is not supported for %s", service))
	}

	if s.client == nil && s.token == "" && s.manager == nil {
		err = errors.Join(err, errors.New("neither token nor token manager is specified"))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	s.logger = s.logger.WithValues("service", service.String(), "repository", slug)

	if s.client == nil {
		s.client, err = s.newForgeClient(ctx)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SourceManagement) newForgeClient(ctx context.Context) (forge.Client, error) {
	cfg := forge.Config{
		BaseURL:    s.serviceURL,
		Namespace:  s.namespace,
		Name:       s.name,
		HTTPClient: s.httpClient,
	}

	if s.manager != nil {
		// Token source must outlive ctx, which may only be scoped to New.
		cfg.Token = s.manager.TokenSource(context.WithoutCancel(ctx))
		if cfg.BaseURL == "" {
			cfg.BaseURL = s.manager.Endpoint()
		}
	} else {
		cfg.Token = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.token})
	}

	switch s.service {
	case GitHub:
		return github.New(ctx, cfg)
	case GitLab:
		return gitlab.New(ctx, cfg)
	case Pagure:
		return pagure.New(ctx, cfg)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotImplemented, s.service)
}

// Service returns the service type.
func (s *SourceManagement) Service() ServiceType {
	return s.service
}

// Slug returns repository slug "namespace/name".
func (s *SourceManagement) Slug() string {
	return s.namespace + "/" + s.name
}

// Client returns the underlying [forge.Client].
func (s *SourceManagement) Client() forge.Client {
	return s.client
}

// AccessToken returns the current access token and its expiry. Expiry is zero
// for static tokens. Installation tokens are refreshed if they are about to expire.
func (s *SourceManagement) AccessToken(ctx context.Context) (string, time.Time, error) {
	switch {
	case s.manager != nil:
		tok, err := s.manager.Token(ctx)
		if err != nil {
			return "", time.Time{}, err
		}
		return tok.Token, tok.Exp, nil
	case s.token != "":
		return s.token, time.Time{}, nil
	default:
		return "", time.Time{}, fmt.Errorf("%w: no credentials configured", ErrConfiguration)
	}
}
