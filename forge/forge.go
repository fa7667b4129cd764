// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package forge defines a minimal client for git forges.
//
// Backends live in sub packages ([github.com/tprasadtp/go-sourcemanagement/forge/github],
// [github.com/tprasadtp/go-sourcemanagement/forge/gitlab] and
// [github.com/tprasadtp/go-sourcemanagement/forge/pagure]) and operate on
// a single repository identified by [Config].
package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("forge: not found")

	// ErrNotSupported is returned when the backend cannot perform the operation.
	ErrNotSupported = errors.New("forge: operation not supported")

	// ErrConfiguration is returned on invalid client configuration.
	ErrConfiguration = errors.New("forge: invalid configuration")
)

// Issue is an issue on a forge.
type Issue struct {
	Number    int64     `json:"number" yaml:"number"`
	Title     string    `json:"title" yaml:"title"`
	Body      string    `json:"body,omitempty" yaml:"body,omitempty"`
	State     string    `json:"state" yaml:"state"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	Author    string    `json:"author,omitempty" yaml:"author,omitempty"`
	Labels    []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	Assignees []string  `json:"assignees,omitempty" yaml:"assignees,omitempty"`
	Created   time.Time `json:"created" yaml:"created"`
}

// PullRequest is a pull request (merge request on GitLab).
type PullRequest struct {
	Number       int64     `json:"number" yaml:"number"`
	Title        string    `json:"title" yaml:"title"`
	Body         string    `json:"body,omitempty" yaml:"body,omitempty"`
	State        string    `json:"state" yaml:"state"`
	URL          string    `json:"url,omitempty" yaml:"url,omitempty"`
	Author       string    `json:"author,omitempty" yaml:"author,omitempty"`
	SourceBranch string    `json:"source_branch" yaml:"source_branch"`
	TargetBranch string    `json:"target_branch" yaml:"target_branch"`
	Labels       []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	Created      time.Time `json:"created" yaml:"created"`
}

// Repository describes the repository a client operates on.
type Repository struct {
	Namespace     string `json:"namespace" yaml:"namespace"`
	Name          string `json:"name" yaml:"name"`
	DefaultBranch string `json:"default_branch,omitempty" yaml:"default_branch,omitempty"`
	URL           string `json:"url,omitempty" yaml:"url,omitempty"`
	Fork          bool   `json:"fork" yaml:"fork"`
	// Parent is the namespace/name of the upstream repository for forks.
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// Slug returns namespace/name.
func (r Repository) Slug() string {
	return r.Namespace + "/" + r.Name
}

// Branch is a git branch.
type Branch struct {
	Name string `json:"name" yaml:"name"`
	SHA  string `json:"sha,omitempty" yaml:"sha,omitempty"`
}

// NewIssue holds fields for creating an issue.
type NewIssue struct {
	Title  string
	Body   string
	Labels []string
}

// NewPullRequest holds fields for creating a pull request.
type NewPullRequest struct {
	Title string
	Body  string
	// Source branch in the configured repository.
	Source string
	// Target branch.
	Target string
	Labels []string
	// Upstream opens the pull request against the parent repository
	// when the configured repository is a fork.
	Upstream bool
}

// Client performs operations on a single repository.
type Client interface {
	// Repository returns repository metadata.
	Repository(ctx context.Context) (Repository, error)

	// ListIssues returns open issues. Pull requests are not included.
	ListIssues(ctx context.Context) ([]Issue, error)
	CreateIssue(ctx context.Context, issue NewIssue) (Issue, error)
	CommentIssue(ctx context.Context, number int64, body string) error
	CloseIssue(ctx context.Context, number int64) error
	AssignIssue(ctx context.Context, number int64, assignees ...string) error

	// ListPullRequests returns open pull requests.
	ListPullRequests(ctx context.Context) ([]PullRequest, error)
	CreatePullRequest(ctx context.Context, pr NewPullRequest) (PullRequest, error)

	ListBranches(ctx context.Context) ([]Branch, error)
	DeleteBranch(ctx context.Context, name string) error
}

// Config configures a backend client.
type Config struct {
	// BaseURL is the web URL of the forge instance, for example
	// https://gitlab.example.com. Backends use their public
	// instance when empty. For GitHub this is the API endpoint.
	BaseURL string

	// Namespace is the owner, group or subgroup path of the repository.
	Namespace string

	// Name is the name of the repository.
	Name string

	// Token provides access tokens. Tokens are obtained for every
	// request unless noted otherwise by the backend.
	Token oauth2.TokenSource

	// HTTPClient is used as the base client. Defaults to [http.DefaultClient].
	HTTPClient *http.Client
}

// Validate checks that required fields are present.
func (c Config) Validate() error {
	var errs []error
	if c.Namespace == "" {
		errs = append(errs, fmt.Errorf("%w: namespace is empty", ErrConfiguration))
	}
	if c.Name == "" {
		errs = append(errs, fmt.Errorf("%w: repository name is empty", ErrConfiguration))
	}
	if c.Token == nil {
		errs = append(errs, fmt.Errorf("%w: token source is nil", ErrConfiguration))
	}
	return errors.Join(errs...)
}

// Slug returns namespace/name.
func (c Config) Slug() string {
	return c.Namespace + "/" + c.Name
}

// OAuth2Context returns ctx carrying the configured HTTP client,
// for use with [oauth2.NewClient].
func (c Config) OAuth2Context(ctx context.Context) context.Context {
	if c.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
}

// ParseSlug splits a slug of the form namespace/name. Namespace may contain
// slashes (GitLab subgroups), name may not.
func ParseSlug(slug string) (namespace, name string, err error) {
	idx := strings.LastIndex(slug, "/")
	if idx <= 0 || idx == len(slug)-1 {
		return "", "", fmt.Errorf("%w: malformed slug: %q", ErrConfiguration, slug)
	}
	namespace, name = slug[:idx], slug[idx+1:]
	if strings.HasPrefix(namespace, "/") || strings.HasSuffix(namespace, "/") || strings.Contains(namespace, "//") {
		return "", "", fmt.Errorf("%w: malformed slug: %q", ErrConfiguration, slug)
	}
	return namespace, name, nil
}

// Dedup returns values with duplicates and empty strings removed,
// preserving order.
func Dedup(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	rv := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		rv = append(rv, v)
	}
	return rv
}
