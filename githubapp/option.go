// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Options takes a variadic slice of [Option] and returns
// a single [Option] which includes all the given options.
// This is useful for sharing presets. If conflicting options
// are specified, last one specified wins. As a special case,
// if no options are specified or all specified options are nil,
// this will return nil.
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
		f: func(m *TokenManager) error {
			var err error
			for i := range options {
				if options[i] != nil {
					err = errors.Join(err, options[i].apply(m))
				}
			}
			return err
		},
	}
}

// Option is option to apply for [TokenManager].
type Option interface {
	apply(m *TokenManager) error
}

// funcOption wraps a function that is applied to the TokenManager
// during its initial configuration. It implements [Option]
// interface.
type funcOption struct {
	f func(*TokenManager) error
}

func (opt *funcOption) apply(m *TokenManager) error {
	return opt.f(m)
}

var (
	repoNameRegExp  = regexp.MustCompile("^(((.)[a-z-0-9-.]+)|([a-z0-9-]([a-z0-9-.]+)?))$")
	userNameRegExp  = regexp.MustCompile("^([a-z0-9]([a-z0-9-]+)?)$")
	permissionRegEx = regexp.MustCompile("^[a-z]([a-z_]+[a-z])?[:|=](read|write|admin)$")
)

// WithEndpoint configures [TokenManager] to use custom REST API(v3) endpoint
// for authenticating as app, obtaining installation metadata and creating
// installation access tokens. For GitHub Enterprise Server this is typically
// "https://<hostname>/api/v3/".
//
// When not specified or empty, "https://api.github.com/" is used.
func WithEndpoint(endpoint string) Option {
	if endpoint == "" {
		return nil
	}
	return &funcOption{
		f: func(m *TokenManager) error {
			u, err := url.Parse(endpoint)
			if err != nil {
				return fmt.Errorf("invalid endpoint url: %w", err)
			}
			switch u.Scheme {
			case "http", "https":
			default:
				return fmt.Errorf("invalid url scheme : %s (%s)", u.Scheme, endpoint)
			}

			if u.Fragment != "" || u.RawQuery != "" {
				return fmt.Errorf("endpoint cannot have fragments or queries: %s", endpoint)
			}

			m.baseURL = u
			return nil
		},
	}
}

// WithRoundTripper configures [TokenManager] to use next as [http.RoundTripper]
// for token exchange requests and as next round tripper for [Transport].
//
// This can be used to further customize headers or add logging. Retries are
// not performed by [TokenManager], callers retry by calling [TokenManager.Token].
func WithRoundTripper(next http.RoundTripper) Option {
	if next == nil {
		return nil
	}
	return &funcOption{
		f: func(m *TokenManager) error {
			m.next = next
			return nil
		},
	}
}

// WithUserAgent configures user agent header to use for token related API requests.
func WithUserAgent(ua string) Option {
	if strings.TrimSpace(ua) == "" {
		return nil
	}
	return &funcOption{
		f: func(m *TokenManager) error {
			m.ua = ua
			return nil
		},
	}
}

// WithRepositories configures [TokenManager] to use installation for repos specified.
// Repositories can be specified as "owner/repo" or just "repo" when used together
// with [WithOwner]. All repositories must belong to a single owner.
// Unlike other installation options, this can be used multiple times.
//
// Installation is looked up using the first repository (sorted by name) and
// tokens are scoped to all the repositories specified.
func WithRepositories(repos ...string) Option {
	if len(repos) == 0 {
		return nil
	}
	return &funcOption{
		f: func(m *TokenManager) error {
			owner := m.owner
			invalid := make([]string, 0, len(repos))
			for _, item := range repos {
				item = strings.ToLower(item)
				username, repo, ok := strings.Cut(item, "/")
				// Repository is in form username/repo.
				if ok {
					if !userNameRegExp.MatchString(username) {
						invalid = append(invalid, item)
						continue
					}

					if owner == "" {
						owner = username
					}

					// Repositories must be under a single installation.
					if username != owner {
						return fmt.Errorf("repositories from multiple owners specified: %v", repos)
					}
					item = repo
				}

				if !repoNameRegExp.MatchString(item) {
					invalid = append(invalid, item)
				} else {
					m.repos = append(m.repos, item)
				}
			}

			if len(invalid) > 0 {
				return fmt.Errorf("invalid repositories specified: %v", invalid)
			}

			slices.Sort(m.repos)
			m.repos = slices.Clip(slices.Compact(m.repos))

			if m.owner == "" && owner != "" {
				m.owner = owner
			}
			return nil
		},
	}
}

// WithOwner configures installation owner to use. This can be a user
// or an organization.
func WithOwner(username string) Option {
	return &funcOption{
		f: func(m *TokenManager) error {
			username = strings.ToLower(username)
			if !userNameRegExp.MatchString(username) {
				return fmt.Errorf("invalid username: %s", username)
			}

			// If owner was already set, it might have been extracted from repos.
			// ensure they do not conflict.
			if m.owner != "" && m.owner != username {
				return fmt.Errorf("owner is already configured(%s): %s", m.owner, username)
			}

			m.owner = username
			return nil
		},
	}
}

// WithInstallationID configures [TokenManager] to use installation id specified.
//
// This avoids looking up installation for the owner or repositories.
func WithInstallationID(id uint64) Option {
	return &funcOption{
		f: func(m *TokenManager) error {
			if id == 0 {
				return fmt.Errorf("installation id cannot be zero")
			}

			if v := m.installID.Load(); v != 0 && v != id {
				return fmt.Errorf("installation id is already configured(%d): %d", v, id)
			}

			m.installID.Store(id)
			return nil
		},
	}
}

// WithPermissions configures permission scopes. This is useful when app has
// broader set of permissions but a scoped access token is required.
//
// Permissions MUST be specified in <scope>:<access> or <scope>=<access> format.
// Where scope is permission scope like "issues" and access can be one of
// "read", "write" or "admin".
//
// For example to request permissions to write issues and pull request can be specified as,
//
//	githubapp.WithPermissions("issues:write", "pull_requests:write")
func WithPermissions(permissions ...string) Option {
	if len(permissions) == 0 {
		return nil
	}
	return &funcOption{
		f: func(m *TokenManager) error {
			scopes := make(map[string]string, len(permissions))
			invalid := make([]string, 0, len(permissions))
			for _, item := range permissions {
				item = strings.ToLower(item)
				if permissionRegEx.MatchString(item) {
					item = strings.ReplaceAll(item, "=", ":")
					scope, level, _ := strings.Cut(item, ":")
					scopes[scope] = level
				} else {
					invalid = append(invalid, item)
				}
			}
			if len(invalid) != 0 {
				return fmt.Errorf("invalid permissions: %v", invalid)
			}
			m.scopes = scopes
			return nil
		},
	}
}

// WithRefreshMargin configures duration before token expiry at which
// cached installation token is considered stale and is refreshed.
// Defaults to 60s. Installation tokens are valid for 1h, thus margin
// must be less than 30m.
func WithRefreshMargin(d time.Duration) Option {
	return &funcOption{
		f: func(m *TokenManager) error {
			if d < 0 || d >= 30*time.Minute {
				return fmt.Errorf("refresh margin must be within [0, 30m): %s", d)
			}
			m.margin = d
			return nil
		},
	}
}

// WithLogger configures logger for [TokenManager]. Token refreshes are
// logged at debug level and failures at warn level. Tokens are always redacted.
func WithLogger(logger *slog.Logger) Option {
	if logger == nil {
		return nil
	}
	return &funcOption{
		f: func(m *TokenManager) error {
			m.logger = logger
			return nil
		},
	}
}
