// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

import (
	"context"
	"crypto"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/tprasadtp/go-sourcemanagement/internal/api"
)

var (
	_ slog.LogValuer = (*InstallationToken)(nil)
)

// InstallationToken is an installation access token from GitHub.
type InstallationToken struct {
	// Installation access token. Typically starts with "ghs_".
	Token string `json:"token" yaml:"token"`

	// GitHub API endpoint. This is also used for token revocation.
	Server string `json:"server,omitempty" yaml:"server,omitempty"`

	// GitHub app ID.
	AppID uint64 `json:"app_id,omitempty" yaml:"appID,omitempty"`

	// GitHub app name. This is only populated if installation was looked up.
	AppName string `json:"app_name,omitempty" yaml:"appName,omitempty"`

	// Installation ID for the app.
	InstallationID uint64 `json:"installation_id,omitempty" yaml:"installationID,omitempty"`

	// Token exp time.
	Exp time.Time `json:"exp,omitempty" yaml:"exp,omitempty"`

	// Target the installation was resolved for. This is one of "owner/repo"
	// (comma separated for multiple repositories), "owner" or "installation/<id>".
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Installation owner. This may be empty if only installation id is configured.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`

	// Repositories which can be accessed with the token. This may be empty
	// if scoped token is not requested. In such cases, token will have access to all
	// repositories accessible by the installation.
	Repositories []string `json:"repositories,omitempty" yaml:"repositories,omitempty"`

	// Permissions available for the token. This may be omitted if scoped permissions are not
	// requested. In such cases token has all permissions available to the installation.
	Permissions map[string]string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// LogValue implements [log/slog.LogValuer].
func (t InstallationToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server", t.Server),
		slog.Uint64("app_id", t.AppID),
		slog.String("app_name", t.AppName),
		slog.Uint64("installation_id", t.InstallationID),
		slog.String("target", t.Target),
		slog.Any("repositories", t.Repositories),
		slog.String("token", "REDACTED"),
		slog.Time("exp", t.Exp),
		slog.Any("permissions", t.Permissions),
	)
}

// IsValid checks if [InstallationToken] is valid for at-least 60 seconds.
func (t InstallationToken) IsValid() bool {
	return t.validAt(time.Now(), time.Minute)
}

// validAt reports whether token is usable at now, leaving margin
// before its expiry.
func (t InstallationToken) validAt(now time.Time, margin time.Duration) bool {
	return t.Token != "" && now.Before(t.Exp.Add(-margin))
}

// clone returns a deep copy of the token, so that callers cannot
// mutate cached token.
func (t InstallationToken) clone() InstallationToken {
	t.Repositories = slices.Clone(t.Repositories)
	t.Permissions = maps.Clone(t.Permissions)
	return t
}

// Revoke revokes the installation access token.
func (t *InstallationToken) Revoke(ctx context.Context) error {
	return t.revoke(ctx, nil, api.UAHeaderValue)
}

// revoke is internal version of Revoke which supports custom round tripper
// for testing and customization.
func (t *InstallationToken) revoke(ctx context.Context, rt http.RoundTripper, ua string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if t.Token == "" || !time.Now().Before(t.Exp) {
		return fmt.Errorf("githubapp: cannot revoke already invalid token")
	}

	server := t.Server
	if t.Server == "" {
		server = api.DefaultEndpoint
	}
	u, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("%w: failed to revoke token - invalid server url: %w", ErrConfiguration, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: invalid url scheme : %s (%s)", ErrConfiguration, u.Scheme, server)
	}

	if u.Fragment != "" || u.RawQuery != "" {
		return fmt.Errorf("%w: server url cannot have fragments or queries: %s", ErrConfiguration, server)
	}

	u = u.JoinPath("installation", "token")
	r, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return fmt.Errorf("githubapp: failed to revoke token - failed to build request: %w", err)
	}

	r.Header.Set(api.VersionHeader, api.VersionHeaderValue)
	r.Header.Set(api.AuthzHeader, api.AuthzHeaderValue(t.Token))
	r.Header.Set(api.AcceptHeader, api.AcceptHeaderValue)
	r.Header.Set(api.UAHeader, ua)

	client := http.Client{
		Timeout: time.Minute,
	}

	if rt != nil {
		client.Transport = rt
	}

	resp, err := client.Do(r)
	if err != nil {
		return fmt.Errorf("%w: failed to revoke token: %w", ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: failed to revoke token, expected(204) but got %s",
			classifyStatus(resp.StatusCode), resp.Status)
	}

	// If successful indicate token is no longer valid.
	t.Exp = time.Now()
	return nil
}

// NewInstallationToken returns new installation access token.
// This takes same options as [NewTokenManager].
func NewInstallationToken(ctx context.Context, appid uint64, signer crypto.Signer, opts ...Option) (InstallationToken, error) {
	m, err := NewTokenManager(appid, signer, opts...)
	if err != nil {
		return InstallationToken{}, err
	}
	return m.Token(ctx)
}
