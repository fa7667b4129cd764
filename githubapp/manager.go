// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tprasadtp/go-sourcemanagement/internal/api"
)

// DefaultRefreshMargin is duration before expiry at which cached
// installation token is considered stale.
const DefaultRefreshMargin = time.Minute

// refreshKey is singleflight key used for token refreshes. There is only
// ever a single installation per manager.
const refreshKey = "refresh"

// TokenManager owns GitHub app credentials and hands out installation
// access tokens, refreshing them whenever they are about to expire.
//
// TokenManager is safe for concurrent use. Reading a fresh cached token never
// blocks. At most one refresh is in-flight at any time and concurrent callers
// share its result.
type TokenManager struct {
	appID   uint64            // app ID
	owner   string            // owner of repositories
	repos   []string          // repository names
	scopes  map[string]string // scoped permissions
	ua      string            // user agent
	next    http.RoundTripper // next round tripper
	baseURL *url.URL          // REST API v3 base URL
	margin  time.Duration     // refresh margin
	logger  *slog.Logger      // logger
	minter  jwtMinter         // jwt minter
	client  *http.Client      // client for app endpoints
	now     func() time.Time  // clock

	installID atomic.Uint64                     // installation id
	appSlug   atomic.Pointer[string]            // app slug from installation
	jwt       atomic.Pointer[JWT]               // cached jwt
	token     atomic.Pointer[InstallationToken] // cached installation token
	group     singleflight.Group                // in-flight refreshes
}

// NewTokenManager creates a new [TokenManager] for authenticating as an app installation.
// This does not perform any network I/O. Installation is resolved and
// token is obtained on first call to [TokenManager.Token].
//
// How installation is resolved depends on options specified.
//
//   - If no installation options are specified, then [TokenManager] can only authenticate
//     as app (using JWT). [TokenManager.Token] returns [ErrConfiguration].
//   - Use [WithInstallationID] to have access to all permissions available to the
//     installation including organization scopes and repositories. This can be used
//     together with [WithPermissions] to limit the scope of access tokens.
//   - Use [WithOwner] if your app has only access to organization/user permissions
//     and none of the repositories belonging to the owner.
//   - Use [WithRepositories] if your app intends to access only a set of repositories.
//     Do note that if app has access to organization permissions, they will also be
//     available to the access token, unless limited with [WithPermissions].
//
// Invalid options return error wrapping [ErrConfiguration] and unsupported
// keys return error wrapping [ErrInvalidKey].
func NewTokenManager(appid uint64, signer crypto.Signer, opts ...Option) (*TokenManager, error) {
	var err error
	if signer == nil {
		err = errors.Join(err, errors.New("no signer provided"))
	}

	if appid == 0 {
		err = errors.Join(err, errors.New("app id cannot be zero"))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	m := &TokenManager{
		appID:  appid,
		margin: DefaultRefreshMargin,
		now:    time.Now,
	}

	for i := range opts {
		if opts[i] != nil {
			err = errors.Join(err, opts[i].apply(m))
		}
	}

	// If only repository names are given, but not the owner.
	if len(m.repos) > 0 && m.owner == "" {
		err = errors.Join(err, errors.New("owner not specified"))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	m.minter, err = newJWTMinter(signer)
	if err != nil {
		return nil, err
	}

	if m.next == nil {
		m.next = http.DefaultTransport
	}

	if m.ua == "" {
		m.ua = api.UAHeaderValue
	}

	if m.baseURL == nil {
		m.baseURL, _ = url.Parse(api.DefaultEndpoint)
	}

	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m.client = &http.Client{
		Transport: m.Transport(),
		Timeout:   time.Minute,
	}
	return m, nil
}

// NewTokenManagerFromConfig creates a new [TokenManager] from [Config].
// Options specified are applied after options derived from the config.
func NewTokenManagerFromConfig(cfg Config, opts ...Option) (*TokenManager, error) {
	signer, err := cfg.Signer()
	if err != nil {
		return nil, err
	}
	return NewTokenManager(cfg.AppID, signer, append(cfg.options(), opts...)...)
}

// AppID returns the GitHub app id.
func (m *TokenManager) AppID() uint64 {
	return m.appID
}

// InstallationID returns the GitHub installation id. This returns 0,
// if installation is not yet resolved.
func (m *TokenManager) InstallationID() uint64 {
	return m.installID.Load()
}

// RefreshMargin returns the configured refresh margin.
func (m *TokenManager) RefreshMargin() time.Duration {
	return m.margin
}

// Endpoint returns the REST API endpoint used by the manager.
func (m *TokenManager) Endpoint() string {
	return m.baseURL.String()
}

// Target returns installation target. See [InstallationToken.Target].
// This returns empty string if no installation options are configured.
func (m *TokenManager) Target() string {
	switch {
	case len(m.repos) > 0:
		items := make([]string, 0, len(m.repos))
		for _, repo := range m.repos {
			items = append(items, m.owner+"/"+repo)
		}
		return strings.Join(items, ",")
	case m.owner != "":
		return m.owner
	case m.installID.Load() != 0:
		return "installation/" + strconv.FormatUint(m.installID.Load(), 10)
	default:
		return ""
	}
}

// hasInstallation reports whether installation options are configured.
func (m *TokenManager) hasInstallation() bool {
	return m.owner != "" || m.installID.Load() != 0
}

// IsExpired reports whether cached installation token is missing or
// is within refresh margin of its expiry.
func (m *TokenManager) IsExpired() bool {
	tok := m.token.Load()
	return tok == nil || !tok.validAt(m.now(), m.margin)
}

// Cached returns cached installation token without blocking. ok is false
// if there is no cached token or it is stale.
func (m *TokenManager) Cached() (token InstallationToken, ok bool) {
	tok := m.token.Load()
	if tok == nil || !tok.validAt(m.now(), m.margin) {
		return InstallationToken{}, false
	}
	return tok.clone(), true
}

// Token returns installation access token. This may block on network I/O.
//
// If cached token is fresh it is returned as is. Otherwise, a new JWT is minted,
// installation is resolved (only once) and JWT is exchanged for a new
// installation token which is cached. If refresh fails, cached token is left
// untouched and error wrapping [ErrAuthentication], [ErrTransientNetwork] or
// [ErrConfiguration] is returned. Calling Token again retries the refresh.
//
// Concurrent callers share a single in-flight refresh. Each caller stops
// waiting when its own ctx is done, but refresh itself is bound to the context
// of the caller which initiated it.
func (m *TokenManager) Token(ctx context.Context) (InstallationToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if tok := m.token.Load(); tok != nil && tok.validAt(m.now(), m.margin) {
		return tok.clone(), nil
	}

	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.refresh(ctx)
	})

	select {
	case <-ctx.Done():
		return InstallationToken{}, fmt.Errorf("%w: %w", ErrTransientNetwork, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return InstallationToken{}, res.Err
		}
		tok, _ := res.Val.(*InstallationToken)
		return tok.clone(), nil
	}
}

// refresh obtains a new installation token and caches it.
// This is only ever called via singleflight group.
func (m *TokenManager) refresh(ctx context.Context) (*InstallationToken, error) {
	// Token may have been refreshed by a flight which completed
	// between cache check and joining the group.
	if tok := m.token.Load(); tok != nil && tok.validAt(m.now(), m.margin) {
		return tok, nil
	}

	tok, err := m.exchange(ctx)
	if err != nil {
		// Next refresh should start with a freshly minted JWT.
		if errors.Is(err, ErrAuthentication) {
			m.jwt.Store(nil)
		}
		m.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to refresh installation token",
			slog.Uint64("app_id", m.appID),
			slog.String("target", m.Target()),
			slog.String("err", err.Error()),
		)
		return nil, err
	}

	m.token.Store(tok)
	m.logger.LogAttrs(ctx, slog.LevelDebug, "Refreshed installation token",
		slog.Any("token", tok),
	)
	return tok, nil
}

// exchange resolves installation and exchanges JWT for a new installation token.
func (m *TokenManager) exchange(ctx context.Context) (*InstallationToken, error) {
	id, err := m.installationID(ctx)
	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(api.InstallationTokenRequest{
		Repositories: m.repos,
		Permissions:  m.scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("githubapp(token): failed to marshal token request: %w", err)
	}

	tokenURL := m.baseURL.JoinPath(
		"app", "installations",
		strconv.FormatUint(id, 10),
		"access_tokens")

	// Force using JWT via ctxWithJWTKey.
	r, err := http.NewRequestWithContext(
		ctxWithJWTKey(ctx), http.MethodPost, tokenURL.String(), bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("githubapp(token): failed to build token request: %w", err)
	}
	r.Header.Set(api.ContentTypeHeader, api.ContentTypeJSON)

	data, err := m.do(r, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("githubapp(token): failed to get installation token: %w", err)
	}

	tokenResp := api.InstallationTokenResponse{}
	err = json.Unmarshal(data, &tokenResp)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal token response: %w", ErrAuthentication, err)
	}

	if tokenResp.Token == "" || tokenResp.Exp == nil {
		return nil, fmt.Errorf("%w: token response is missing token or expiry", ErrAuthentication)
	}

	if !m.now().Before(tokenResp.Exp.Time) {
		return nil, fmt.Errorf("%w: token response is already expired(%s)",
			ErrAuthentication, tokenResp.Exp.Time.Format(time.RFC3339))
	}

	token := &InstallationToken{
		Token:          tokenResp.Token,
		Exp:            tokenResp.Exp.Time,
		Server:         m.baseURL.String(),
		AppID:          m.appID,
		InstallationID: id,
		Target:         m.Target(),
		Owner:          m.owner,
		Permissions:    tokenResp.Permissions,
	}

	if slug := m.appSlug.Load(); slug != nil {
		token.AppName = *slug
	}

	if tokenResp.Repositories != nil {
		token.Repositories = make([]string, 0, len(tokenResp.Repositories))
		for _, item := range tokenResp.Repositories {
			if item != nil && item.Name != nil {
				token.Repositories = append(token.Repositories, *item.Name)
			}
		}
	}
	return token, nil
}

// installationID returns installation id, resolving it via owner or repositories
// if it is not configured. Resolved installation id is memoized.
func (m *TokenManager) installationID(ctx context.Context) (uint64, error) {
	if id := m.installID.Load(); id != 0 {
		return id, nil
	}

	if m.owner == "" {
		return 0, fmt.Errorf("%w: installation is not configured", ErrConfiguration)
	}

	var u *url.URL
	if len(m.repos) > 0 {
		u = m.baseURL.JoinPath("repos", m.owner, m.repos[0], "installation")
	} else {
		u = m.baseURL.JoinPath("users", m.owner, "installation")
	}

	// Set context to use JWT.
	r, err := http.NewRequestWithContext(ctxWithJWTKey(ctx), http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("githubapp(installation): failed to build request: %w", err)
	}

	data, err := m.do(r, http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("githubapp(installation): error fetching installation for %s: %w",
			m.Target(), err)
	}

	installation := api.Installation{}
	err = json.Unmarshal(data, &installation)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to unmarshal installation: %w", ErrAuthentication, err)
	}

	if installation.ID == nil || *installation.ID <= 0 {
		return 0, fmt.Errorf("%w: installation response is missing id", ErrAuthentication)
	}

	if installation.SuspendedAt != nil && !installation.SuspendedAt.IsZero() {
		return 0, fmt.Errorf("%w: installation id %d is suspended", ErrAuthentication, *installation.ID)
	}

	// Checks if scoped permissions are supported by the app's installation.
	// Permissions on app itself are not checked as effective permissions depend
	// on those granted by installation and scopes defined.
	err = m.checkInstallationPermissions(installation.Permissions)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	if installation.AppSlug != nil {
		m.appSlug.Store(installation.AppSlug)
	}

	id := uint64(*installation.ID)
	m.installID.Store(id)
	m.logger.LogAttrs(ctx, slog.LevelDebug, "Resolved installation",
		slog.String("target", m.Target()),
		slog.Uint64("installation_id", id),
	)
	return id, nil
}

// checkInstallationPermissions checks if installation permissions support scoped permissions.
func (m *TokenManager) checkInstallationPermissions(permissions map[string]string) error {
	// No scoped permissions are specified, app's default permissions apply.
	if len(m.scopes) == 0 {
		return nil
	}

	missing := make([]string, 0, len(m.scopes))
	for scopeName, scopeLevel := range m.scopes {
		installLevel, ok := permissions[scopeName]
		if !ok {
			missing = append(missing, scopeName)
			continue
		}

		// Installation permissions can be read/write/admin. Requested level
		// must not exceed the level granted to the installation.
		switch scopeLevel {
		case api.PermissionLevelAdmin:
			if installLevel != api.PermissionLevelAdmin {
				missing = append(missing, scopeName+":"+scopeLevel)
			}
		case api.PermissionLevelWrite:
			switch installLevel {
			case api.PermissionLevelWrite, api.PermissionLevelAdmin:
			default:
				missing = append(missing, scopeName+":"+scopeLevel)
			}
		case api.PermissionLevelRead:
			switch installLevel {
			case api.PermissionLevelRead, api.PermissionLevelWrite, api.PermissionLevelAdmin:
			default:
				missing = append(missing, scopeName+":"+scopeLevel)
			}
		default:
			return fmt.Errorf("unknown %s level - %s", scopeName, scopeLevel)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing requested permissions: %v", missing)
	}
	return nil
}

// do sends request using app client and returns response body if response
// status matches expected status. Errors wrap [ErrTransientNetwork]
// or [ErrAuthentication].
func (m *TokenManager) do(r *http.Request, expected int) ([]byte, error) {
	resp, err := m.client.Do(r)
	if err != nil {
		// Errors from JWT minting are surfaced by the transport.
		if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInvalidKey) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrTransientNetwork, err)
	}

	if resp.StatusCode != expected {
		// Try to decode error message if possible.
		// GitHub API error response JSON is inconsistent.
		errResp := &api.ErrorResponse{}
		err = json.Unmarshal(data, errResp)
		if err == nil && errResp.Message != "" {
			return nil, fmt.Errorf("%w: %s(%s)", classifyStatus(resp.StatusCode), errResp.Message, resp.Status)
		}
		return nil, fmt.Errorf("%w: %s", classifyStatus(resp.StatusCode), resp.Status)
	}
	return data, nil
}

// classifyStatus maps unexpected response status codes to errors.
// Rate limits and server errors are transient, other client errors are not.
func classifyStatus(code int) Error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrTransientNetwork
	case code >= 400 && code < 500:
		return ErrAuthentication
	default:
		return ErrTransientNetwork
	}
}

// JWT returns already existing JWT bearer token or mints a new one
// if existing one is valid for less than 60 seconds.
func (m *TokenManager) JWT(ctx context.Context) (JWT, error) {
	now := m.now()
	if bearer := m.jwt.Load(); bearer != nil && bearer.validAt(now) {
		return *bearer, nil
	}

	bearer, err := m.minter.MintJWT(ctx, m.appID, now)
	if err != nil {
		return JWT{}, fmt.Errorf("githubapp: failed to mint JWT: %w", err)
	}

	if slug := m.appSlug.Load(); slug != nil {
		bearer.AppName = *slug
	}
	m.jwt.Store(&bearer)
	return bearer, nil
}

// Revoke revokes cached installation token, if any, and clears the cache.
// Next call to [TokenManager.Token] will obtain a new token.
func (m *TokenManager) Revoke(ctx context.Context) error {
	tok := m.token.Load()
	if tok == nil {
		return nil
	}

	// Revoke a copy, cached token is immutable.
	c := tok.clone()
	err := c.revoke(ctx, m.next, m.ua)
	if err != nil {
		return err
	}

	m.token.CompareAndSwap(tok, nil)
	m.logger.LogAttrs(ctx, slog.LevelDebug, "Revoked installation token",
		slog.Uint64("app_id", m.appID),
		slog.String("target", m.Target()),
	)
	return nil
}

// TokenSource returns [oauth2.TokenSource] backed by the manager.
// Tokens returned expire at refresh margin before the installation
// token's expiry, so that [oauth2.ReuseTokenSource] refreshes them in time.
//
// ctx is used for refreshes triggered via the token source.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	if ctx == nil {
		ctx = context.Background()
	}
	return &tokenSource{ctx: ctx, manager: m}
}

type tokenSource struct {
	ctx     context.Context
	manager *TokenManager
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.manager.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Token,
		TokenType:   "Bearer",
		Expiry:      tok.Exp.Add(-s.manager.margin),
	}, nil
}
