// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/tprasadtp/go-sourcemanagement/internal/api"
)

var (
	_ http.RoundTripper = (*Transport)(nil)
)

// ctxJWTKey is context key to indicate round tripper needs to use jwt
// instead of installation token.
type ctxJWTKey struct{}

// ctxWithJWTKey adds ctxJWTKey to context to indicate round tripper should use JWT.
// This is required because refreshing [InstallationToken] or looking up
// installations requires using JWT.
func ctxWithJWTKey(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxJWTKey{}, struct{}{})
}

// ctxHasJWTKey checks if context has ctxJWTKey.
func ctxHasJWTKey(ctx context.Context) bool {
	return ctx.Value(ctxJWTKey{}) != nil
}

// Transport provides a [http.RoundTripper] backed by a [TokenManager].
//
// 'Authorization' header is automatically populated with a suitable installation
// token or JWT token for all requests. If it already exists, it is overwritten.
// If manager has no installation configured, JWT is used.
type Transport struct {
	manager *TokenManager
}

// Transport returns [Transport] which authenticates requests to manager's
// endpoint using installation tokens obtained via [TokenManager.Token].
func (m *TokenManager) Transport() *Transport {
	return &Transport{manager: m}
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("githubapp(RoundTrip): request is nil")
	}

	m := t.manager
	if !strings.EqualFold(m.baseURL.Host, req.URL.Host) {
		return nil,
			fmt.Errorf("githubapp(RoundTrip): Host for round tripper(%s) does not match host for request(%s)",
				m.baseURL.Host, req.URL.Host)
	}

	ctx := req.Context()
	clone := cloneRequest(req) // RoundTripper should not modify request

	// ctxHasJWTKey is only set for token renewals and installation lookups.
	if ctxHasJWTKey(ctx) {
		// Always ignore 'Accept' and 'X-GitHub-Api-Version' headers if
		// any and always use library defaults.
		clone.Header.Set(api.AcceptHeader, api.AcceptHeaderValue)
		clone.Header.Set(api.VersionHeader, api.VersionHeaderValue)
	}

	if clone.Header.Get(api.UAHeader) == "" {
		clone.Header.Set(api.UAHeader, m.ua)
	}

	if !m.hasInstallation() || ctxHasJWTKey(ctx) {
		jwt, err := m.JWT(ctx)
		if err != nil {
			return nil, err
		}
		clone.Header.Set(api.AuthzHeader, api.AuthzHeaderValue(jwt.Token))
	} else {
		token, err := m.Token(ctx)
		if err != nil {
			return nil, err
		}
		clone.Header.Set(api.AuthzHeader, api.AuthzHeaderValue(token.Token))
	}

	//nolint:wrapcheck // don't wrap errors returned by underlying round-tripper.
	return m.next.RoundTrip(clone)
}

// cloneRequest returns a clone of the provided *http.Request.
// The clone is a shallow copy of the struct and its shallow copy of
// Header map.
func cloneRequest(r *http.Request) *http.Request {
	clone := new(http.Request)
	*clone = *r

	clone.Header = maps.Clone(r.Header)
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	return clone
}
