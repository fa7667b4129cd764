// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

var (
	_ error = Error("")
)

// Error is immutable error representation.
//
// Error strings themselves are NOT part of semver compatibility guarantees.
// Use exported symbols with [errors.Is] instead of directly using error strings.
type Error string

// Implements Error() interface.
func (e Error) Error() string {
	return string(e)
}

// Errors returned by this package. All errors returned are wrapped,
// use [errors.Is] to check for them.
//
//   - [ErrConfiguration] is returned when app id, private key or installation
//     options are missing or invalid. It is not retryable.
//   - [ErrInvalidKey] is returned when private key cannot be parsed or is not
//     a supported RSA key. It is not retryable.
//   - [ErrAuthentication] is returned when GitHub rejects the JWT or the installation
//     (revoked, suspended or unknown). Next call to [TokenManager.Token] will retry
//     with a freshly minted JWT.
//   - [ErrTransientNetwork] is returned on connectivity failures, timeouts and
//     server errors during token exchange. Next call to [TokenManager.Token]
//     will retry the exchange.
const (
	ErrConfiguration    = Error("githubapp: invalid configuration")
	ErrInvalidKey       = Error("githubapp: invalid private key")
	ErrAuthentication   = Error("githubapp: authentication failed")
	ErrTransientNetwork = Error("githubapp: network error")
)
