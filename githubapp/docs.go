// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package githubapp provides GitHub app authentication.
//
// [SignJWT] and [NewJWT] mint short lived JWTs used to authenticate as the app.
// [TokenManager] exchanges them for installation access tokens, caches them
// and refreshes them shortly before they expire. Installation tokens can be
// used via [TokenManager.Token], [TokenManager.TokenSource] or
// [TokenManager.Transport].
//
//	cfg, err := githubapp.ConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	manager, err := githubapp.NewTokenManagerFromConfig(cfg,
//		githubapp.WithRepositories("octo-org/octo-repo"))
//	if err != nil {
//		return err
//	}
//	token, err := manager.Token(ctx)
//
// Errors returned by [TokenManager.Token] wrap one of [ErrConfiguration],
// [ErrInvalidKey], [ErrAuthentication] or [ErrTransientNetwork].
package githubapp
