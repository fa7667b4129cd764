// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package api holds types and methods to serialize and deserialize
// requests to and from GitHub App endpoints.
//
// Types are just enough for app endpoints required by the token manager
// and should be considered incomplete. Forge operations use
// [github.com/google/go-github/v66/github] with
// [github.com/tprasadtp/go-sourcemanagement/githubapp.TokenManager]
// for authentication.
package api
