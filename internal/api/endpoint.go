// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

package api

// DefaultEndpoint is default GitHub REST API endpoint.
const DefaultEndpoint = "https://api.github.com/"
