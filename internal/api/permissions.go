// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package api

const (
	PermissionLevelNone  = "none"
	PermissionLevelRead  = "read"
	PermissionLevelWrite = "write"
	PermissionLevelAdmin = "admin"
)
