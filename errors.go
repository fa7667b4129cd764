// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package sourcemanagement

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
// use [errors.Is] to check for them. Errors from the forge backend
// (for example [forge.ErrNotFound]) remain in the chain.
const (
	ErrConfiguration       = Error("sourcemanagement: invalid configuration")
	ErrNotImplemented      = Error("sourcemanagement: service not implemented")
	ErrCannotFetchPR       = Error("sourcemanagement: cannot fetch pull requests")
	ErrCannotFetchBranches = Error("sourcemanagement: cannot fetch branches")
	ErrCreatePR            = Error("sourcemanagement: failed to create a pull request")
)
