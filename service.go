// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package sourcemanagement

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*ServiceType)(nil)

// ServiceType identifies a source code management service.
type ServiceType int

const (
	// GitHub and GitHub Enterprise Server.
	GitHub ServiceType = iota + 1
	// GitLab.com and self-managed GitLab.
	GitLab
	// Pagure, for example pagure.io or src.fedoraproject.org.
	Pagure
)

// String implements [fmt.Stringer].
func (s ServiceType) String() string {
	switch s {
	case GitHub:
		return "github"
	case GitLab:
		return "gitlab"
	case Pagure:
		return "pagure"
	default:
		return fmt.Sprintf("ServiceType(%d)", int(s))
	}
}

// Set implements [pflag.Value].
func (s *ServiceType) Set(v string) error {
	parsed, err := ParseServiceType(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Type implements [pflag.Value].
func (s *ServiceType) Type() string {
	return "service"
}

// ParseServiceType parses service name. Names are case insensitive.
func ParseServiceType(v string) (ServiceType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "github":
		return GitHub, nil
	case "gitlab":
		return GitLab, nil
	case "pagure":
		return Pagure, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrNotImplemented, v)
	}
}
