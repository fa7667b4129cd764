// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package sourcemanagement

import (
	"context"
	"fmt"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

// GetIssue returns the open issue with title. Titles are matched exactly.
// If there are multiple issues with the same title, the first one returned
// by the service is used.
func (s *SourceManagement) GetIssue(ctx context.Context, title string) (forge.Issue, bool, error) {
	issues, err := s.client.ListIssues(ctx)
	if err != nil {
		return forge.Issue{}, false, fmt.Errorf("sourcemanagement: listing issues: %w", err)
	}
	for _, issue := range issues {
		if issue.Title == title {
			return issue, true, nil
		}
	}
	return forge.Issue{}, false, nil
}

// OpenIssueIfNotExist opens an issue with title unless an open issue with
// the same title exists. body is only called when a new issue is created.
//
// When the issue exists and refreshComment is not nil, the comment it returns
// is added to the existing issue. Empty comments are not added.
func (s *SourceManagement) OpenIssueIfNotExist(
	ctx context.Context,
	title string,
	body func() string,
	refreshComment func(forge.Issue) string,
	labels ...string,
) (forge.Issue, error) {
	s.logger.V(1).Info("Reporting issue", "title", title)
	issue, ok, err := s.GetIssue(ctx, title)
	if err != nil {
		return forge.Issue{}, err
	}

	if ok {
		s.logger.Info("Issue already exists", "title", issue.Title, "number", issue.Number)
		if refreshComment == nil {
			return issue, nil
		}

		comment := refreshComment(issue)
		if comment == "" {
			s.logger.V(1).Info("Refresh comment not added", "number", issue.Number)
			return issue, nil
		}

		if err := s.client.CommentIssue(ctx, issue.Number, comment); err != nil {
			return issue, fmt.Errorf("sourcemanagement: adding refresh comment: %w", err)
		}
		s.logger.Info("Added refresh comment to issue", "title", issue.Title, "number", issue.Number)
		return issue, nil
	}

	var content string
	if body != nil {
		content = body()
	}
	issue, err = s.client.CreateIssue(ctx, forge.NewIssue{
		Title:  title,
		Body:   content,
		Labels: forge.Dedup(labels),
	})
	if err != nil {
		return forge.Issue{}, fmt.Errorf("sourcemanagement: creating issue: %w", err)
	}
	s.logger.Info("Reported issue", "title", title, "number", issue.Number, "url", issue.URL)
	return issue, nil
}

// CloseIssueIfExists closes the open issue with title, adding comment to it
// before closing. Empty comments are not added. It is not an error if issue
// does not exist.
func (s *SourceManagement) CloseIssueIfExists(ctx context.Context, title, comment string) error {
	issue, ok, err := s.GetIssue(ctx, title)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.V(1).Info("Issue not found, not closing it", "title", title)
		return nil
	}

	if comment != "" {
		if err := s.client.CommentIssue(ctx, issue.Number, comment); err != nil {
			return fmt.Errorf("sourcemanagement: commenting on issue #%d: %w", issue.Number, err)
		}
	}

	if err := s.client.CloseIssue(ctx, issue.Number); err != nil {
		return fmt.Errorf("sourcemanagement: closing issue #%d: %w", issue.Number, err)
	}
	s.logger.Info("Closed issue", "title", title, "number", issue.Number)
	return nil
}

// Assign assigns users (by their usernames) to the issue.
func (s *SourceManagement) Assign(ctx context.Context, issue forge.Issue, assignees ...string) error {
	assignees = forge.Dedup(assignees)
	if len(assignees) == 0 {
		return nil
	}
	if err := s.client.AssignIssue(ctx, issue.Number, assignees...); err != nil {
		return fmt.Errorf("sourcemanagement: assigning issue #%d: %w", issue.Number, err)
	}
	s.logger.V(1).Info("Assigned issue", "number", issue.Number, "assignees", assignees)
	return nil
}
