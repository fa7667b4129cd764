// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package sourcemanagement

import (
	"context"
	"fmt"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

// OpenMergeRequest opens a pull request (merge request) from branch to the
// default branch of the repository. If the repository is a fork, pull request
// is opened against its parent. Errors wrap [ErrCreatePR].
func (s *SourceManagement) OpenMergeRequest(ctx context.Context, title, branch, body string, labels ...string) (forge.PullRequest, error) {
	repo, err := s.client.Repository(ctx)
	if err != nil {
		return forge.PullRequest{}, fmt.Errorf("%w: %w", ErrCreatePR, err)
	}

	base := repo.DefaultBranch
	if base == "" {
		base = DefaultBaseBranch
	}

	pr, err := s.client.CreatePullRequest(ctx, forge.NewPullRequest{
		Title:    title,
		Body:     body,
		Source:   branch,
		Target:   base,
		Labels:   forge.Dedup(labels),
		Upstream: repo.Fork,
	})
	if err != nil {
		return pr, fmt.Errorf("%w: %w", ErrCreatePR, err)
	}

	s.logger.Info("Created pull request", "number", pr.Number, "url", pr.URL, "source", branch, "target", base)
	return pr, nil
}

// GetPullRequests returns open pull requests. Errors wrap [ErrCannotFetchPR].
func (s *SourceManagement) GetPullRequests(ctx context.Context) ([]forge.PullRequest, error) {
	prs, err := s.client.ListPullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotFetchPR, err)
	}
	return prs, nil
}

// ListBranches returns branches of the repository. Errors wrap [ErrCannotFetchBranches].
func (s *SourceManagement) ListBranches(ctx context.Context) ([]forge.Branch, error) {
	branches, err := s.client.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotFetchBranches, err)
	}
	return branches, nil
}

// DeleteBranch deletes branch from the repository.
func (s *SourceManagement) DeleteBranch(ctx context.Context, branch string) error {
	if err := s.client.DeleteBranch(ctx, branch); err != nil {
		return fmt.Errorf("sourcemanagement: deleting branch %q: %w", branch, err)
	}
	s.logger.V(1).Info("Deleted branch", "branch", branch)
	return nil
}
