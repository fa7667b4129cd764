// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package sourcemanagement

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

var _ forge.Client = (*fakeForge)(nil)

// fakeForge is an in-memory forge.Client.
type fakeForge struct {
	mu       sync.Mutex
	repo     forge.Repository
	issues   []forge.Issue
	prs      []forge.PullRequest
	branches []forge.Branch

	// errors returned by operations keyed by method name.
	errs map[string]error

	// recorded calls
	comments  map[int64][]string
	assigned  map[int64][]string
	created   []forge.NewIssue
	requested []forge.NewPullRequest
	deleted   []string
}

func newFakeForge() *fakeForge {
	return &fakeForge{
		repo: forge.Repository{
			Namespace:     "thoth-station",
			Name:          "kebechet",
			DefaultBranch: "main",
		},
		errs:     map[string]error{},
		comments: map[int64][]string{},
		assigned: map[int64][]string{},
	}
}

func (f *fakeForge) Repository(_ context.Context) (forge.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repo, f.errs["Repository"]
}

func (f *fakeForge) ListIssues(_ context.Context) ([]forge.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["ListIssues"]; err != nil {
		return nil, err
	}
	var open []forge.Issue
	for _, issue := range f.issues {
		if issue.State == "open" {
			open = append(open, issue)
		}
	}
	return open, nil
}

func (f *fakeForge) CreateIssue(_ context.Context, issue forge.NewIssue) (forge.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["CreateIssue"]; err != nil {
		return forge.Issue{}, err
	}
	f.created = append(f.created, issue)
	created := forge.Issue{
		Number: int64(len(f.issues) + 1),
		Title:  issue.Title,
		Body:   issue.Body,
		State:  "open",
		Labels: issue.Labels,
	}
	f.issues = append(f.issues, created)
	return created, nil
}

func (f *fakeForge) issue(number int64) (int, error) {
	idx := slices.IndexFunc(f.issues, func(i forge.Issue) bool { return i.Number == number })
	if idx < 0 {
		return 0, fmt.Errorf("issue #%d: %w", number, forge.ErrNotFound)
	}
	return idx, nil
}

func (f *fakeForge) CommentIssue(_ context.Context, number int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["CommentIssue"]; err != nil {
		return err
	}
	if _, err := f.issue(number); err != nil {
		return err
	}
	f.comments[number] = append(f.comments[number], body)
	return nil
}

func (f *fakeForge) CloseIssue(_ context.Context, number int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["CloseIssue"]; err != nil {
		return err
	}
	idx, err := f.issue(number)
	if err != nil {
		return err
	}
	f.issues[idx].State = "closed"
	return nil
}

func (f *fakeForge) AssignIssue(_ context.Context, number int64, assignees ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["AssignIssue"]; err != nil {
		return err
	}
	if _, err := f.issue(number); err != nil {
		return err
	}
	f.assigned[number] = append(f.assigned[number], assignees...)
	return nil
}

func (f *fakeForge) ListPullRequests(_ context.Context) ([]forge.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["ListPullRequests"]; err != nil {
		return nil, err
	}
	return slices.Clone(f.prs), nil
}

func (f *fakeForge) CreatePullRequest(_ context.Context, pr forge.NewPullRequest) (forge.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["CreatePullRequest"]; err != nil {
		return forge.PullRequest{}, err
	}
	f.requested = append(f.requested, pr)
	created := forge.PullRequest{
		Number:       int64(len(f.prs) + 1),
		Title:        pr.Title,
		Body:         pr.Body,
		State:        "open",
		SourceBranch: pr.Source,
		TargetBranch: pr.Target,
		Labels:       pr.Labels,
	}
	f.prs = append(f.prs, created)
	return created, nil
}

func (f *fakeForge) ListBranches(_ context.Context) ([]forge.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["ListBranches"]; err != nil {
		return nil, err
	}
	return slices.Clone(f.branches), nil
}

func (f *fakeForge) DeleteBranch(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["DeleteBranch"]; err != nil {
		return err
	}
	idx := slices.IndexFunc(f.branches, func(b forge.Branch) bool { return b.Name == name })
	if idx < 0 {
		return fmt.Errorf("branch %q: %w", name, forge.ErrNotFound)
	}
	f.branches = slices.Delete(f.branches, idx, idx+1)
	f.deleted = append(f.deleted, name)
	return nil
}
