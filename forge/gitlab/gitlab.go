// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package gitlab implements [forge.Client] for GitLab.
//
// GitLab tokens are personal, project or group access tokens. The token
// is obtained from the configured token source once, when the client
// is created.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

// DefaultBaseURL is the public GitLab instance.
const DefaultBaseURL = "https://gitlab.com"

var _ forge.Client = (*Client)(nil)

// Client is a GitLab client bound to a single project.
type Client struct {
	client *gitlab.Client
	// project path with namespace
	pid string
}

// New returns a new GitLab client. BaseURL in cfg is the instance URL
// without the /api/v4 suffix.
func New(_ context.Context, cfg forge.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %w", forge.ErrConfiguration, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: base url scheme must be http or https: %s", forge.ErrConfiguration, base)
	}

	token, err := cfg.Token.Token()
	if err != nil {
		return nil, fmt.Errorf("gitlab: obtaining token: %w", err)
	}

	opts := []gitlab.ClientOptionFunc{
		gitlab.WithBaseURL(strings.TrimSuffix(base, "/") + "/api/v4"),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(cfg.HTTPClient))
	}

	client, err := gitlab.NewClient(token.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating gitlab client: %w", forge.ErrConfiguration, err)
	}

	return &Client{
		client: client,
		pid:    cfg.Slug(),
	}, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, gitlab.ErrNotFound) {
		return fmt.Errorf("gitlab: %s: %w: %w", op, forge.ErrNotFound, err)
	}
	var rerr *gitlab.ErrorResponse
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("gitlab: %s: %w: %w", op, forge.ErrNotFound, err)
	}
	return fmt.Errorf("gitlab: %s: %w", op, err)
}

func (c *Client) Repository(ctx context.Context) (forge.Repository, error) {
	project, _, err := c.client.Projects.GetProject(c.pid, nil, gitlab.WithContext(ctx))
	if err != nil {
		return forge.Repository{}, wrap("fetching project", err)
	}
	repo := forge.Repository{
		Name:          project.Path,
		DefaultBranch: project.DefaultBranch,
		URL:           project.WebURL,
	}
	if project.Namespace != nil {
		repo.Namespace = project.Namespace.FullPath
	} else {
		repo.Namespace = strings.TrimSuffix(project.PathWithNamespace, "/"+project.Path)
	}
	if project.ForkedFromProject != nil {
		repo.Fork = true
		repo.Parent = project.ForkedFromProject.PathWithNamespace
	}
	return repo, nil
}

func (c *Client) ListIssues(ctx context.Context) ([]forge.Issue, error) {
	opts := &gitlab.ListProjectIssuesOptions{
		State: gitlab.Ptr("opened"),
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: 100,
		},
	}
	var issues []forge.Issue
	for {
		page, resp, err := c.client.Issues.ListProjectIssues(c.pid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, wrap("listing issues", err)
		}
		for _, item := range page {
			issues = append(issues, toIssue(item))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return issues, nil
}

func (c *Client) CreateIssue(ctx context.Context, issue forge.NewIssue) (forge.Issue, error) {
	opts := &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(issue.Title),
		Description: gitlab.Ptr(issue.Body),
	}
	if labels := forge.Dedup(issue.Labels); len(labels) > 0 {
		opts.Labels = (*gitlab.LabelOptions)(&labels)
	}
	created, _, err := c.client.Issues.CreateIssue(c.pid, opts, gitlab.WithContext(ctx))
	if err != nil {
		return forge.Issue{}, wrap("creating issue", err)
	}
	return toIssue(created), nil
}

func (c *Client) CommentIssue(ctx context.Context, number int64, body string) error {
	_, _, err := c.client.Notes.CreateIssueNote(c.pid, number, &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return wrap("commenting on issue", err)
	}
	return nil
}

func (c *Client) CloseIssue(ctx context.Context, number int64) error {
	_, _, err := c.client.Issues.UpdateIssue(c.pid, number, &gitlab.UpdateIssueOptions{
		StateEvent: gitlab.Ptr("close"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return wrap("closing issue", err)
	}
	return nil
}

// AssignIssue resolves usernames to user ids and sets them as assignees.
// Unknown usernames are skipped.
func (c *Client) AssignIssue(ctx context.Context, number int64, assignees ...string) error {
	assignees = forge.Dedup(assignees)
	if len(assignees) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(assignees))
	for _, username := range assignees {
		users, _, err := c.client.Users.ListUsers(&gitlab.ListUsersOptions{
			Username: gitlab.Ptr(username),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return wrap("resolving user "+username, err)
		}
		if len(users) == 0 {
			continue
		}
		ids = append(ids, users[len(users)-1].ID)
	}
	if len(ids) == 0 {
		return nil
	}

	_, _, err := c.client.Issues.UpdateIssue(c.pid, number, &gitlab.UpdateIssueOptions{
		AssigneeIDs: &ids,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return wrap("assigning issue", err)
	}
	return nil
}

func (c *Client) ListPullRequests(ctx context.Context) ([]forge.PullRequest, error) {
	opts := &gitlab.ListProjectMergeRequestsOptions{
		State: gitlab.Ptr("opened"),
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: 100,
		},
	}
	var prs []forge.PullRequest
	for {
		page, resp, err := c.client.MergeRequests.ListProjectMergeRequests(c.pid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, wrap("listing merge requests", err)
		}
		for _, item := range page {
			prs = append(prs, toPullRequest(item))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return prs, nil
}

// CreatePullRequest opens a merge request. Merge requests from forks are
// created in the fork targeting the parent project.
func (c *Client) CreatePullRequest(ctx context.Context, pr forge.NewPullRequest) (forge.PullRequest, error) {
	opts := &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(pr.Title),
		Description:  gitlab.Ptr(pr.Body),
		SourceBranch: gitlab.Ptr(pr.Source),
		TargetBranch: gitlab.Ptr(pr.Target),
	}
	if labels := forge.Dedup(pr.Labels); len(labels) > 0 {
		opts.Labels = (*gitlab.LabelOptions)(&labels)
	}
	if pr.Upstream {
		project, _, err := c.client.Projects.GetProject(c.pid, nil, gitlab.WithContext(ctx))
		if err != nil {
			return forge.PullRequest{}, wrap("fetching project", err)
		}
		if project.ForkedFromProject != nil {
			opts.TargetProjectID = gitlab.Ptr(project.ForkedFromProject.ID)
		}
	}

	created, _, err := c.client.MergeRequests.CreateMergeRequest(c.pid, opts, gitlab.WithContext(ctx))
	if err != nil {
		return forge.PullRequest{}, wrap("creating merge request", err)
	}
	return toPullRequest(&created.BasicMergeRequest), nil
}

func (c *Client) ListBranches(ctx context.Context) ([]forge.Branch, error) {
	opts := &gitlab.ListBranchesOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: 100,
		},
	}
	var branches []forge.Branch
	for {
		page, resp, err := c.client.Branches.ListBranches(c.pid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, wrap("listing branches", err)
		}
		for _, b := range page {
			branch := forge.Branch{Name: b.Name}
			if b.Commit != nil {
				branch.SHA = b.Commit.ID
			}
			branches = append(branches, branch)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return branches, nil
}

func (c *Client) DeleteBranch(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: branch name is empty", forge.ErrConfiguration)
	}
	_, err := c.client.Branches.DeleteBranch(c.pid, name, gitlab.WithContext(ctx))
	if err != nil {
		return wrap("deleting branch", err)
	}
	return nil
}

func toIssue(item *gitlab.Issue) forge.Issue {
	issue := forge.Issue{
		Number: item.IID,
		Title:  item.Title,
		Body:   item.Description,
		State:  item.State,
		URL:    item.WebURL,
		Labels: item.Labels,
	}
	if item.Author != nil {
		issue.Author = item.Author.Username
	}
	if item.CreatedAt != nil {
		issue.Created = *item.CreatedAt
	}
	for _, a := range item.Assignees {
		issue.Assignees = append(issue.Assignees, a.Username)
	}
	return issue
}

func toPullRequest(item *gitlab.BasicMergeRequest) forge.PullRequest {
	pr := forge.PullRequest{
		Number:       item.IID,
		Title:        item.Title,
		Body:         item.Description,
		State:        item.State,
		URL:          item.WebURL,
		SourceBranch: item.SourceBranch,
		TargetBranch: item.TargetBranch,
		Labels:       item.Labels,
	}
	if item.Author != nil {
		pr.Author = item.Author.Username
	}
	if item.CreatedAt != nil {
		pr.Created = *item.CreatedAt
	}
	return pr
}
