// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package github implements [forge.Client] for GitHub and GitHub Enterprise.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

var _ forge.Client = (*Client)(nil)

// Client is a GitHub client bound to a single repository.
type Client struct {
	client *github.Client
	owner  string
	repo   string
}

// New returns a new GitHub client. BaseURL in cfg is the API endpoint,
// for example https://github.example.com/api/v3/.
func New(ctx context.Context, cfg forge.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if strings.Contains(cfg.Namespace, "/") {
		return nil, fmt.Errorf("%w: github owner cannot contain '/': %s", forge.ErrConfiguration, cfg.Namespace)
	}

	client := github.NewClient(oauth2.NewClient(cfg.OAuth2Context(ctx), cfg.Token))
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base url: %w", forge.ErrConfiguration, err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return nil, fmt.Errorf("%w: base url scheme must be http or https: %s", forge.ErrConfiguration, cfg.BaseURL)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		client.BaseURL = u
	}

	return &Client{
		client: client,
		owner:  cfg.Namespace,
		repo:   cfg.Name,
	}, nil
}

// wrap maps 404 responses to [forge.ErrNotFound].
func wrap(op string, err error) error {
	var rerr *github.ErrorResponse
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("github: %s: %w: %w", op, forge.ErrNotFound, err)
	}
	return fmt.Errorf("github: %s: %w", op, err)
}

func (c *Client) Repository(ctx context.Context) (forge.Repository, error) {
	repo, _, err := c.client.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return forge.Repository{}, wrap("get repository", err)
	}
	return forge.Repository{
		Namespace:     repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		DefaultBranch: repo.GetDefaultBranch(),
		URL:           repo.GetHTMLURL(),
		Fork:          repo.GetFork(),
		Parent:        repo.GetParent().GetFullName(),
	}, nil
}

func (c *Client) ListIssues(ctx context.Context) ([]forge.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var issues []forge.Issue
	for {
		page, resp, err := c.client.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, wrap("list issues", err)
		}
		for _, item := range page {
			// Issues API includes pull requests.
			if item.IsPullRequest() {
				continue
			}
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
	req := &github.IssueRequest{
		Title: ptr(issue.Title),
		Body:  ptr(issue.Body),
	}
	if labels := forge.Dedup(issue.Labels); len(labels) > 0 {
		req.Labels = &labels
	}
	created, _, err := c.client.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return forge.Issue{}, wrap("create issue", err)
	}
	return toIssue(created), nil
}

func (c *Client) CommentIssue(ctx context.Context, number int64, body string) error {
	_, _, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, int(number), &github.IssueComment{
		Body: ptr(body),
	})
	if err != nil {
		return wrap("comment issue", err)
	}
	return nil
}

func (c *Client) CloseIssue(ctx context.Context, number int64) error {
	_, _, err := c.client.Issues.Edit(ctx, c.owner, c.repo, int(number), &github.IssueRequest{
		State: ptr("closed"),
	})
	if err != nil {
		return wrap("close issue", err)
	}
	return nil
}

func (c *Client) AssignIssue(ctx context.Context, number int64, assignees ...string) error {
	assignees = forge.Dedup(assignees)
	if len(assignees) == 0 {
		return nil
	}
	_, _, err := c.client.Issues.AddAssignees(ctx, c.owner, c.repo, int(number), assignees)
	if err != nil {
		return wrap("assign issue", err)
	}
	return nil
}

func (c *Client) ListPullRequests(ctx context.Context) ([]forge.PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var prs []forge.PullRequest
	for {
		page, resp, err := c.client.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, wrap("list pull requests", err)
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

func (c *Client) CreatePullRequest(ctx context.Context, pr forge.NewPullRequest) (forge.PullRequest, error) {
	owner, repo, head := c.owner, c.repo, pr.Source
	if pr.Upstream {
		fork, _, err := c.client.Repositories.Get(ctx, c.owner, c.repo)
		if err != nil {
			return forge.PullRequest{}, wrap("get repository", err)
		}
		if parent := fork.GetParent(); fork.GetFork() && parent != nil {
			owner = parent.GetOwner().GetLogin()
			repo = parent.GetName()
			head = c.owner + ":" + pr.Source
		}
	}

	created, _, err := c.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: ptr(pr.Title),
		Head:  ptr(head),
		Base:  ptr(pr.Target),
		Body:  ptr(pr.Body),
	})
	if err != nil {
		return forge.PullRequest{}, wrap("create pull request", err)
	}

	rv := toPullRequest(created)
	if labels := forge.Dedup(pr.Labels); len(labels) > 0 {
		applied, _, err := c.client.Issues.AddLabelsToIssue(ctx, owner, repo, created.GetNumber(), labels)
		if err != nil {
			return rv, wrap("label pull request", err)
		}
		rv.Labels = rv.Labels[:0]
		for _, l := range applied {
			rv.Labels = append(rv.Labels, l.GetName())
		}
	}
	return rv, nil
}

func (c *Client) ListBranches(ctx context.Context) ([]forge.Branch, error) {
	opts := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var branches []forge.Branch
	for {
		page, resp, err := c.client.Repositories.ListBranches(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, wrap("list branches", err)
		}
		for _, b := range page {
			branches = append(branches, forge.Branch{
				Name: b.GetName(),
				SHA:  b.GetCommit().GetSHA(),
			})
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
	_, err := c.client.Git.DeleteRef(ctx, c.owner, c.repo, "heads/"+name)
	if err != nil {
		return wrap("delete branch", err)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func toIssue(item *github.Issue) forge.Issue {
	issue := forge.Issue{
		Number:  int64(item.GetNumber()),
		Title:   item.GetTitle(),
		Body:    item.GetBody(),
		State:   item.GetState(),
		URL:     item.GetHTMLURL(),
		Author:  item.GetUser().GetLogin(),
		Created: item.GetCreatedAt().Time,
	}
	for _, l := range item.Labels {
		issue.Labels = append(issue.Labels, l.GetName())
	}
	for _, u := range item.Assignees {
		issue.Assignees = append(issue.Assignees, u.GetLogin())
	}
	return issue
}

func toPullRequest(item *github.PullRequest) forge.PullRequest {
	pr := forge.PullRequest{
		Number:       int64(item.GetNumber()),
		Title:        item.GetTitle(),
		Body:         item.GetBody(),
		State:        item.GetState(),
		URL:          item.GetHTMLURL(),
		Author:       item.GetUser().GetLogin(),
		SourceBranch: item.GetHead().GetRef(),
		TargetBranch: item.GetBase().GetRef(),
		Created:      item.GetCreatedAt().Time,
	}
	for _, l := range item.Labels {
		pr.Labels = append(pr.Labels, l.GetName())
	}
	return pr
}
