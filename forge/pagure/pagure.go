// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

// Package pagure implements [forge.Client] for Pagure using its REST API (v0).
//
// Forks are addressed with a namespace of the form fork/<username> or
// fork/<username>/<namespace>, mirroring Pagure URLs. Pagure API does not
// support deleting branches and issues can only have a single assignee.
package pagure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tprasadtp/go-sourcemanagement/forge"
	"github.com/tprasadtp/go-sourcemanagement/internal/api"
)

// DefaultBaseURL is the Pagure instance used when none is configured.
const DefaultBaseURL = "https://pagure.io"

const perPage = 100

var _ forge.Client = (*Client)(nil)

// Client is a Pagure client bound to a single project.
type Client struct {
	client *http.Client
	base   *url.URL
	slug   string
}

// New returns a new Pagure client. Tokens are sent using the "token"
// authorization scheme.
func New(ctx context.Context, cfg forge.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %w", forge.ErrConfiguration, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: base url scheme must be http or https: %s", forge.ErrConfiguration, base)
	}

	return &Client{
		client: oauth2.NewClient(cfg.OAuth2Context(ctx), tokenScheme{cfg.Token}),
		base:   u,
		slug:   cfg.Slug(),
	}, nil
}

// tokenScheme sets token type of tokens returned by the wrapped source
// so that they are sent as "Authorization: token <value>".
type tokenScheme struct {
	src oauth2.TokenSource
}

func (s tokenScheme) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	clone := *tok
	clone.TokenType = "token"
	return &clone, nil
}

// apiError is the error body returned by Pagure.
type apiError struct {
	Message string `json:"error"`
	Code    string `json:"error_code"`
	Status  int    `json:"-"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pagure: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("pagure: %d: %s", e.Status, e.Message)
}

func (e *apiError) Is(target error) bool {
	return target == forge.ErrNotFound && e.Status == http.StatusNotFound
}

type user struct {
	Name string `json:"name"`
}

type project struct {
	Name      string   `json:"name"`
	Namespace string   `json:"namespace"`
	FullName  string   `json:"fullname"`
	Parent    *project `json:"parent"`
	User      user     `json:"user"`
}

type issue struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Status      string         `json:"status"`
	User        user           `json:"user"`
	Assignee    *user          `json:"assignee"`
	Tags        []string       `json:"tags"`
	DateCreated *api.Timestamp `json:"date_created"`
}

type pullRequest struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	InitialComment string         `json:"initial_comment"`
	Status         string         `json:"status"`
	Branch         string         `json:"branch"`
	BranchFrom     string         `json:"branch_from"`
	User           user           `json:"user"`
	Tags           []string       `json:"tags"`
	DateCreated    *api.Timestamp `json:"date_created"`
}

type pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// do sends a request to path relative to /api/0/ and decodes JSON response into v.
// Form values are sent url encoded when not nil.
func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, v any) error {
	u := c.base.JoinPath("api", "0", path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("pagure: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagure: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("pagure: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, rerr) != nil || rerr.Message == "" {
			rerr.Message = http.StatusText(resp.StatusCode)
		}
		return rerr
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("pagure: decoding response: %w", err)
	}
	return nil
}

// webURL returns web URL of the project path elements.
func (c *Client) webURL(elem ...string) string {
	return c.base.JoinPath(append([]string{c.slug}, elem...)...).String()
}

func (c *Client) Repository(ctx context.Context) (forge.Repository, error) {
	var p project
	if err := c.do(ctx, http.MethodGet, c.slug, nil, nil, &p); err != nil {
		return forge.Repository{}, err
	}

	namespace, name, err := forge.ParseSlug(c.slug)
	if err != nil {
		return forge.Repository{}, err
	}
	repo := forge.Repository{
		Namespace: namespace,
		Name:      name,
		URL:       c.webURL(),
	}
	if p.Parent != nil {
		repo.Fork = true
		repo.Parent = p.Parent.FullName
	}

	var branches struct {
		Default string `json:"default"`
	}
	err = c.do(ctx, http.MethodGet, c.slug+"/git/branches", nil, nil, &branches)
	if err != nil {
		return forge.Repository{}, err
	}
	repo.DefaultBranch = branches.Default
	return repo, nil
}

func (c *Client) ListIssues(ctx context.Context) ([]forge.Issue, error) {
	var issues []forge.Issue
	for page := 1; ; page++ {
		var resp struct {
			Issues     []issue    `json:"issues"`
			Pagination pagination `json:"pagination"`
		}
		query := url.Values{
			"status":   {"Open"},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		}
		if err := c.do(ctx, http.MethodGet, c.slug+"/issues", query, nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Issues {
			issues = append(issues, c.toIssue(item))
		}
		if page >= resp.Pagination.Pages {
			break
		}
	}
	return issues, nil
}

func (c *Client) CreateIssue(ctx context.Context, in forge.NewIssue) (forge.Issue, error) {
	form := url.Values{
		"title":         {in.Title},
		"issue_content": {in.Body},
	}
	if labels := forge.Dedup(in.Labels); len(labels) > 0 {
		form.Set("tag", strings.Join(labels, ","))
	}
	var resp struct {
		Issue issue `json:"issue"`
	}
	if err := c.do(ctx, http.MethodPost, c.slug+"/new_issue", nil, form, &resp); err != nil {
		return forge.Issue{}, err
	}
	return c.toIssue(resp.Issue), nil
}

func (c *Client) CommentIssue(ctx context.Context, number int64, body string) error {
	path := fmt.Sprintf("%s/issue/%d/comment", c.slug, number)
	return c.do(ctx, http.MethodPost, path, nil, url.Values{"comment": {body}}, nil)
}

func (c *Client) CloseIssue(ctx context.Context, number int64) error {
	path := fmt.Sprintf("%s/issue/%d/status", c.slug, number)
	return c.do(ctx, http.MethodPost, path, nil, url.Values{"status": {"Closed"}}, nil)
}

// AssignIssue assigns the issue. Pagure supports a single assignee.
func (c *Client) AssignIssue(ctx context.Context, number int64, assignees ...string) error {
	assignees = forge.Dedup(assignees)
	switch len(assignees) {
	case 0:
		return nil
	case 1:
		path := fmt.Sprintf("%s/issue/%d/assign", c.slug, number)
		return c.do(ctx, http.MethodPost, path, nil, url.Values{"assignee": {assignees[0]}}, nil)
	default:
		return fmt.Errorf("pagure: %w: issues can only have a single assignee", forge.ErrNotSupported)
	}
}

func (c *Client) ListPullRequests(ctx context.Context) ([]forge.PullRequest, error) {
	var prs []forge.PullRequest
	for page := 1; ; page++ {
		var resp struct {
			Requests   []pullRequest `json:"requests"`
			Pagination pagination    `json:"pagination"`
		}
		query := url.Values{
			"status":   {"Open"},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		}
		if err := c.do(ctx, http.MethodGet, c.slug+"/pull-requests", query, nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Requests {
			prs = append(prs, c.toPullRequest(item))
		}
		if page >= resp.Pagination.Pages {
			break
		}
	}
	return prs, nil
}

// CreatePullRequest opens a pull request. When Upstream is set and the project
// is a fork, the pull request is opened on the parent project from the fork.
func (c *Client) CreatePullRequest(ctx context.Context, pr forge.NewPullRequest) (forge.PullRequest, error) {
	if len(forge.Dedup(pr.Labels)) > 0 {
		return forge.PullRequest{}, fmt.Errorf("pagure: %w: labels on pull requests", forge.ErrNotSupported)
	}

	target := c.slug
	form := url.Values{
		"title":           {pr.Title},
		"initial_comment": {pr.Body},
		"branch_to":       {pr.Target},
		"branch_from":     {pr.Source},
	}

	if pr.Upstream {
		var p project
		if err := c.do(ctx, http.MethodGet, c.slug, nil, nil, &p); err != nil {
			return forge.PullRequest{}, err
		}
		if p.Parent != nil {
			target = p.Parent.FullName
			form.Set("repo_from", p.Name)
			form.Set("repo_from_username", p.User.Name)
			if p.Namespace != "" {
				form.Set("repo_from_namespace", p.Namespace)
			}
		}
	}

	var created pullRequest
	if err := c.do(ctx, http.MethodPost, target+"/pull-request/new", nil, form, &created); err != nil {
		return forge.PullRequest{}, err
	}
	rv := c.toPullRequest(created)
	if target != c.slug {
		rv.URL = c.base.JoinPath(target, "pull-request", strconv.FormatInt(created.ID, 10)).String()
	}
	return rv, nil
}

func (c *Client) ListBranches(ctx context.Context) ([]forge.Branch, error) {
	var resp struct {
		Branches map[string]string `json:"branches"`
	}
	query := url.Values{"with_commits": {"true"}}
	if err := c.do(ctx, http.MethodGet, c.slug+"/git/branches", query, nil, &resp); err != nil {
		return nil, err
	}
	branches := make([]forge.Branch, 0, len(resp.Branches))
	for name, sha := range resp.Branches {
		branches = append(branches, forge.Branch{Name: name, SHA: sha})
	}
	slices.SortFunc(branches, func(a, b forge.Branch) int {
		return strings.Compare(a.Name, b.Name)
	})
	return branches, nil
}

// DeleteBranch always returns [forge.ErrNotSupported].
func (c *Client) DeleteBranch(_ context.Context, _ string) error {
	return fmt.Errorf("pagure: %w: deleting branches", forge.ErrNotSupported)
}

func (c *Client) toIssue(item issue) forge.Issue {
	rv := forge.Issue{
		Number: item.ID,
		Title:  item.Title,
		Body:   item.Content,
		State:  item.Status,
		URL:    c.webURL("issue", strconv.FormatInt(item.ID, 10)),
		Author: item.User.Name,
		Labels: item.Tags,
	}
	if item.Assignee != nil && item.Assignee.Name != "" {
		rv.Assignees = []string{item.Assignee.Name}
	}
	if item.DateCreated != nil {
		rv.Created = item.DateCreated.Time
	}
	return rv
}

func (c *Client) toPullRequest(item pullRequest) forge.PullRequest {
	rv := forge.PullRequest{
		Number:       item.ID,
		Title:        item.Title,
		Body:         item.InitialComment,
		State:        item.Status,
		URL:          c.webURL("pull-request", strconv.FormatInt(item.ID, 10)),
		Author:       item.User.Name,
		SourceBranch: item.BranchFrom,
		TargetBranch: item.Branch,
		Labels:       item.Tags,
	}
	if item.DateCreated != nil {
		rv.Created = item.DateCreated.Time
	}
	return rv
}
