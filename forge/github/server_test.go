// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

const testToken = "ghs_test_token"

type (
	// testServer is a fake GitHub API serving a set of in-memory repositories.
	testServer struct {
		*httptest.Server
		mu       sync.Mutex
		pageSize int
		repos    map[string]*testRepo
		// authorization headers seen by the server
		authz []string
	}

	testServerOption func(*testServer)

	testRepo struct {
		repo     *github.Repository
		issues   []*github.Issue
		pulls    []*github.PullRequest
		branches []*github.Branch
		comments map[int][]string
		deleted  []string
		seq      int
	}
)

func withRepo(r *testRepo) testServerOption {
	return func(s *testServer) {
		s.repos[r.repo.GetFullName()] = r
	}
}

func withPageSize(n int) testServerOption {
	return func(s *testServer) {
		s.pageSize = n
	}
}

func newRepo(owner, name string) *testRepo {
	return &testRepo{
		repo: &github.Repository{
			Owner:         &github.User{Login: ptr(owner)},
			Name:          ptr(name),
			FullName:      ptr(owner + "/" + name),
			DefaultBranch: ptr("main"),
			HTMLURL:       ptr("https://github.com/" + owner + "/" + name),
		},
		comments: map[int][]string{},
		seq:      100,
	}
}

// next returns the next issue or pull request number.
func (r *testRepo) next() int {
	r.seq++
	return r.seq
}

func newTestServer(t *testing.T, opts ...testServerOption) *testServer {
	t.Helper()
	srv := &testServer{
		pageSize: 100,
		repos:    map[string]*testRepo{},
	}
	for _, o := range opts {
		o(srv)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}", srv.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		writeJSON(w, http.StatusOK, repo.repo)
	}))
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues", srv.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		srv.paginate(w, r, repo.issues)
	}))
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues", srv.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		var req github.IssueRequest
		if !decode(w, r, &req) {
			return
		}
		number := repo.next()
		issue := &github.Issue{
			Number:  ptr(number),
			Title:   req.Title,
			Body:    req.Body,
			State:   ptr("open"),
			HTMLURL: ptr(fmt.Sprintf("%s/issues/%d", repo.repo.GetHTMLURL(), number)),
		}
		if req.Labels != nil {
			for _, l := range *req.Labels {
				issue.Labels = append(issue.Labels, &github.Label{Name: ptr(l)})
			}
		}
		repo.issues = append(repo.issues, issue)
		writeJSON(w, http.StatusCreated, issue)
	}))
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/issues/{number}", srv.handleIssue(func(w http.ResponseWriter, r *http.Request, repo *testRepo, issue *github.Issue) {
		var req github.IssueRequest
		if !decode(w, r, &req) {
			return
		}
		if req.State != nil {
			issue.State = req.State
		}
		writeJSON(w, http.StatusOK, issue)
	}))
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/comments", srv.handleIssue(func(w http.ResponseWriter, r *http.Request, repo *testRepo, issue *github.Issue) {
		var req github.IssueComment
		if !decode(w, r, &req) {
			return
		}
		repo.comments[issue.GetNumber()] = append(repo.comments[issue.GetNumber()], req.GetBody())
		writeJSON(w, http.StatusCreated, &req)
	}))
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/assignees", srv.handleIssue(func(w http.ResponseWriter, r *http.Request, repo *testRepo, issue *github.Issue) {
		var req struct {
			Assignees []string `json:"assignees"`
		}
		if !decode(w, r, &req) {
			return
		}
		for _, a := range req.Assignees {
			issue.Assignees = append(issue.Assignees, &github.User{Login: ptr(a)})
		}
		writeJSON(w, http.StatusCreated, issue)
	}))
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/labels", srv.handleIssue(func(w http.ResponseWriter, r *http.Request, repo *testRepo, issue *github.Issue) {
		var req []string
		if !decode(w, r, &req) {
			return
		}
		for _, l := range req {
			issue.Labels = append(issue.Labels, &github.Label{Name: ptr(l)})
		}
		writeJSON(w, http.StatusOK, issue.Labels)
	}))
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls", srv.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		srv.paginate(w, r, repo.pulls)
	}))
	mux.HandleFunc("POST /repos/{owner}/{repo}/pulls", srv.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		var req github.NewPullRequest
		if !decode(w, r, &req) {
			return
		}
		number := repo.next()
		pr := &github.PullRequest{
			Number:  ptr(number),
			Title:   req.Title,
			Body:    req.Body,
			State:   ptr("open"),
			HTMLURL: ptr(fmt.Sprintf("%s/pull/%d", repo.repo.GetHTMLURL(), number)),
			Head:    &github.PullRequestBranch{Ref: req.Head},
			Base:    &github.PullRequestBranch{Ref: req.Base},
		}
		repo.pulls = append(repo.pulls, pr)
		// Pull requests are issues too.
		repo.issues = append(repo.issues, &github.Issue{
			Number:           ptr(number),
			Title:            req.Title,
			State:            ptr("open"),
			PullRequestLinks: &github.PullRequestLinks{URL: pr.HTMLURL},
		})
		writeJSON(w, http.StatusCreated, pr)
	}))
	mux.HandleFunc("GET /repos/{owner}/{repo}/branches", srv.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		srv.paginate(w, r, repo.branches)
	}))
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/git/refs/heads/{branch...}", srv.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		name := r.PathValue("branch")
		for i, b := range repo.branches {
			if b.GetName() == name {
				repo.branches = append(repo.branches[:i], repo.branches[i+1:]...)
				repo.deleted = append(repo.deleted, name)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference does not exist"})
	}))

	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (s *testServer) handle(fn func(http.ResponseWriter, *http.Request, *testRepo)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.authz = append(s.authz, r.Header.Get("Authorization"))
		repo, ok := s.repos[r.PathValue("owner")+"/"+r.PathValue("repo")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		fn(w, r, repo)
	}
}

func (s *testServer) handleIssue(fn func(http.ResponseWriter, *http.Request, *testRepo, *github.Issue)) http.HandlerFunc {
	return s.handle(func(w http.ResponseWriter, r *http.Request, repo *testRepo) {
		number, err := strconv.Atoi(r.PathValue("number"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		for _, issue := range repo.issues {
			if issue.GetNumber() == number {
				fn(w, r, repo, issue)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
}

// writePage writes a page of items and a Link header pointing to the next page.
func writePage[T any](s *testServer, w http.ResponseWriter, r *http.Request, items []T) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * s.pageSize
	end := start + s.pageSize
	if start > len(items) {
		start = len(items)
	}
	if end >= len(items) {
		end = len(items)
	} else {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, s.URL, next.RequestURI()))
	}
	writeJSON(w, http.StatusOK, items[start:end])
}

func (s *testServer) paginate(w http.ResponseWriter, r *http.Request, items any) {
	switch v := items.(type) {
	case []*github.Issue:
		writePage(s, w, r, openOnly(r, v))
	case []*github.PullRequest:
		writePage(s, w, r, openOnly(r, v))
	case []*github.Branch:
		writePage(s, w, r, v)
	default:
		panic(fmt.Sprintf("unsupported type %T", items))
	}
}

// stater is implemented by issues and pull requests.
type stater interface {
	GetState() string
}

// openOnly filters items by the state query parameter.
func openOnly[T stater](r *http.Request, items []T) []T {
	if r.URL.Query().Get("state") != "open" {
		return items
	}
	rv := make([]T, 0, len(items))
	for _, item := range items {
		if item.GetState() == "open" {
			rv = append(rv, item)
		}
	}
	return rv
}

func (s *testServer) repo(slug string) *testRepo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[slug]
}

// client returns a forge client for the given repository.
func (s *testServer) client(t *testing.T, slug string) *Client {
	t.Helper()
	namespace, name, err := forge.ParseSlug(slug)
	require.NoError(t, err)
	client, err := New(context.Background(), forge.Config{
		BaseURL:   s.URL,
		Namespace: namespace,
		Name:      name,
		Token:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: testToken}),
	})
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return false
	}
	return true
}
