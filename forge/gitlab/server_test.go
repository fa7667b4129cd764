// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package gitlab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

const testToken = "glpat-test-token"

// --- test fixtures ---

type gitlabUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type gitlabIssue struct {
	ID          int64         `json:"id"`
	Author      *gitlabUser   `json:"author,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	State       string        `json:"state"`
	WebURL      string        `json:"web_url,omitempty"`
	Labels      []string      `json:"labels"`
	Assignees   []*gitlabUser `json:"assignees"`
	IID         int64         `json:"iid"`
	Notes       []string      `json:"-"`
}

type gitlabMergeRequest struct {
	ID              int64       `json:"id"`
	Author          *gitlabUser `json:"author,omitempty"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	State           string      `json:"state"`
	SourceBranch    string      `json:"source_branch"`
	TargetBranch    string      `json:"target_branch"`
	Labels          []string    `json:"labels"`
	IID             int64       `json:"iid"`
	TargetProjectID int64       `json:"target_project_id"`
}

type gitlabBranch struct {
	Commit *struct {
		ID string `json:"id"`
	} `json:"commit,omitempty"`
	Name string `json:"name"`
}

type gitlabForkParent struct {
	PathWithNamespace string `json:"path_with_namespace"`
	ID                int64  `json:"id"`
}

type gitlabNamespace struct {
	FullPath string `json:"full_path"`
}

type gitlabProject struct {
	Namespace         *gitlabNamespace  `json:"namespace,omitempty"`
	ForkedFromProject *gitlabForkParent `json:"forked_from_project,omitempty"`
	Path              string            `json:"path"`
	PathWithNamespace string            `json:"path_with_namespace"`
	DefaultBranch     string            `json:"default_branch"`
	WebURL            string            `json:"web_url"`
	ID                int64             `json:"id"`
}

type gitlabAPIMock struct {
	server   *httptest.Server
	project  gitlabProject
	users    []gitlabUser
	issues   []*gitlabIssue
	mrs      []*gitlabMergeRequest
	branches []gitlabBranch
	deleted  []string
	tokens   []string
	pageSize int
	mu       sync.Mutex
}

func newGitLabAPIMock(t *testing.T, project string) *gitlabAPIMock {
	t.Helper()
	namespace, path, err := forge.ParseSlug(project)
	require.NoError(t, err)
	m := &gitlabAPIMock{
		pageSize: 100,
		project: gitlabProject{
			ID:                42,
			Namespace:         &gitlabNamespace{FullPath: namespace},
			Path:              path,
			PathWithNamespace: project,
			DefaultBranch:     "main",
			WebURL:            "https://gitlab.example.test/" + project,
		},
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	t.Cleanup(m.server.Close)
	return m
}

func (m *gitlabAPIMock) serveHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := r.URL.EscapedPath()
	if path == "/api/v4/users" && r.Method == http.MethodGet {
		m.tokens = append(m.tokens, r.Header.Get("Private-Token"))
		var rv []gitlabUser
		for _, u := range m.users {
			if u.Username == r.URL.Query().Get("username") {
				rv = append(rv, u)
			}
		}
		writeJSON(w, http.StatusOK, rv)
		return
	}

	prefix := "/api/v4/projects/" + url.PathEscape(m.project.PathWithNamespace)
	if !strings.HasPrefix(path, prefix) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Project Not Found"})
		return
	}
	m.tokens = append(m.tokens, r.Header.Get("Private-Token"))
	rest := strings.TrimPrefix(path, prefix)

	switch {
	case rest == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, m.project)
	case rest == "/issues" && r.Method == http.MethodGet:
		var open []*gitlabIssue
		for _, issue := range m.issues {
			if issue.State == r.URL.Query().Get("state") {
				open = append(open, issue)
			}
		}
		writePage(m, w, r, open)
	case rest == "/issues" && r.Method == http.MethodPost:
		var req struct {
			Title       string          `json:"title"`
			Description string          `json:"description"`
			Labels      json.RawMessage `json:"labels"`
		}
		if !decode(w, r, &req) {
			return
		}
		issue := &gitlabIssue{
			ID:          1000 + int64(len(m.issues)+1),
			IID:         int64(len(m.issues) + 1),
			Title:       req.Title,
			Description: req.Description,
			State:       "opened",
			Labels:      parseLabels(req.Labels),
		}
		m.issues = append(m.issues, issue)
		writeJSON(w, http.StatusCreated, issue)
	case strings.HasPrefix(rest, "/issues/"):
		m.serveIssue(w, r, strings.TrimPrefix(rest, "/issues/"))
	case rest == "/merge_requests" && r.Method == http.MethodGet:
		var open []*gitlabMergeRequest
		for _, mr := range m.mrs {
			if mr.State == r.URL.Query().Get("state") {
				open = append(open, mr)
			}
		}
		writePage(m, w, r, open)
	case rest == "/merge_requests" && r.Method == http.MethodPost:
		var req struct {
			Title           string          `json:"title"`
			Description     string          `json:"description"`
			SourceBranch    string          `json:"source_branch"`
			TargetBranch    string          `json:"target_branch"`
			Labels          json.RawMessage `json:"labels"`
			TargetProjectID int64           `json:"target_project_id"`
		}
		if !decode(w, r, &req) {
			return
		}
		mr := &gitlabMergeRequest{
			ID:              2000 + int64(len(m.mrs)+1),
			IID:             int64(len(m.mrs) + 1),
			Title:           req.Title,
			Description:     req.Description,
			State:           "opened",
			SourceBranch:    req.SourceBranch,
			TargetBranch:    req.TargetBranch,
			TargetProjectID: req.TargetProjectID,
			Labels:          parseLabels(req.Labels),
		}
		m.mrs = append(m.mrs, mr)
		writeJSON(w, http.StatusCreated, mr)
	case rest == "/repository/branches" && r.Method == http.MethodGet:
		writePage(m, w, r, m.branches)
	case strings.HasPrefix(rest, "/repository/branches/") && r.Method == http.MethodDelete:
		name, err := url.PathUnescape(strings.TrimPrefix(rest, "/repository/branches/"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		for i, b := range m.branches {
			if b.Name == name {
				m.branches = append(m.branches[:i], m.branches[i+1:]...)
				m.deleted = append(m.deleted, name)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Branch Not Found"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Not Found"})
	}
}

func (m *gitlabAPIMock) serveIssue(w http.ResponseWriter, r *http.Request, rest string) {
	iid, sub, _ := strings.Cut(rest, "/")
	n, _ := strconv.ParseInt(iid, 10, 64)
	var issue *gitlabIssue
	for _, item := range m.issues {
		if item.IID == n {
			issue = item
		}
	}
	if issue == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Issue Not Found"})
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodPut:
		var req struct {
			StateEvent  string   `json:"state_event"`
			AssigneeIDs *[]int64 `json:"assignee_ids"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.StateEvent == "close" {
			issue.State = "closed"
		}
		if req.AssigneeIDs != nil {
			issue.Assignees = nil
			for _, id := range *req.AssigneeIDs {
				for _, u := range m.users {
					if u.ID == id {
						issue.Assignees = append(issue.Assignees, &gitlabUser{ID: u.ID, Username: u.Username})
					}
				}
			}
		}
		writeJSON(w, http.StatusOK, issue)
	case sub == "notes" && r.Method == http.MethodPost:
		var req struct {
			Body string `json:"body"`
		}
		if !decode(w, r, &req) {
			return
		}
		issue.Notes = append(issue.Notes, req.Body)
		writeJSON(w, http.StatusCreated, map[string]any{"id": len(issue.Notes), "body": req.Body})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Not Found"})
	}
}

// writePage writes a page of items and sets X-Next-Page when more are available.
func writePage[T any](m *gitlabAPIMock, w http.ResponseWriter, r *http.Request, items []T) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * m.pageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + m.pageSize
	if end < len(items) {
		w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
	} else {
		end = len(items)
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items[start:end])
}

func (m *gitlabAPIMock) client(t *testing.T) *Client {
	t.Helper()
	namespace, name, err := forge.ParseSlug(m.project.PathWithNamespace)
	require.NoError(t, err)
	client, err := New(context.Background(), forge.Config{
		BaseURL:   m.server.URL,
		Namespace: namespace,
		Name:      name,
		Token:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: testToken}),
	})
	require.NoError(t, err)
	return client
}

// addIssues adds issues to the project. GitLab always sends the global
// id along with the project scoped iid.
func (m *gitlabAPIMock) addIssues(issues ...*gitlabIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, issue := range issues {
		if issue.ID == 0 {
			issue.ID = 1000 + issue.IID
		}
		m.issues = append(m.issues, issue)
	}
}

func (m *gitlabAPIMock) addMergeRequests(mrs ...*gitlabMergeRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mr := range mrs {
		if mr.ID == 0 {
			mr.ID = 2000 + mr.IID
		}
		m.mrs = append(m.mrs, mr)
	}
}

func (m *gitlabAPIMock) issue(iid int64) gitlabIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, issue := range m.issues {
		if issue.IID == iid {
			return *issue
		}
	}
	return gitlabIssue{}
}

// parseLabels accepts labels as a comma separated string or a list.
func parseLabels(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return strings.Split(s, ",")
	}
	var list []string
	_ = json.Unmarshal(raw, &list)
	return list
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return false
	}
	return true
}
