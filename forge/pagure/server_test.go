// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package pagure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tprasadtp/go-sourcemanagement/forge"
)

const testToken = "pagure-test-token"

type fakeProject struct {
	info          map[string]any
	defaultBranch string
	issues        []map[string]any
	requests      []map[string]any
	branches      map[string]string
	// form values of POST requests keyed by operation
	posts map[string][]map[string]string
}

type fakePagure struct {
	server   *httptest.Server
	mu       sync.Mutex
	projects map[string]*fakeProject
	pageSize int
	authz    []string
}

func newFakePagure(t *testing.T) *fakePagure {
	t.Helper()
	f := &fakePagure{
		projects: map[string]*fakeProject{},
		pageSize: 100,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.server.Close)
	return f
}

// addProject adds a project with slug namespace/name. parent is optional.
func (f *fakePagure) addProject(slug, user string, parent *fakeProject) *fakeProject {
	namespace, name, _ := forge.ParseSlug(slug)
	info := map[string]any{
		"name":      name,
		"namespace": namespace,
		"fullname":  slug,
		"user":      map[string]string{"name": user},
		"parent":    nil,
	}
	if rest, ok := strings.CutPrefix(namespace, "fork/"); ok {
		// fork/<user>[/<namespace>]
		if _, ns, found := strings.Cut(rest, "/"); found {
			info["namespace"] = ns
		} else {
			info["namespace"] = nil
		}
	}
	if parent != nil {
		info["parent"] = parent.info
	}
	p := &fakeProject{
		info:          info,
		defaultBranch: "main",
		branches:      map[string]string{},
		posts:         map[string][]map[string]string{},
	}
	f.mu.Lock()
	f.projects[slug] = p
	f.mu.Unlock()
	return p
}

func (f *fakePagure) serveHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authz = append(f.authz, r.Header.Get("Authorization"))

	path, ok := strings.CutPrefix(r.URL.Path, "/api/0/")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}

	// longest matching project slug
	var matched string
	for slug := range f.projects {
		if (path == slug || strings.HasPrefix(path, slug+"/")) && len(slug) > len(matched) {
			matched = slug
		}
	}
	project, rest := f.projects[matched], strings.TrimPrefix(path, matched)
	if project == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Project not found", "error_code": "ENOPROJECT"})
		return
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		values := map[string]string{}
		for k := range r.PostForm {
			values[k] = r.PostForm.Get(k)
		}
		project.posts[rest] = append(project.posts[rest], values)
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, project.info)
	case rest == "/git/branches" && r.Method == http.MethodGet:
		if r.URL.Query().Get("with_commits") == "true" {
			writeJSON(w, http.StatusOK, map[string]any{"branches": project.branches, "total_branches": len(project.branches)})
			return
		}
		names := make([]string, 0, len(project.branches))
		for name := range project.branches {
			names = append(names, name)
		}
		writeJSON(w, http.StatusOK, map[string]any{"branches": names, "default": project.defaultBranch})
	case rest == "/issues" && r.Method == http.MethodGet:
		var open []map[string]any
		for _, issue := range project.issues {
			if issue["status"] == r.URL.Query().Get("status") {
				open = append(open, issue)
			}
		}
		f.writePage(w, r, "issues", open)
	case rest == "/new_issue" && r.Method == http.MethodPost:
		issue := map[string]any{
			"id":           len(project.issues) + 1,
			"title":        r.PostForm.Get("title"),
			"content":      r.PostForm.Get("issue_content"),
			"status":       "Open",
			"user":         map[string]string{"name": "bot"},
			"assignee":     nil,
			"tags":         splitTags(r.PostForm.Get("tag")),
			"date_created": "1700000000",
		}
		project.issues = append(project.issues, issue)
		writeJSON(w, http.StatusOK, map[string]any{"issue": issue, "message": "Issue created"})
	case strings.HasPrefix(rest, "/issue/") && r.Method == http.MethodPost:
		id, op, _ := strings.Cut(strings.TrimPrefix(rest, "/issue/"), "/")
		n, _ := strconv.Atoi(id)
		var issue map[string]any
		for _, item := range project.issues {
			if item["id"] == n {
				issue = item
			}
		}
		if issue == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Issue not found", "error_code": "ENOISSUE"})
			return
		}
		switch op {
		case "comment":
			writeJSON(w, http.StatusOK, map[string]string{"message": "Comment added"})
		case "status":
			issue["status"] = r.PostForm.Get("status")
			writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully edited issue #" + id})
		case "assign":
			issue["assignee"] = map[string]string{"name": r.PostForm.Get("assignee")}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Issue assigned"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		}
	case rest == "/pull-requests" && r.Method == http.MethodGet:
		var open []map[string]any
		for _, pr := range project.requests {
			if pr["status"] == r.URL.Query().Get("status") {
				open = append(open, pr)
			}
		}
		f.writePage(w, r, "requests", open)
	case rest == "/pull-request/new" && r.Method == http.MethodPost:
		pr := map[string]any{
			"id":              len(project.requests) + 1,
			"title":           r.PostForm.Get("title"),
			"initial_comment": r.PostForm.Get("initial_comment"),
			"status":          "Open",
			"branch":          r.PostForm.Get("branch_to"),
			"branch_from":     r.PostForm.Get("branch_from"),
			"user":            map[string]string{"name": "bot"},
			"tags":            []string{},
			"date_created":    "1700000000",
		}
		project.requests = append(project.requests, pr)
		writeJSON(w, http.StatusOK, pr)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	}
}

func (f *fakePagure) writePage(w http.ResponseWriter, r *http.Request, key string, items []map[string]any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pages := (len(items) + f.pageSize - 1) / f.pageSize
	if pages == 0 {
		pages = 1
	}
	start := min((page-1)*f.pageSize, len(items))
	end := min(start+f.pageSize, len(items))
	if items == nil {
		items = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		key: items[start:end],
		"pagination": map[string]any{
			"page":     page,
			"pages":    pages,
			"per_page": f.pageSize,
		},
	})
}

func (f *fakePagure) client(t *testing.T, slug string) *Client {
	t.Helper()
	namespace, name, err := forge.ParseSlug(slug)
	require.NoError(t, err)
	client, err := New(context.Background(), forge.Config{
		BaseURL:   f.server.URL,
		Namespace: namespace,
		Name:      name,
		Token:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: testToken}),
	})
	require.NoError(t, err)
	return client
}

func (f *fakePagure) project(slug string) *fakeProject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects[slug]
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
