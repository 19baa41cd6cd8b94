// Package testutil provides testing utilities for the feed pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/feedagg/pkg/feed"
)

// Paths served by MockUpstream, laid out like jsonplaceholder.
const (
	PostsPath = "/posts"
)

// MediaPath returns the media path of one record.
func MediaPath(recordID int) string {
	return fmt.Sprintf("/albums/%d/photos", recordID)
}

// UserPath returns the owner path of one owner.
func UserPath(ownerID int) string {
	return fmt.Sprintf("/users/%d", ownerID)
}

// MockResponse defines a forced response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockUpstream is a configurable in-memory feed upstream for testing.
// Pages are served from /posts honouring start/limit (and the _start/_limit
// spelling), media from /albums/{id}/photos and owners from /users/{id}.
type MockUpstream struct {
	server *httptest.Server
	mu     sync.RWMutex

	posts  []feed.Record
	media  map[int][]feed.MediaItem
	owners map[int]feed.Owner

	overrides map[string]MockResponse
	delays    map[string]time.Duration

	requests map[string]int
	queries  []string
}

// NewMockUpstream creates and starts a new mock upstream.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{
		media:     make(map[int][]feed.MediaItem),
		owners:    make(map[int]feed.Owner),
		overrides: make(map[string]MockResponse),
		delays:    make(map[string]time.Duration),
		requests:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /posts", m.handlePosts)
	mux.HandleFunc("GET /albums/{id}/photos", m.handleMedia)
	mux.HandleFunc("GET /users/{id}", m.handleOwner)

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[r.URL.Path]++
		if r.URL.Path == PostsPath {
			m.queries = append(m.queries, r.URL.RawQuery)
		}
		override, hasOverride := m.overrides[r.URL.Path]
		delay := m.delays[r.URL.Path]
		m.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		if hasOverride {
			if override.Delay > 0 {
				time.Sleep(override.Delay)
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(override.StatusCode)
			if override.Body != "" {
				w.Write([]byte(override.Body))
			}
			return
		}

		mux.ServeHTTP(w, r)
	}))

	return m
}

// Seed fills the upstream with n posts (ids 1..n). Like jsonplaceholder,
// every ten consecutive posts share one owner, and every post has
// mediaPerPost media items.
func (m *MockUpstream) Seed(n, mediaPerPost int) *MockUpstream {
	for id := 1; id <= n; id++ {
		ownerID := (id-1)/10 + 1
		m.AddPost(feed.Record{
			ID:      id,
			OwnerID: ownerID,
			Title:   fmt.Sprintf("post %d", id),
			Body:    fmt.Sprintf("body of post %d", id),
		})

		items := make([]feed.MediaItem, 0, mediaPerPost)
		for i := 1; i <= mediaPerPost; i++ {
			items = append(items, feed.MediaItem{URL: fmt.Sprintf("https://via.placeholder.com/600/%d-%d", id, i)})
		}
		m.SetMedia(id, items...)

		m.AddOwner(feed.Owner{
			ID:    ownerID,
			Name:  fmt.Sprintf("Owner Number%d", ownerID),
			Email: fmt.Sprintf("owner%d@example.com", ownerID),
		})
	}
	return m
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// AddPost appends a post to the collection.
func (m *MockUpstream) AddPost(rec feed.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, rec)
}

// SetMedia sets the media of one record.
func (m *MockUpstream) SetMedia(recordID int, items ...feed.MediaItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media[recordID] = items
}

// AddOwner registers an owner profile.
func (m *MockUpstream) AddOwner(owner feed.Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[owner.ID] = owner
}

// SetResponse forces the response for an exact path, e.g. to inject failures.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[path] = resp
}

// ClearResponse removes a forced response.
func (m *MockUpstream) ClearResponse(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, path)
}

// SetDelay delays every response for path.
func (m *MockUpstream) SetDelay(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = d
}

// RequestCount returns the number of requests made to path.
func (m *MockUpstream) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// TotalRequests returns the number of requests made to the server.
func (m *MockUpstream) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// PageQueries returns the raw query strings of every page request, in order.
func (m *MockUpstream) PageQueries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.queries...)
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.queries = nil
}

func (m *MockUpstream) handlePosts(w http.ResponseWriter, r *http.Request) {
	start, err := queryInt(r, 0, "start", "_start")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	total := len(m.posts)
	limit, err := queryInt(r, total, "limit", "_limit")
	if err != nil {
		m.mu.RUnlock()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page := []feed.Record{}
	if start < total {
		end := start + limit
		if end > total {
			end = total
		}
		page = append(page, m.posts[start:end]...)
	}
	m.mu.RUnlock()

	writeJSON(w, http.StatusOK, page)
}

func (m *MockUpstream) handleMedia(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	items, ok := m.media[id]
	m.mu.RUnlock()

	// jsonplaceholder answers unknown albums with an empty list
	if !ok {
		items = []feed.MediaItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (m *MockUpstream) handleOwner(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	owner, ok := m.owners[id]
	m.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{})
		return
	}
	writeJSON(w, http.StatusOK, owner)
}

// queryInt reads the first present parameter among names.
func queryInt(r *http.Request, def int, names ...string) (int, error) {
	q := r.URL.Query()
	for _, name := range names {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid %s %q", name, v)
			}
			return n, nil
		}
	}
	return def, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
