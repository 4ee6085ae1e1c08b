// Package discordtest provides an in-process fake of the Discord REST routes
// used by package discord.
package discordtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
)

// Fixed identities served by the fake.
const (
	BotID      = "bot1"
	BotName    = "threadbot"
	ThreadID   = "t1"
	GuildID    = "g1"
	ThreadName = "help me"
)

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
}

// Server answers users/@me, the thread channel, its message listing, message
// posts to any channel and channel edits. Set History and FailOn before
// the first request.
type Server struct {
	// History is the JSON array returned for the thread's message listing.
	History string
	// FailOn is "METHOD /path"; matching requests get 403 Missing Permissions.
	FailOn string

	mu     sync.Mutex
	calls  []Call
	nextID int
	srv    *httptest.Server
}

// NewServer starts a fake closed at the end of the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{History: "[]"}
	s.srv = httptest.NewServer(s)
	t.Cleanup(s.srv.Close)
	return s
}

// Client returns an HTTP client that sends every request to the fake
// instead of discord.com.
func (s *Server) Client() *http.Client {
	target, _ := url.Parse(s.srv.URL)
	return &http.Client{Transport: redirect{target: target}}
}

// Calls returns a copy of the recorded requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Last returns the most recent request.
func (s *Server) Last() Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// Posts returns the bodies of message posts to channelID, in order.
func (s *Server) Posts(channelID string) []string {
	var out []string
	for _, c := range s.Calls() {
		if c.Method == http.MethodPost && c.Path == "/api/v9/channels/"+channelID+"/messages" {
			out = append(out, c.Body)
		}
	}
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: string(b)})
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if s.FailOn != "" && s.FailOn == r.Method+" "+r.URL.Path {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"Missing Permissions","code":50013}`)
		return
	}

	thread := "/api/v9/channels/" + ThreadID
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v9/users/@me":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": BotID, "username": BotName})
	case r.Method == http.MethodGet && r.URL.Path == thread:
		_ = json.NewEncoder(w).Encode(map[string]any{"id": ThreadID, "guild_id": GuildID, "name": ThreadName, "type": 11})
	case r.Method == http.MethodGet && r.URL.Path == thread+"/messages":
		_, _ = io.WriteString(w, s.History)
	case r.Method == http.MethodPost:
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "m" + strconv.Itoa(id), "channel_id": ThreadID})
	case r.Method == http.MethodPatch:
		_ = json.NewEncoder(w).Encode(map[string]any{"id": ThreadID, "guild_id": GuildID})
	default:
		http.NotFound(w, r)
	}
}

type redirect struct{ target *url.URL }

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}
