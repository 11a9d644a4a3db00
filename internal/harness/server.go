package harness

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

const (
	harnessToken = "harness-token"
	badPassword  = "wrong"
)

// apiServer is a scripted tracking API. While offline it drops every
// connection without answering.
type apiServer struct {
	mu        sync.Mutex
	online    bool
	responses []Response

	srv *httptest.Server
}

func newAPIServer(online bool) *apiServer {
	a := &apiServer{online: online}
	a.srv = httptest.NewServer(http.HandlerFunc(a.handle))
	return a
}

func (a *apiServer) URL() string { return a.srv.URL }

func (a *apiServer) Close() { a.srv.Close() }

func (a *apiServer) setOnline(online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.online = online
}

func (a *apiServer) push(rs ...Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = append(a.responses, rs...)
}

func (a *apiServer) next() Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.responses) == 0 {
		return Response{Status: http.StatusOK, Body: `{}`}
	}
	r := a.responses[0]
	a.responses = a.responses[1:]
	return r
}

func (a *apiServer) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	online := a.online
	a.mu.Unlock()

	if !online {
		drop(w)
		return
	}

	switch r.URL.Path {
	case "/login":
		a.handleLogin(w, r)
	case "/add_record":
		if r.Header.Get("Authorization") != "Bearer "+harnessToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
			return
		}
		resp := a.next()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.Status)
		_, _ = w.Write([]byte(resp.Body))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (a *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Surname  string `json:"surname"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed login"})
		return
	}
	if req.Password == badPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        harnessToken,
		"surname":      req.Surname,
		"access_level": 0,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// drop closes the connection without writing a response.
func drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}
