// Package router implements path/method dispatch, the traversal guard, and
// session gating for protected resources (spec.md §4.G), plus the concrete
// auth/history/video-list handlers that spec.md §9 treats as external
// collaborators but a runnable repo still needs behind those exact
// signatures (grounded on original_source/src/app/auth_handler.c and
// history_handler.c).
package router

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/streamd/streamd/internal/connrecord"
	"github.com/streamd/streamd/internal/httpparse"
	"github.com/streamd/streamd/internal/httpresult"
	"github.com/streamd/streamd/internal/session"
)

// Authenticator is the verify_user/create_user collaborator pair from
// spec.md §6.
type Authenticator interface {
	VerifyUser(username, password string) (userID int, ok bool, err error)
	CreateUser(username, password string) error
}

// HistoryUpdater is the update_history collaborator from spec.md §6.
type HistoryUpdater interface {
	UpdateHistory(userID, videoID, positionSeconds int) error
}

// VideoLister is the video_list_json collaborator from spec.md §6.
type VideoLister interface {
	ListJSON(userID int) (string, error)
}

// staticExtensions is the set static responses are allowed for, per
// spec.md §4.G step 4/6.
var staticExtensions = map[string]bool{
	".html": true, ".css": true, ".js": true,
	".png": true, ".jpg": true, ".ico": true,
}

// NextStep tells the connection-step executor which responder to invoke
// after Route returns, for the cases where the response isn't already
// fully composed.
type NextStep int

const (
	// NextNone means the router already wrote a complete response into
	// conn.Buffer/conn.Body and set conn.State to SendingHeader.
	NextNone NextStep = iota
	// NextStatic means the static file responder should open
	// conn.RequestPath and take over.
	NextStatic
	// NextStream means the streaming responder should open
	// conn.RequestPath and take over.
	NextStream
)

// Decision is Route's return value: either a fully-composed response, a
// handoff to another responder, or an error to send and close on.
type Decision struct {
	Result httpresult.Result
	Next   NextStep
}

// Router holds the services a request may need to consult.
type Router struct {
	Sessions      *session.Table
	Auth          Authenticator
	History       HistoryUpdater
	Videos        VideoLister
	StaticDir     string
	SessionTTLSec int
}

// Route implements the first-match dispatch order of spec.md §4.G.
func (r *Router) Route(conn *connrecord.Conn, req httpparse.Request, body string) Decision {
	if strings.Contains(req.Path, "..") {
		return Decision{Result: httpresult.Result{Kind: httpresult.HTTPError, Code: 403}}
	}

	switch {
	case req.Method == httpparse.MethodPost && req.Path == "/login":
		return r.handleLogin(conn, body)
	case req.Method == httpparse.MethodPost && req.Path == "/logout":
		return r.handleLogout(conn, req)
	case req.Method == httpparse.MethodPost && req.Path == "/register":
		return r.handleRegister(conn, body)
	case req.Method == httpparse.MethodPost && req.Path == "/api/history":
		return r.handleHistory(conn, req, body)
	case req.Method == httpparse.MethodGet && req.Path == "/api/videos":
		return r.handleVideoList(conn, req)
	}

	resolved := r.normalizePath(req.Path)
	ext := strings.ToLower(path.Ext(resolved))

	if ext == ".mp4" {
		userID, ok := r.Sessions.Lookup(req.SessionID)
		if !ok {
			return Decision{Result: httpresult.Result{Kind: httpresult.HTTPError, Code: 401}}
		}
		_ = userID
		conn.RequestPath = resolved
		conn.RangeStart = req.RangeStart
		conn.RangeEnd = req.RangeEnd
		return Decision{Result: httpresult.Result{Kind: httpresult.Ok}, Next: NextStream}
	}

	if staticExtensions[ext] {
		conn.RequestPath = resolved
		return Decision{Result: httpresult.Result{Kind: httpresult.Ok}, Next: NextStatic}
	}

	return Decision{Result: httpresult.Result{Kind: httpresult.HTTPError, Code: 404}}
}

// normalizePath implements spec.md §4.G step 4.
func (r *Router) normalizePath(p string) string {
	if p == "/" {
		return joinStatic(r.StaticDir, "index.html")
	}
	ext := strings.ToLower(path.Ext(p))
	if staticExtensions[ext] {
		if strings.HasPrefix(p, "/static/") {
			return "." + p
		}
		return joinStatic(r.StaticDir, strings.TrimPrefix(p, "/"))
	}
	return "." + p
}

func joinStatic(dir, rel string) string {
	return strings.TrimSuffix(dir, "/") + "/" + rel
}

const (
	jsonLoginSuccess  = `{"success": true}`
	jsonLoginFail     = `{"success": false, "message": "Invalid credentials"}`
	jsonLogoutSuccess = `{"success": true, "message": "Logged out"}`
	jsonRegSuccess    = `{"success": true, "message": "User created"}`
	jsonRegFail       = `{"success": false, "message": "Username already exists"}`
	jsonUnauthorized  = `{"success":false,"message":"Unauthorized"}`
	jsonHistoryOK     = `{"success": true}`
	jsonHistoryFail   = `{"success": false, "message": "Internal server error"}`
)

// writeJSON composes a status-line + headers into conn.Buffer and the JSON
// payload into conn.Body (heap-owned, never mixed into Buffer — spec.md §3
// invariant 4), then arms SendingHeader.
func writeJSON(conn *connrecord.Conn, status int, body string, extraHeaders string) {
	header := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\n%sConnection: keep-alive\r\n\r\n",
		status, httpresult.StatusText(status), len(body), extraHeaders,
	)
	n := copy(conn.Buffer[:], header)
	conn.BufferLen = n
	conn.BufferSent = 0
	conn.Body = []byte(body)
	conn.BodySent = 0
	conn.State = connrecord.SendingHeader
}

func (r *Router) handleLogin(conn *connrecord.Conn, body string) Decision {
	username, uok := httpparse.FormParam(body, "username")
	password, pok := httpparse.FormParam(body, "password")
	if !uok || !pok {
		return Decision{Result: httpresult.Result{Kind: httpresult.HTTPError, Code: 400}}
	}

	userID, ok, err := r.Auth.VerifyUser(username, password)
	if err != nil {
		return Decision{Result: httpresult.Result{Kind: httpresult.Fatal, Err: err}}
	}
	if !ok {
		writeJSON(conn, 401, jsonLoginFail, "")
		return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
	}

	sessionID, err := r.Sessions.Create(userID)
	if err != nil {
		return Decision{Result: httpresult.Result{Kind: httpresult.Fatal, Err: err}}
	}

	cookie := fmt.Sprintf("Set-Cookie: session_id=%s; Path=/; HttpOnly; Max-Age=%d\r\n", sessionID, r.SessionTTLSec)
	writeJSON(conn, 200, jsonLoginSuccess, cookie)
	return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
}

func (r *Router) handleLogout(conn *connrecord.Conn, req httpparse.Request) Decision {
	if req.SessionID != "" {
		r.Sessions.Remove(req.SessionID)
	}
	cookie := "Set-Cookie: session_id=; Path=/; HttpOnly; Max-Age=0\r\n"
	writeJSON(conn, 200, jsonLogoutSuccess, cookie)
	return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
}

func (r *Router) handleRegister(conn *connrecord.Conn, body string) Decision {
	username, uok := httpparse.FormParam(body, "username")
	password, pok := httpparse.FormParam(body, "password")
	if !uok || !pok {
		return Decision{Result: httpresult.Result{Kind: httpresult.HTTPError, Code: 400}}
	}

	if err := r.Auth.CreateUser(username, password); err != nil {
		writeJSON(conn, 409, jsonRegFail, "")
		return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
	}
	writeJSON(conn, 200, jsonRegSuccess, "")
	return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
}

func (r *Router) handleHistory(conn *connrecord.Conn, req httpparse.Request, body string) Decision {
	userID, ok := r.Sessions.Lookup(req.SessionID)
	if !ok {
		writeJSON(conn, 401, jsonUnauthorized, "")
		return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
	}

	videoIDStr, vok := httpparse.FormParam(body, "video_id")
	posStr, pok := httpparse.FormParam(body, "timestamp")
	if !vok || !pok {
		return Decision{Result: httpresult.Result{Kind: httpresult.HTTPError, Code: 400}}
	}
	videoID, err1 := strconv.Atoi(videoIDStr)
	position, err2 := strconv.Atoi(posStr)
	if err1 != nil || err2 != nil {
		return Decision{Result: httpresult.Result{Kind: httpresult.HTTPError, Code: 400}}
	}

	// Acknowledge only after the write succeeds (spec.md §9 Open Question 2,
	// decided in SPEC_FULL.md §4.J: no write-behind).
	if err := r.History.UpdateHistory(userID, videoID, position); err != nil {
		writeJSON(conn, 500, jsonHistoryFail, "")
		return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
	}
	writeJSON(conn, 200, jsonHistoryOK, "")
	return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
}

func (r *Router) handleVideoList(conn *connrecord.Conn, req httpparse.Request) Decision {
	userID, ok := r.Sessions.Lookup(req.SessionID)
	if !ok {
		writeJSON(conn, 401, jsonUnauthorized, "")
		return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
	}

	listJSON, err := r.Videos.ListJSON(userID)
	if err != nil {
		return Decision{Result: httpresult.Result{Kind: httpresult.Fatal, Err: err}}
	}
	writeJSON(conn, 200, listJSON, "")
	return Decision{Result: httpresult.Result{Kind: httpresult.Ok}}
}
