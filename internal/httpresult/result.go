// Package httpresult implements the tagged result variant spec.md §9 asks
// for in place of http_utils.c's HttpResult enum mixing status codes with
// sentinel negatives: {Ok, HTTPError(code), Fatal(err)}.
package httpresult

import (
	"fmt"
	"io"
)

// Kind distinguishes the three result shapes a step can produce.
type Kind int

const (
	Ok Kind = iota
	HTTPError
	Fatal
)

// Result is returned by router/responder steps instead of mixing status
// codes into a bare int.
type Result struct {
	Kind Kind
	Code int   // valid when Kind == HTTPError
	Err  error // valid when Kind == Fatal
}

func (r Result) String() string {
	switch r.Kind {
	case Ok:
		return "Ok"
	case HTTPError:
		return fmt.Sprintf("HTTPError(%d)", r.Code)
	case Fatal:
		return fmt.Sprintf("Fatal(%v)", r.Err)
	default:
		return "Unknown"
	}
}

var statusText = map[int]string{
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	409: "Conflict",
	416: "Range Not Satisfiable",
	500: "Internal Server Error",
	503: "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "Error" if unknown.
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Error"
}

// WriteError writes a minimal error response: Content-Length: 0,
// Connection: close, exactly as spec.md §6 requires for every error
// response. It never blocks waiting for a full write — a best-effort single
// call is enough since error headers are always small (http_utils.c's
// send_error_response does the same: "best-effort, don't wait on EAGAIN for
// an error").
func WriteError(w io.Writer, code int) error {
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", code, StatusText(code))
	_, err := io.WriteString(w, resp)
	return err
}
