// Package httpparse parses the request-line and header block of a single
// HTTP/1.1 request out of a connection's fixed header buffer. Grounded on
// original_source/src/app/http_handler.c and http_utils.c's
// http_get_form_param, generalized to spec.md §4.F.
package httpparse

import (
	"strconv"
	"strings"
)

// Method enumerates the request methods the router cares about. Anything
// else parses as MethodUnknown and is routed to a 404/405 by the router.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodOptions
)

func parseMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	case "OPTIONS":
		return MethodOptions
	default:
		return MethodUnknown
	}
}

// Request holds the parsed fields a connrecord.Conn caches once parsing
// succeeds.
type Request struct {
	Method      Method
	Path        string
	RangeStart  int64
	RangeEnd    int64 // -1 = open-ended
	SessionID   string
	BodyOffset  int // offset into the original buffer where the body starts
	HeaderBytes int // length of the header block, including the blank line
}

// ErrIncomplete signals that buf does not yet contain a full header block
// (no "\r\n\r\n" found); the caller should re-arm for more input.
var ErrIncomplete = incompleteError{}

type incompleteError struct{}

func (incompleteError) Error() string { return "incomplete request: missing header terminator" }

// ErrMalformed signals a request-line that doesn't have exactly three
// whitespace-separated fields.
var ErrMalformed = malformedError{}

type malformedError struct{}

func (malformedError) Error() string { return "malformed request line" }

const headerTerminator = "\r\n\r\n"

// Parse looks for the end of the header block in buf[:n] and, if found,
// parses the request line and headers. It never inspects bytes beyond n.
func Parse(buf []byte, n int) (Request, error) {
	data := buf[:n]
	idx := strings.Index(string(data), headerTerminator)
	if idx < 0 {
		return Request{}, ErrIncomplete
	}

	head := string(data[:idx])
	req := Request{
		RangeStart:  0,
		RangeEnd:    -1,
		BodyOffset:  idx + len(headerTerminator),
		HeaderBytes: idx + len(headerTerminator),
	}

	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 {
		return Request{}, ErrMalformed
	}

	fields := strings.Fields(lines[0])
	if len(fields) != 3 {
		return Request{}, ErrMalformed
	}
	req.Method = parseMethod(fields[0])
	req.Path = fields[1]

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])

		switch strings.ToLower(name) {
		case "range":
			parseRange(value, &req)
		case "cookie":
			req.SessionID = parseCookieSessionID(value)
		}
	}

	return req, nil
}

// parseRange parses "bytes=<start>-[<end>]" case-insensitively per spec.md
// §4.F. A value without the "bytes=" prefix, without a dash, or with an
// unparsable start is ignored, leaving the request's default full-file range
// in place (the streaming responder treats range_start=0, range_end=-1 as
// "whole file"). A valid start with an unparsable end is kept as an
// open-ended range.
func parseRange(value string, req *Request) {
	const prefix = "bytes="
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return
	}
	spec := value[len(prefix):]
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return
	}
	startStr := spec[:dash]
	endStr := spec[dash+1:]

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return
	}
	req.RangeStart = start

	endStr = strings.TrimSpace(endStr)
	if endStr == "" {
		req.RangeEnd = -1
		return
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		req.RangeEnd = -1
		return
	}
	req.RangeEnd = end
}

// parseCookieSessionID finds "session_id=" inside a Cookie header value and
// copies up to 32 bytes, stopping at ';', whitespace, or end of string —
// mirroring the C source's fixed 32-byte copy semantics.
func parseCookieSessionID(cookieHeader string) string {
	const key = "session_id="
	idx := strings.Index(cookieHeader, key)
	if idx < 0 {
		return ""
	}
	rest := cookieHeader[idx+len(key):]
	end := len(rest)
	for i, r := range rest {
		if r == ';' || r == ' ' || r == '\t' {
			end = i
			break
		}
	}
	if end > 32 {
		end = 32
	}
	return rest[:end]
}

// FormParam extracts the value of key from a "k=v&k2=v2" body, requiring a
// '&' or start-of-string boundary before the key and '=' immediately after
// it — spec.md §4.F / testable property 8: this prevents "id" from matching
// inside "user_id".
func FormParam(body, key string) (string, bool) {
	for pos := 0; pos < len(body); {
		idx := strings.Index(body[pos:], key)
		if idx < 0 {
			return "", false
		}
		start := pos + idx
		boundaryOK := start == 0 || body[start-1] == '&'
		afterKey := start + len(key)
		if boundaryOK && afterKey < len(body) && body[afterKey] == '=' {
			valStart := afterKey + 1
			valEnd := strings.IndexByte(body[valStart:], '&')
			if valEnd < 0 {
				return body[valStart:], true
			}
			return body[valStart : valStart+valEnd], true
		}
		pos = start + len(key)
	}
	return "", false
}
