package httpparse

import "testing"

func TestParseIncompleteHeader(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\nHost: x\r\n")
	_, err := Parse(buf, len(buf))
	if err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestParseBasicGet(t *testing.T) {
	raw := "GET /test.mp4 HTTP/1.1\r\nHost: x\r\n\r\n"
	buf := []byte(raw)
	req, err := Parse(buf, len(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != MethodGet || req.Path != "/test.mp4" {
		t.Fatalf("unexpected parse result: %+v", req)
	}
	if req.RangeStart != 0 || req.RangeEnd != -1 {
		t.Fatalf("expected default full-file range, got %+v", req)
	}
}

func TestParseMalformedRequestLine(t *testing.T) {
	raw := "GET\r\n\r\n"
	buf := []byte(raw)
	_, err := Parse(buf, len(buf))
	if err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseRangeHeadAndTail(t *testing.T) {
	cases := []struct {
		header    string
		wantStart int64
		wantEnd   int64
	}{
		{"bytes=0-1023", 0, 1023},
		{"bytes=9000-", 9000, -1},
		{"BYTES=5-10", 5, 10}, // case-insensitive per spec.md §4.F
	}
	for _, tc := range cases {
		raw := "GET /test.mp4 HTTP/1.1\r\nRange: " + tc.header + "\r\n\r\n"
		buf := []byte(raw)
		req, err := Parse(buf, len(buf))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tc.header, err)
		}
		if req.RangeStart != tc.wantStart || req.RangeEnd != tc.wantEnd {
			t.Fatalf("range %q: got (%d,%d), want (%d,%d)", tc.header, req.RangeStart, req.RangeEnd, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestParseCookieSessionID(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nCookie: foo=bar; session_id=abcdef0123456789abcdef0123456789XYZ; other=1\r\n\r\n"
	buf := []byte(raw)
	req, err := Parse(buf, len(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.SessionID) != 32 {
		t.Fatalf("expected a 32-byte session id, got %q (%d bytes)", req.SessionID, len(req.SessionID))
	}
}

func TestParseCookieAbsent(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n\r\n"
	buf := []byte(raw)
	req, err := Parse(buf, len(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.SessionID != "" {
		t.Fatalf("expected no session id, got %q", req.SessionID)
	}
}

func TestParseUnknownMethod(t *testing.T) {
	raw := "PUT /x HTTP/1.1\r\n\r\n"
	buf := []byte(raw)
	req, err := Parse(buf, len(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != MethodUnknown {
		t.Fatalf("expected MethodUnknown, got %v", req.Method)
	}
}

// TestFormParamBoundary is spec.md testable property 8, verbatim.
func TestFormParamBoundary(t *testing.T) {
	val, ok := FormParam("user_id=5&id=7", "id")
	if !ok || val != "7" {
		t.Fatalf("expected (\"7\", true), got (%q, %v)", val, ok)
	}
}

func TestFormParamAtStartOfString(t *testing.T) {
	val, ok := FormParam("id=7&user_id=5", "id")
	if !ok || val != "7" {
		t.Fatalf("expected (\"7\", true), got (%q, %v)", val, ok)
	}
}

func TestFormParamMissing(t *testing.T) {
	if _, ok := FormParam("a=1&b=2", "c"); ok {
		t.Fatalf("expected no match for absent key")
	}
}

func TestFormParamLastField(t *testing.T) {
	val, ok := FormParam("a=1&video_id=9", "video_id")
	if !ok || val != "9" {
		t.Fatalf("expected (\"9\", true), got (%q, %v)", val, ok)
	}
}
