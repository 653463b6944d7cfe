package connrecord

import (
	"testing"
	"time"
)

func TestNewInitializesReceivingState(t *testing.T) {
	c := New(-1, "127.0.0.1", time.Now())
	if c.State != Receiving {
		t.Fatalf("expected Receiving, got %v", c.State)
	}
	if c.RangeEnd != NoRangeEnd {
		t.Fatalf("expected open-ended range end by default")
	}
	if c.File != nil {
		t.Fatalf("expected no file open initially")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	c := New(-1, "127.0.0.1", time.Now())
	c.Destroy()
	if c.State != Closed {
		t.Fatalf("expected Closed after Destroy")
	}
	c.Destroy() // must not panic
}

func TestResetForKeepAliveClearsParsedFields(t *testing.T) {
	c := New(-1, "127.0.0.1", time.Now())
	c.Method = "GET"
	c.RequestPath = "/test.mp4"
	c.SessionID = "abc"
	c.BufferLen = 10
	c.BufferSent = 10
	c.State = SendingBody

	c.ResetForKeepAlive()

	if c.Method != "" || c.RequestPath != "" || c.SessionID != "" {
		t.Fatalf("expected parsed fields cleared, got %+v", c)
	}
	if c.BufferLen != 0 || c.BufferSent != 0 {
		t.Fatalf("expected buffer cursors reset")
	}
	if c.State != Receiving {
		t.Fatalf("expected Receiving state, got %v", c.State)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Receiving:     "RECEIVING",
		Processing:    "PROCESSING",
		SendingHeader: "SENDING_HEADER",
		SendingBody:   "SENDING_BODY",
		Closed:        "CLOSED",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
