// Package connrecord defines the per-connection state machine record: the
// Go expression of client_context.h's ClientContext, generalized per
// spec.md §9's redesign flags (exclusive ownership instead of a raw pointer
// stashed in readiness user-data, a single small header buffer instead of a
// buffer reused for both directions at once).
package connrecord

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// State is the connection's position in the lifecycle diagram of spec.md
// §4.E.
type State int

const (
	// Receiving is the initial state: accumulating request bytes.
	Receiving State = iota
	// Processing marks a record as currently owned by a worker, making it
	// invisible to the reactor's dispatch loop (invariant 1).
	Processing
	// SendingHeader is emitted once a responder has composed a response
	// header in Buffer and is draining it to the socket.
	SendingHeader
	// SendingBody streams a file body (static or ranged) to the socket.
	SendingBody
	// Closed is terminal; Destroy has already run for this record.
	Closed
)

func (s State) String() string {
	switch s {
	case Receiving:
		return "RECEIVING"
	case Processing:
		return "PROCESSING"
	case SendingHeader:
		return "SENDING_HEADER"
	case SendingBody:
		return "SENDING_BODY"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// BufferSize is the fixed header buffer size (spec.md §3: "N = 4096").
const BufferSize = 4096

// NoRangeEnd marks an open-ended byte range (spec.md §3: "-1 = open-ended").
const NoRangeEnd = -1

// Conn is the unit of per-client state. Exactly one goroutine — either the
// reactor (during accept/dispatch) or a single worker (during a step) — may
// touch a given Conn's mutable fields at any instant; one-shot readiness
// plus the Processing state together enforce this without a per-connection
// lock (spec.md §5).
type Conn struct {
	ClientFD   int
	ClientIP   string
	LastActive time.Time

	Buffer     [BufferSize]byte
	BufferLen  int
	BufferSent int

	State State

	Method      string
	RequestPath string
	BodyPtr     int
	RangeStart  int64
	RangeEnd    int64
	SessionID   string

	File       *os.File
	FileOffset int64

	// Body is a heap-owned, non-file response body (JSON API responses).
	// Mutually exclusive with File: a step never has both set. Freed
	// (set to nil) once fully sent, per spec.md §9's redesign note that
	// bodies are "either file-backed (zero copy) or heap-owned JSON
	// strings freed after send."
	Body     []byte
	BodySent int

	BytesRemaining int64
}

// New returns a freshly accepted connection record, zeroed and initialized
// the way reactor_init's accept loop does: state RECEIVING, no file open.
func New(fd int, ip string, now time.Time) *Conn {
	return &Conn{
		ClientFD:   fd,
		ClientIP:   ip,
		LastActive: now,
		State:      Receiving,
		RangeEnd:   NoRangeEnd,
	}
}

// CloseFile closes the open response-body file, if any, and clears File so
// a second call is a no-op (invariant 2/3's "closed exactly once").
func (c *Conn) CloseFile() {
	if c.File == nil {
		return
	}
	c.File.Close()
	c.File = nil
}

// Destroy closes the body file (if open) and the client socket, and marks
// the record Closed. It is safe to call more than once; only the first call
// has any effect. Callers must not touch the record again afterward.
func (c *Conn) Destroy() {
	if c.State == Closed {
		return
	}
	c.CloseFile()
	if c.ClientFD >= 0 {
		unix.Close(c.ClientFD)
		c.ClientFD = -1
	}
	c.State = Closed
}

// ResetForKeepAlive restores the record to its initial receiving state
// after a request completes, preserving the connection (keep-alive).
// Buffer cursors and parsed fields are cleared; the file handle must
// already be closed by the caller before this runs (invariant 2).
func (c *Conn) ResetForKeepAlive() {
	c.BufferLen = 0
	c.BufferSent = 0
	c.Method = ""
	c.RequestPath = ""
	c.BodyPtr = 0
	c.RangeStart = 0
	c.RangeEnd = NoRangeEnd
	c.SessionID = ""
	c.FileOffset = 0
	c.Body = nil
	c.BodySent = 0
	c.BytesRemaining = 0
	c.State = Receiving
}
