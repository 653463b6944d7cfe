// Package reactor is the non-blocking event core: bind/listen, an
// epoll-backed accept-and-dispatch loop, and the per-connection step
// executor that ties httpparse, router, staticfile, and streaming
// together. Grounded on core/reactor.c's reactor_init/reactor_run shape,
// generalized to Go's worker-pool dispatch instead of a raw callback
// pointer stashed in epoll_event.data.
package reactor

import (
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/streamd/streamd/internal/connrecord"
	"github.com/streamd/streamd/internal/httpparse"
	"github.com/streamd/streamd/internal/httpresult"
	"github.com/streamd/streamd/internal/queue"
	"github.com/streamd/streamd/internal/router"
	"github.com/streamd/streamd/internal/staticfile"
	"github.com/streamd/streamd/internal/streaming"
	"github.com/streamd/streamd/internal/transfer"
	"github.com/streamd/streamd/internal/workerpool"
)

// Reactor owns the listening socket, the epoll set, and the table of live
// connections. Exactly one of {reactor goroutine, one worker} touches a
// given Conn at a time (spec.md §5 invariant 1): the epoll fd is
// registered EPOLLONESHOT, so a connection never generates a second
// readiness event until its step explicitly re-arms it.
type Reactor struct {
	cfg Config

	listenFD int
	ep       *epoll

	router *router.Router
	q      *queue.Queue
	pool   *workerpool.Pool

	mu    sync.Mutex
	conns map[int]*connrecord.Conn

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config is the subset of internal/config.Config the reactor needs.
type Config struct {
	Host          string
	Port          int
	MaxClients    int
	TimeoutSec    int
	QueueCapacity int
	ThreadNum     int
	SessionTTLSec int
}

// New binds and listens on cfg.Host:cfg.Port, builds the epoll set, and
// wires up the worker pool that will run connection steps.
func New(cfg Config, r *router.Router) (*Reactor, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}

	addr, err := resolveIPv4(cfg.Host)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa := &unix.SockaddrInet4{Port: cfg.Port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := setNonblocking(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, cfg.MaxClients); err != nil {
		unix.Close(fd)
		return nil, err
	}

	ep, err := newEpoll()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := ep.registerReadable(fd); err != nil {
		ep.close()
		unix.Close(fd)
		return nil, err
	}

	q := queue.New(cfg.QueueCapacity)
	rt := &Reactor{
		cfg:      cfg,
		listenFD: fd,
		ep:       ep,
		router:   r,
		q:        q,
		conns:    make(map[int]*connrecord.Conn),
		stopCh:   make(chan struct{}),
	}
	rt.pool = workerpool.Start(q, cfg.ThreadNum)
	return rt, nil
}

func resolveIPv4(host string) ([4]byte, error) {
	var out [4]byte
	if host == "" || host == "0.0.0.0" {
		return out, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return out, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			copy(out[:], v4)
			return out, nil
		}
	}
	return out, &net.AddrError{Err: "no IPv4 address found", Addr: host}
}

// Run drives the accept/dispatch loop until Stop is called.
func (rt *Reactor) Run() error {
	sweepTicker := time.NewTicker(time.Duration(rt.cfg.TimeoutSec) * time.Second)
	defer sweepTicker.Stop()

	for {
		select {
		case <-rt.stopCh:
			return nil
		case <-sweepTicker.C:
			rt.sweepIdle()
		default:
		}

		ready, err := rt.ep.wait(1000)
		if err != nil {
			return err
		}
		for _, fd := range ready {
			if fd == rt.listenFD {
				rt.acceptLoop()
				// The listener is registered EPOLLONESHOT like every other
				// fd; re-arm it so later connections are still accepted.
				if err := rt.ep.rearmReadable(rt.listenFD); err != nil {
					return err
				}
				continue
			}
			rt.dispatch(fd)
		}
	}
}

// Stop ends the accept/dispatch loop and joins the worker pool.
func (rt *Reactor) Stop() {
	rt.stopOnce.Do(func() {
		close(rt.stopCh)
		rt.pool.Shutdown()
		rt.ep.close()
		unix.Close(rt.listenFD)
	})
}

func (rt *Reactor) acceptLoop() {
	for {
		fd, sa, err := unix.Accept4(rt.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			log.Printf("reactor: accept failed: %v", err)
			return
		}

		ip := peerIP(sa)
		conn := connrecord.New(fd, ip, time.Now())

		rt.mu.Lock()
		rt.conns[fd] = conn
		rt.mu.Unlock()

		if err := rt.ep.registerReadable(fd); err != nil {
			log.Printf("reactor: epoll register failed for fd %d: %v", fd, err)
			rt.destroy(fd)
		}
	}
}

func peerIP(sa unix.Sockaddr) string {
	if v4, ok := sa.(*unix.SockaddrInet4); ok {
		return net.IP(v4.Addr[:]).String()
	}
	return ""
}

// dispatch hands a ready connection's fd to the worker pool, applying
// back-pressure (spec.md §4.I: a full queue means 503 + close, not a
// blocked reactor) rather than ever blocking the dispatch loop itself.
//
// conn.State before this readiness event records what the connection was
// last waiting for (Receiving, SendingHeader, or SendingBody) — that is
// the resume state the worker must continue from, so it's captured here
// and threaded through to step. Processing is only ever a transient
// ownership marker for the duration of the queued task, never itself a
// resume target.
func (rt *Reactor) dispatch(fd int) {
	rt.mu.Lock()
	conn, ok := rt.conns[fd]
	if ok {
		if conn.State == connrecord.Processing {
			// Already owned by a queued/running task: a stray duplicate
			// readiness event (spec.md §4.D) must not enqueue a second one.
			rt.mu.Unlock()
			return
		}
	}
	var resumeState connrecord.State
	if ok {
		resumeState = conn.State
		conn.State = connrecord.Processing
	}
	rt.mu.Unlock()
	if !ok {
		return
	}

	err := rt.q.TryEnqueue(queue.Task{Fn: func() { rt.step(conn, resumeState) }})
	if err != nil {
		rt.rejectOverloaded(conn)
	}
}

func (rt *Reactor) rejectOverloaded(conn *connrecord.Conn) {
	httpresult.WriteError(fdWriter{conn.ClientFD}, 503)
	rt.destroy(conn.ClientFD)
}

// fdWriter adapts a raw fd to io.Writer for one-shot best-effort writes
// (error responses, which never retry on EAGAIN — see httpresult.WriteError).
type fdWriter struct{ fd int }

func (w fdWriter) Write(p []byte) (int, error) {
	return unix.Write(w.fd, p)
}

func (rt *Reactor) destroy(fd int) {
	rt.mu.Lock()
	conn, ok := rt.conns[fd]
	if ok {
		delete(rt.conns, fd)
	}
	rt.mu.Unlock()
	if !ok {
		return
	}
	rt.ep.remove(fd)
	conn.Destroy()
}

func (rt *Reactor) sweepIdle() {
	deadline := time.Now().Add(-time.Duration(rt.cfg.TimeoutSec) * time.Second)
	var expired []int

	rt.mu.Lock()
	for fd, c := range rt.conns {
		if c.State == connrecord.Receiving && c.LastActive.Before(deadline) {
			expired = append(expired, fd)
		}
	}
	rt.mu.Unlock()

	for _, fd := range expired {
		rt.destroy(fd)
	}
}

// step runs one processing turn for conn on a worker goroutine. resumeState
// is what conn was waiting for before dispatch claimed it (conn.State
// itself is now Processing and can't be used to pick a branch here). It
// walks the state machine forward as far as it can without blocking,
// re-arming epoll readiness for whichever direction it's now waiting on.
func (rt *Reactor) step(conn *connrecord.Conn, resumeState connrecord.State) {
	switch resumeState {
	case connrecord.SendingHeader:
		rt.stepSendHeader(conn)
	case connrecord.SendingBody:
		rt.stepSendBody(conn)
	default:
		rt.stepReceive(conn)
	}
}

func (rt *Reactor) stepReceive(conn *connrecord.Conn) {
	n, err := unix.Read(conn.ClientFD, conn.Buffer[conn.BufferLen:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			rt.rearmRead(conn)
			return
		}
		rt.destroy(conn.ClientFD)
		return
	}
	if n == 0 {
		rt.destroy(conn.ClientFD)
		return
	}
	conn.BufferLen += n
	conn.LastActive = time.Now()

	req, perr := httpparse.Parse(conn.Buffer[:], conn.BufferLen)
	if perr == httpparse.ErrIncomplete {
		if conn.BufferLen >= connrecord.BufferSize {
			httpresult.WriteError(fdWriter{conn.ClientFD}, 400)
			rt.destroy(conn.ClientFD)
			return
		}
		rt.rearmRead(conn)
		return
	}
	if perr != nil {
		httpresult.WriteError(fdWriter{conn.ClientFD}, 400)
		rt.destroy(conn.ClientFD)
		return
	}

	body := string(conn.Buffer[req.BodyOffset:conn.BufferLen])
	dec := rt.router.Route(conn, req, body)
	rt.applyDecision(conn, dec)
}

func (rt *Reactor) applyDecision(conn *connrecord.Conn, dec router.Decision) {
	switch dec.Result.Kind {
	case httpresult.Fatal:
		log.Printf("reactor: fatal error on fd %d: %v", conn.ClientFD, dec.Result.Err)
		httpresult.WriteError(fdWriter{conn.ClientFD}, 500)
		rt.destroy(conn.ClientFD)
		return
	case httpresult.HTTPError:
		httpresult.WriteError(fdWriter{conn.ClientFD}, dec.Result.Code)
		rt.destroy(conn.ClientFD)
		return
	}

	switch dec.Next {
	case router.NextStatic:
		res := staticfile.Start(conn, conn.RequestPath)
		rt.applyResponderResult(conn, res)
	case router.NextStream:
		res := streaming.Start(conn, conn.RequestPath)
		rt.applyResponderResult(conn, res)
	default:
		rt.stepSendHeader(conn)
	}
}

func (rt *Reactor) applyResponderResult(conn *connrecord.Conn, res httpresult.Result) {
	switch res.Kind {
	case httpresult.HTTPError:
		httpresult.WriteError(fdWriter{conn.ClientFD}, res.Code)
		rt.destroy(conn.ClientFD)
	case httpresult.Fatal:
		log.Printf("reactor: responder error on fd %d: %v", conn.ClientFD, res.Err)
		httpresult.WriteError(fdWriter{conn.ClientFD}, 500)
		rt.destroy(conn.ClientFD)
	default:
		rt.stepSendHeader(conn)
	}
}

func (rt *Reactor) stepSendHeader(conn *connrecord.Conn) {
	toSend := conn.BufferLen - conn.BufferSent
	if toSend <= 0 {
		rt.advanceToBody(conn)
		return
	}
	n, err := unix.Write(conn.ClientFD, conn.Buffer[conn.BufferSent:conn.BufferLen])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			rt.rearmWrite(conn)
			return
		}
		rt.destroy(conn.ClientFD)
		return
	}
	conn.BufferSent += n
	if conn.BufferSent >= conn.BufferLen {
		rt.advanceToBody(conn)
		return
	}
	rt.rearmWrite(conn)
}

func (rt *Reactor) advanceToBody(conn *connrecord.Conn) {
	if conn.File != nil {
		conn.State = connrecord.SendingBody
		rt.stepSendBody(conn)
		return
	}
	if conn.Body != nil && conn.BodySent < len(conn.Body) {
		conn.State = connrecord.SendingBody
		rt.stepSendBody(conn)
		return
	}
	rt.finishRequest(conn)
}

func (rt *Reactor) stepSendBody(conn *connrecord.Conn) {
	if conn.File != nil {
		rt.stepSendFileBody(conn)
		return
	}
	rt.stepSendMemoryBody(conn)
}

func (rt *Reactor) stepSendFileBody(conn *connrecord.Conn) {
	outcome, err := transfer.Send(conn.ClientFD, conn.File, &conn.FileOffset, &conn.BytesRemaining)
	if err != nil {
		log.Printf("reactor: sendfile failed on fd %d: %v", conn.ClientFD, err)
		rt.destroy(conn.ClientFD)
		return
	}
	switch outcome {
	case transfer.Done:
		conn.CloseFile()
		rt.finishRequest(conn)
	case transfer.WouldBlock:
		rt.rearmWrite(conn)
	case transfer.PeerGone:
		rt.destroy(conn.ClientFD)
	case transfer.Progressed:
		// Cooperative yield at the per-turn cap: re-arm immediately so
		// the reactor schedules the rest of the body as its own turn
		// instead of one worker monopolizing the connection.
		rt.rearmWrite(conn)
	}
}

func (rt *Reactor) stepSendMemoryBody(conn *connrecord.Conn) {
	n, err := unix.Write(conn.ClientFD, conn.Body[conn.BodySent:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			rt.rearmWrite(conn)
			return
		}
		rt.destroy(conn.ClientFD)
		return
	}
	conn.BodySent += n
	if conn.BodySent >= len(conn.Body) {
		rt.finishRequest(conn)
		return
	}
	rt.rearmWrite(conn)
}

func (rt *Reactor) finishRequest(conn *connrecord.Conn) {
	conn.ResetForKeepAlive()
	rt.rearmRead(conn)
}

// rearmRead and rearmWrite record what the connection now waits for in
// conn.State before re-arming, so the next dispatch sees a resume state
// instead of Processing.
func (rt *Reactor) rearmRead(conn *connrecord.Conn) {
	conn.State = connrecord.Receiving
	if err := rt.ep.rearmReadable(conn.ClientFD); err != nil {
		rt.destroy(conn.ClientFD)
	}
}

func (rt *Reactor) rearmWrite(conn *connrecord.Conn) {
	if conn.BufferSent < conn.BufferLen {
		conn.State = connrecord.SendingHeader
	} else {
		conn.State = connrecord.SendingBody
	}
	if err := rt.ep.rearmWritable(conn.ClientFD); err != nil {
		rt.destroy(conn.ClientFD)
	}
}

// Addr returns the host:port the reactor is bound to, for logging.
func (rt *Reactor) Addr() string {
	return net.JoinHostPort(rt.cfg.Host, strconv.Itoa(rt.cfg.Port))
}
