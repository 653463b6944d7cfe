package reactor

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/streamd/streamd/internal/router"
	"github.com/streamd/streamd/internal/session"
)

type noopAuth struct{}

func (noopAuth) VerifyUser(username, password string) (int, bool, error) { return 0, false, nil }
func (noopAuth) CreateUser(username, password string) error              { return nil }

type noopHistory struct{}

func (noopHistory) UpdateHistory(userID, videoID, positionSeconds int) error { return nil }

type noopVideos struct{}

func (noopVideos) ListJSON(userID int) (string, error) { return "[]", nil }

func boundPort(t *testing.T, rt *Reactor) int {
	t.Helper()
	sa, err := unix.Getsockname(rt.listenFD)
	if err != nil {
		t.Fatalf("getsockname: %v", err)
	}
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("expected IPv4 sockaddr, got %T", sa)
	}
	return v4.Port
}

func startReactor(t *testing.T, staticDir string) *Reactor {
	t.Helper()
	r := &router.Router{
		Sessions:      session.New(16, time.Hour),
		Auth:          noopAuth{},
		History:       noopHistory{},
		Videos:        noopVideos{},
		StaticDir:     staticDir,
		SessionTTLSec: 1800,
	}
	rt, err := New(Config{
		Host:          "127.0.0.1",
		Port:          0,
		MaxClients:    16,
		TimeoutSec:    30,
		QueueCapacity: 16,
		ThreadNum:     2,
		SessionTTLSec: 1800,
	}, r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go rt.Run()
	t.Cleanup(rt.Stop)
	return rt
}

func TestReactorServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rt := startReactor(t, dir)
	port := boundPort(t, rt)

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line: %q", status)
	}

	var body strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		if line == "\r\n" {
			break
		}
	}
	buf := make([]byte, 64)
	n, _ := r.Read(buf)
	body.Write(buf[:n])
	if body.String() != "hello world" {
		t.Fatalf("unexpected body: %q", body.String())
	}
}

// TestReactorServesMultiWriteFile exercises a response body too large to
// complete within a single write/sendfile call, forcing the reactor to
// park the connection SendingBody, return to the epoll loop, and resume it
// on a later EPOLLOUT readiness event — the path dispatch's state handling
// must preserve.
func TestReactorServesMultiWriteFile(t *testing.T) {
	dir := t.TempDir()
	const size = 4 * 1024 * 1024
	want := make([]byte, size)
	for i := range want {
		want[i] = byte(i)
	}
	if err := os.WriteFile(filepath.Join(dir, "big.png"), want, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rt := startReactor(t, dir)
	port := boundPort(t, rt)

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /big.png HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line: %q", status)
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read headers: %v", err)
		}
		if line == "\r\n" {
			break
		}
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(got) != size {
		t.Fatalf("expected %d body bytes, got %d", size, len(got))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("body mismatch at byte %d: got %x want %x", i, got[i], want[i])
		}
	}
}

func TestReactorReturns404ForUnknownPath(t *testing.T) {
	dir := t.TempDir()
	rt := startReactor(t, dir)
	port := boundPort(t, rt)

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /nothing.bin HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	out, _ := io.ReadAll(conn)
	if !strings.HasPrefix(string(out), "HTTP/1.1 404") {
		t.Fatalf("expected 404, got %q", string(out))
	}
}
