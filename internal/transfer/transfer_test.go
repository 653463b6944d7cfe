package transfer

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func tempFile(t *testing.T, size int) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "transfer")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func drain(t *testing.T, fd int, want int) []byte {
	t.Helper()
	out := make([]byte, 0, want)
	buf := make([]byte, 4096)
	for len(out) < want {
		n, err := unix.Read(fd, buf)
		if err != nil {
			t.Fatalf("drain read: %v", err)
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func TestSendSmallFileCompletesInOneTurn(t *testing.T) {
	sock, peer := socketPair(t)
	f := tempFile(t, 1024)

	offset := int64(0)
	remaining := int64(1024)

	outcome, err := Send(sock, f, &offset, &remaining)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if outcome != Done {
		t.Fatalf("expected Done, got %v", outcome)
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", remaining)
	}
	if offset != 1024 {
		t.Fatalf("expected offset advanced to 1024, got %d", offset)
	}

	got := drain(t, peer, 1024)
	if len(got) != 1024 {
		t.Fatalf("expected 1024 bytes delivered, got %d", len(got))
	}
}

func TestSendRespectsTurnCap(t *testing.T) {
	sock, peer := socketPair(t)
	size := int(MaxTurnBytes) + 4096
	f := tempFile(t, size)

	offset := int64(0)
	remaining := int64(size)

	done := make(chan struct{})
	go func() {
		drain(t, peer, size)
		close(done)
	}()

	outcome, err := Send(sock, f, &offset, &remaining)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if outcome == Done {
		t.Fatalf("expected the turn cap to stop before Done on the first call")
	}
	if remaining != int64(size)-MaxTurnBytes {
		t.Fatalf("expected exactly MaxTurnBytes sent this turn, remaining=%d", remaining)
	}

	outcome, err = Send(sock, f, &offset, &remaining)
	if err != nil {
		t.Fatalf("second Send returned error: %v", err)
	}
	if outcome != Done {
		t.Fatalf("expected Done after the remainder, got %v", outcome)
	}
	<-done
}
