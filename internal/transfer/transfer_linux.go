//go:build linux

package transfer

import (
	"os"

	"golang.org/x/sys/unix"
)

// sendChunk issues one sendfile(2) call, zero-copy, for up to want bytes.
func sendChunk(sockFD int, file *os.File, offset *int64, want int64) (int, Outcome, error) {
	n, err := unix.Sendfile(sockFD, int(file.Fd()), offset, int(want))
	if err != nil {
		switch err {
		case unix.EAGAIN, unix.EWOULDBLOCK:
			return n, WouldBlock, nil
		case unix.EPIPE, unix.ECONNRESET:
			return n, PeerGone, nil
		}
		return n, Progressed, err
	}
	return n, Progressed, nil
}
