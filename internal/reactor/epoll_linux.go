//go:build linux

// Package reactor's Linux backend: a thin wrapper over epoll_create1,
// epoll_ctl, and epoll_wait, the Go expression of core/reactor.c. The
// !linux fallback (epoll_other.go) mirrors the teacher's own
// listen.go/listen_linux.go platform split.
package reactor

import "golang.org/x/sys/unix"

const maxEvents = 1024

type epoll struct {
	fd int
}

func newEpoll() (*epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epoll{fd: fd}, nil
}

// registerReadable arms fd for a single EPOLLIN event (EPOLLONESHOT),
// identified by data for the dispatch loop to key its connection map on.
func (e *epoll) registerReadable(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (e *epoll) rearmReadable(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (e *epoll) rearmWritable(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLOUT | unix.EPOLLONESHOT, Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (e *epoll) remove(fd int) {
	unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks until events are ready or timeoutMillis elapses (-1 blocks
// forever), returning the ready file descriptors.
func (e *epoll) wait(timeoutMillis int) ([]int, error) {
	events := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(e.fd, events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	fds := make([]int, n)
	for i := 0; i < n; i++ {
		fds[i] = int(events[i].Fd)
	}
	return fds, nil
}

func (e *epoll) close() error {
	return unix.Close(e.fd)
}

func setNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}
