//go:build !linux

package reactor

import "errors"

// errNoEpoll is returned by New on platforms without Linux's epoll
// interface. Unlike kcptun's !linux build (which falls back to a plain
// kcp.ListenWithOptions), there is no portable substitute for one-shot
// readiness that preserves this reactor's ownership invariant, so this
// build is dev-only: it compiles, but refuses to start.
var errNoEpoll = errors.New("reactor: epoll is only available on linux")

type epoll struct{}

func newEpoll() (*epoll, error) { return nil, errNoEpoll }

func (e *epoll) registerReadable(fd int) error       { return errNoEpoll }
func (e *epoll) rearmReadable(fd int) error           { return errNoEpoll }
func (e *epoll) rearmWritable(fd int) error           { return errNoEpoll }
func (e *epoll) remove(fd int)                        {}
func (e *epoll) wait(timeoutMillis int) ([]int, error) { return nil, errNoEpoll }
func (e *epoll) close() error                          { return nil }

func setNonblocking(fd int) error { return nil }
