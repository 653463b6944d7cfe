// Package streaming implements the byte-range video responder: resolve
// the requested range against the file's real size, reject unsatisfiable
// ranges, and compose a 206 header — the Go expression of
// stream_handler.c's start_streaming.
package streaming

import (
	"fmt"
	"os"

	"github.com/streamd/streamd/internal/connrecord"
	"github.com/streamd/streamd/internal/httpresult"
)

// Start opens requestPath, resolves [conn.RangeStart, conn.RangeEnd]
// against the file's actual size, and composes a 206 header into
// conn.Buffer, leaving conn.File/FileOffset/BytesRemaining set for the
// reactor's body-send step. conn.RangeStart/RangeEnd must already be
// populated by the router (defaults: start 0, end connrecord.NoRangeEnd).
func Start(conn *connrecord.Conn, requestPath string) httpresult.Result {
	f, err := os.OpenFile(requestPath, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return httpresult.Result{Kind: httpresult.HTTPError, Code: 404}
		}
		if os.IsPermission(err) {
			return httpresult.Result{Kind: httpresult.HTTPError, Code: 403}
		}
		return httpresult.Result{Kind: httpresult.Fatal, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return httpresult.Result{Kind: httpresult.Fatal, Err: err}
	}
	totalSize := info.Size()

	if conn.RangeStart >= totalSize {
		f.Close()
		return httpresult.Result{Kind: httpresult.HTTPError, Code: 416}
	}

	fileEnd := conn.RangeEnd
	if fileEnd == connrecord.NoRangeEnd || fileEnd >= totalSize {
		fileEnd = totalSize - 1
	}
	contentLength := fileEnd - conn.RangeStart + 1

	conn.File = f
	conn.FileOffset = conn.RangeStart
	conn.BytesRemaining = contentLength

	header := fmt.Sprintf(
		"HTTP/1.1 206 Partial Content\r\nContent-Type: video/mp4\r\nContent-Range: bytes %d-%d/%d\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n",
		conn.RangeStart, fileEnd, totalSize, contentLength,
	)
	n := copy(conn.Buffer[:], header)
	conn.BufferLen = n
	conn.BufferSent = 0
	conn.State = connrecord.SendingHeader

	return httpresult.Result{Kind: httpresult.Ok}
}
