// Package staticfile implements the static-asset responder: open, fstat,
// reject directories, pick a MIME type from the extension, and compose a
// 200 header — the Go expression of static_handler.c's
// start_static_transfer.
package staticfile

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/streamd/streamd/internal/connrecord"
	"github.com/streamd/streamd/internal/httpresult"
)

// mimeTypes mirrors static_handler.c's get_mime_type table exactly,
// including its fallback to application/octet-stream.
var mimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
	".txt":  "text/plain",
	".mp4":  "video/mp4",
}

func mimeType(requestPath string) string {
	if t, ok := mimeTypes[strings.ToLower(path.Ext(requestPath))]; ok {
		return t
	}
	return "application/octet-stream"
}

// Start opens requestPath, rejects directories, and composes a 200 header
// into conn.Buffer, leaving conn.File/FileOffset/BytesRemaining set for
// the reactor's body-send step. The caller (router) has already resolved
// requestPath and run the traversal guard.
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
	if info.IsDir() {
		f.Close()
		return httpresult.Result{Kind: httpresult.HTTPError, Code: 403}
	}

	conn.File = f
	conn.FileOffset = 0
	conn.BytesRemaining = info.Size()

	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n",
		mimeType(requestPath), info.Size(),
	)

	n := copy(conn.Buffer[:], header)
	conn.BufferLen = n
	conn.BufferSent = 0
	conn.State = connrecord.SendingHeader

	return httpresult.Result{Kind: httpresult.Ok}
}
