// Package routes wires the HTTP endpoints to the display pipeline and the
// crash recorder.
package routes

import (
	"net/http"
	"time"

	"github.com/ulfmagnetics/trix-server/pkg/crashlog"
	"github.com/ulfmagnetics/trix-server/pkg/display"
	"github.com/ulfmagnetics/trix-server/pkg/httpd"
)

// Context carries the shared resources handlers need. Handlers receive it
// explicitly instead of reaching for package globals.
type Context struct {
	Display      *display.Manager
	Crash        *crashlog.Recorder
	Client       *http.Client
	FetchTimeout time.Duration
}

// Register attaches all endpoint handlers to the server
func Register(s *httpd.Server, ctx *Context) {
	s.Handle(http.MethodPost, "/display", handleDisplay(ctx))
	s.Handle(http.MethodPost, "/fetch", handleFetch(ctx))
	s.Handle(http.MethodGet, "/clear", handleClear(ctx))
	s.Handle(http.MethodGet, "/crash", handleCrashLog(ctx))
	s.Handle(http.MethodGet, "/crash/counter", handleCrashCounter(ctx))
	s.Handle(http.MethodPost, "/crash/reset", handleCrashReset(ctx))
}
