package routes

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ulfmagnetics/trix-server/pkg/crashlog"
	"github.com/ulfmagnetics/trix-server/pkg/httpd"
)

// handleCrashLog serves the crash log. Query parameters: lines limits the
// returned line count, clear=true clears the log and resets the counter
// after reading.
func handleCrashLog(ctx *Context) httpd.HandlerFunc {
	return func(req *httpd.Request) (httpd.Response, error) {
		maxLines := 0
		if raw := req.Query.Get("lines"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return httpd.Response{
					Status: http.StatusBadRequest,
					Body:   "Invalid 'lines' parameter",
				}, nil
			}
			maxLines = n
		}

		contents, err := ctx.Crash.Contents(maxLines)
		if err != nil {
			// No log file yet is not a failure worth a 5xx; report it in
			// the body the way the log itself would
			contents = fmt.Sprintf("Error reading crash log: %v\n", err)
		}

		if req.Query.Get("clear") == "true" {
			if err := ctx.Crash.ClearLog(); err != nil {
				ctx.Crash.LogException(err, "GET /crash handler")
			}
			if err := ctx.Crash.ResetCounter(); err != nil {
				ctx.Crash.LogException(err, "GET /crash handler")
			}
			contents += "\n\n[Log cleared and crash counter reset]"
		}

		return httpd.Response{Body: contents}, nil
	}
}

// handleCrashCounter reports the counter, uptime, and free memory
func handleCrashCounter(ctx *Context) httpd.HandlerFunc {
	return func(req *httpd.Request) (httpd.Response, error) {
		body := fmt.Sprintf("Crash count: %d\nUptime: %.2fs\nFree memory: %d bytes\n",
			ctx.Crash.Count(),
			ctx.Crash.Uptime().Seconds(),
			crashlog.FreeMemory())

		return httpd.Response{Body: body}, nil
	}
}

// handleCrashReset resets the persistent crash counter
func handleCrashReset(ctx *Context) httpd.HandlerFunc {
	return func(req *httpd.Request) (httpd.Response, error) {
		if err := ctx.Crash.ResetCounter(); err != nil {
			ctx.Crash.LogException(err, "POST /crash/reset handler")
			return httpd.Response{
				Status: http.StatusInternalServerError,
				Body:   fmt.Sprintf("Error resetting crash counter: %v", err),
			}, nil
		}

		return httpd.Response{Body: "Crash counter reset successfully"}, nil
	}
}
