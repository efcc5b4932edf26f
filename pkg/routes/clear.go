package routes

import (
	"fmt"
	"net/http"

	"github.com/ulfmagnetics/trix-server/pkg/httpd"
)

// handleClear removes whatever is currently shown
func handleClear(ctx *Context) httpd.HandlerFunc {
	return func(req *httpd.Request) (httpd.Response, error) {
		if err := ctx.Display.Clear(); err != nil {
			ctx.Crash.LogException(err, "GET /clear handler")
			return httpd.Response{
				Status: http.StatusInternalServerError,
				Body:   fmt.Sprintf("Error clearing display: %v", err),
			}, err
		}

		return httpd.Response{Body: "Display cleared successfully"}, nil
	}
}
