package routes

import (
	"fmt"
	"net/http"

	"github.com/ulfmagnetics/trix-server/pkg/bitmap"
	"github.com/ulfmagnetics/trix-server/pkg/crashlog"
	"github.com/ulfmagnetics/trix-server/pkg/httpd"
)

// handleDisplay accepts raw BMP bytes in the request body and renders them
func handleDisplay(ctx *Context) httpd.HandlerFunc {
	return func(req *httpd.Request) (httpd.Response, error) {
		if len(req.Body) < bitmap.MinHeaderSize {
			ctx.Crash.LogEvent(
				fmt.Sprintf("rejected upload of %d bytes", len(req.Body)),
				crashlog.LevelWarning)
			return httpd.Response{
				Status: http.StatusBadRequest,
				Body:   "Invalid bitmap data",
			}, nil
		}

		bmp, err := bitmap.Decode(req.Body, "uploaded")
		if err != nil {
			// Malformed upload: the client's problem, not a cycle failure
			ctx.Crash.LogException(err, "POST /display handler")
			return httpd.Response{
				Status: http.StatusInternalServerError,
				Body:   fmt.Sprintf("Error loading bitmap: %v", err),
			}, nil
		}

		if err := ctx.Display.Show(bmp); err != nil {
			ctx.Crash.LogException(err, "POST /display handler")
			return httpd.Response{
				Status: http.StatusInternalServerError,
				Body:   fmt.Sprintf("Error displaying bitmap: %v", err),
			}, err
		}

		return httpd.Response{Body: "Bitmap displayed successfully"}, nil
	}
}
