package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ulfmagnetics/trix-server/pkg/bitmap"
	"github.com/ulfmagnetics/trix-server/pkg/fetch"
	"github.com/ulfmagnetics/trix-server/pkg/httpd"
)

// handleFetch accepts a URL in the request body, downloads the image, and
// renders it
func handleFetch(ctx *Context) httpd.HandlerFunc {
	return func(req *httpd.Request) (httpd.Response, error) {
		url := strings.TrimSpace(string(req.Body))
		if url == "" {
			return httpd.Response{
				Status: http.StatusBadRequest,
				Body:   "Empty URL in POST body",
			}, nil
		}

		fctx := context.Background()
		if ctx.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, ctx.FetchTimeout)
			defer cancel()
		}

		data, err := fetch.Fetch(fctx, ctx.Client, url)
		if err != nil {
			ctx.Crash.LogException(err, "POST /fetch handler")
			resp := httpd.Response{
				Status: http.StatusInternalServerError,
				Body:   fmt.Sprintf("Error fetching bitmap: %v", err),
			}
			// A remote that refuses to declare its length, declares too much,
			// or hangs up early is not a device fault; transport failures are.
			if errors.Is(err, fetch.ErrMissingLength) || errors.Is(err, fetch.ErrShort) ||
				errors.Is(err, fetch.ErrTooLarge) {
				return resp, nil
			}
			return resp, err
		}

		bmp, err := bitmap.Decode(data, url)
		if err != nil {
			ctx.Crash.LogException(err, "POST /fetch handler")
			return httpd.Response{
				Status: http.StatusInternalServerError,
				Body:   fmt.Sprintf("Error loading bitmap: %v", err),
			}, nil
		}
		data = nil // decoded grid is the only copy kept from here on

		if err := ctx.Display.Show(bmp); err != nil {
			ctx.Crash.LogException(err, "POST /fetch handler")
			return httpd.Response{
				Status: http.StatusInternalServerError,
				Body:   fmt.Sprintf("Error displaying bitmap: %v", err),
			}, err
		}

		return httpd.Response{Body: "Bitmap displayed successfully"}, nil
	}
}
