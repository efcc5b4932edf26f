package routes

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulfmagnetics/trix-server/pkg/bitmap"
	"github.com/ulfmagnetics/trix-server/pkg/crashlog"
	"github.com/ulfmagnetics/trix-server/pkg/display"
	"github.com/ulfmagnetics/trix-server/pkg/httpd"
	"github.com/ulfmagnetics/trix-server/pkg/matrix"
)

func newTestContext(t *testing.T) (*Context, *matrix.FakeMatrix) {
	t.Helper()
	dir := t.TempDir()

	crash, err := crashlog.New(crashlog.Options{
		LogPath:     filepath.Join(dir, "crash.log"),
		CounterPath: filepath.Join(dir, "crash.nvm"),
	})
	require.NoError(t, err)

	panel := matrix.NewFake(8, 8)
	return &Context{
		Display:      display.NewManager(panel),
		Crash:        crash,
		Client:       http.DefaultClient,
		FetchTimeout: 5 * time.Second,
	}, panel
}

// redBMP builds a 1x1 24bpp pure-red image
func redBMP() []byte {
	buf := make([]byte, bitmap.MinHeaderSize+4)
	buf[0], buf[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(buf[10:], bitmap.MinHeaderSize)
	binary.LittleEndian.PutUint32(buf[14:], 40)
	binary.LittleEndian.PutUint32(buf[18:], 1)
	binary.LittleEndian.PutUint32(buf[22:], 1)
	binary.LittleEndian.PutUint16(buf[26:], 1)
	binary.LittleEndian.PutUint16(buf[28:], 24)
	buf[bitmap.MinHeaderSize+2] = 0xFF // red channel, stored B G R
	return buf
}

func TestDisplayHandler(t *testing.T) {
	ctx, panel := newTestContext(t)
	h := handleDisplay(ctx)

	resp, err := h(&httpd.Request{Body: redBMP()})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Status) // default 200
	assert.Equal(t, 1, panel.Draws)
	assert.Equal(t, uint16(0xF800), panel.Buffer[0])
}

func TestDisplayHandlerRejectsShortBody(t *testing.T) {
	ctx, panel := newTestContext(t)
	h := handleDisplay(ctx)

	resp, err := h(&httpd.Request{Body: []byte("BM too short")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, 0, panel.Draws)
}

func TestDisplayHandlerMalformedImageIsNotCycleFailure(t *testing.T) {
	ctx, _ := newTestContext(t)
	h := handleDisplay(ctx)

	body := redBMP()
	body[0], body[1] = 'P', 'K'

	resp, err := h(&httpd.Request{Body: body})
	require.NoError(t, err) // client error, supervisor never sees it
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Body, "bad magic")

	contents, cerr := ctx.Crash.Contents(0)
	require.NoError(t, cerr)
	assert.Contains(t, contents, "POST /display handler")
}

func TestDisplayHandlerHardwareFailureIsCycleFailure(t *testing.T) {
	ctx, panel := newTestContext(t)
	panel.FailAll = true
	h := handleDisplay(ctx)

	resp, err := h(&httpd.Request{Body: redBMP()})
	require.ErrorIs(t, err, display.ErrHardware)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestFetchHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := redBMP()
		w.Header().Set("Content-Length", fmt.Sprint(len(img)))
		w.Write(img)
	}))
	defer srv.Close()

	ctx, panel := newTestContext(t)
	h := handleFetch(ctx)

	resp, err := h(&httpd.Request{Body: []byte(srv.URL + "\n")})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Status)
	assert.Equal(t, uint16(0xF800), panel.Buffer[0])
}

func TestFetchHandlerEmptyBody(t *testing.T) {
	ctx, _ := newTestContext(t)
	h := handleFetch(ctx)

	resp, err := h(&httpd.Request{Body: []byte("   ")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestFetchHandlerMissingLengthIsNotCycleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush() // force chunked, no Content-Length
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	ctx, _ := newTestContext(t)
	h := handleFetch(ctx)

	resp, err := h(&httpd.Request{Body: []byte(srv.URL)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Body, "Content-Length")
}

func TestFetchHandlerOversizedRemoteIsNotCycleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, buf, err := hj.Hijack()
		require.NoError(t, err)
		defer conn.Close()

		buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 4294967296\r\n\r\n")
		buf.Flush()
	}))
	defer srv.Close()

	ctx, _ := newTestContext(t)
	h := handleFetch(ctx)

	resp, err := h(&httpd.Request{Body: []byte(srv.URL)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Body, "exceeds limit")
}

func TestFetchHandlerTransportFailureIsCycleFailure(t *testing.T) {
	ctx, _ := newTestContext(t)
	h := handleFetch(ctx)

	resp, err := h(&httpd.Request{Body: []byte("http://127.0.0.1:1/nothing")})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestClearHandler(t *testing.T) {
	ctx, panel := newTestContext(t)

	_, err := handleDisplay(ctx)(&httpd.Request{Body: redBMP()})
	require.NoError(t, err)

	resp, err := handleClear(ctx)(&httpd.Request{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Status)
	assert.Equal(t, uint16(0), panel.Buffer[0])
	assert.Nil(t, ctx.Display.Current())
}

func TestCrashLogHandlerLines(t *testing.T) {
	ctx, _ := newTestContext(t)
	require.NoError(t, ctx.Crash.ClearLog())
	ctx.Crash.LogEvent("one", crashlog.LevelInfo)
	ctx.Crash.LogEvent("two", crashlog.LevelInfo)
	ctx.Crash.LogEvent("three", crashlog.LevelInfo)

	h := handleCrashLog(ctx)
	resp, err := h(&httpd.Request{Query: map[string][]string{"lines": {"2"}}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(resp.Body, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "two")
	assert.Contains(t, lines[1], "three")
}

func TestCrashLogHandlerInvalidLines(t *testing.T) {
	ctx, _ := newTestContext(t)
	h := handleCrashLog(ctx)

	resp, err := h(&httpd.Request{Query: map[string][]string{"lines": {"abc"}}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestCrashLogHandlerClear(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.Crash.LogEvent("before", crashlog.LevelInfo)

	h := handleCrashLog(ctx)
	resp, err := h(&httpd.Request{Query: map[string][]string{"clear": {"true"}}})
	require.NoError(t, err)
	assert.Contains(t, resp.Body, "[Log cleared and crash counter reset]")
	assert.Equal(t, uint8(0), ctx.Crash.Count())

	contents, err := ctx.Crash.Contents(0)
	require.NoError(t, err)
	assert.NotContains(t, contents, "before")
}

func TestCrashCounterHandler(t *testing.T) {
	ctx, _ := newTestContext(t)
	h := handleCrashCounter(ctx)

	resp, err := h(&httpd.Request{})
	require.NoError(t, err)
	assert.Contains(t, resp.Body, "Crash count: 1")
	assert.Contains(t, resp.Body, "Uptime:")
	assert.Contains(t, resp.Body, "Free memory:")
}

func TestCrashResetHandler(t *testing.T) {
	ctx, _ := newTestContext(t)
	h := handleCrashReset(ctx)

	resp, err := h(&httpd.Request{})
	require.NoError(t, err)
	assert.Equal(t, "Crash counter reset successfully", resp.Body)
	assert.Equal(t, uint8(0), ctx.Crash.Count())
}
