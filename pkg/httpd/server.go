// Package httpd is the boundary with the wire-level HTTP machinery: it owns
// the listening socket, parses one request per Poll call, dispatches to a
// registered handler, and writes the response. One request is serviced at a
// time, to completion, on the caller's goroutine.
package httpd

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/ulfmagnetics/trix-server/pkg/logger"
)

// AuthHeader carries the shared secret when authentication is enabled
const AuthHeader = "X-Trix-API-Key"

// maxBodySize bounds request bodies; anything larger than a full-size
// uncompressed frame is not a legitimate upload
const maxBodySize = 8 << 20

// connTimeout bounds how long a single request may occupy the service loop
const connTimeout = 30 * time.Second

// Request is one parsed HTTP request as seen by handlers
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is what a handler produces. ContentType defaults to text/plain.
type Response struct {
	Status      int
	Body        string
	ContentType string
}

// HandlerFunc services one request. A non-nil error is reported to the
// Poll caller as a failed service cycle after the error response is written;
// client-input problems should instead set a 4xx status and return nil.
type HandlerFunc func(*Request) (Response, error)

type route struct {
	method  string
	path    string
	handler HandlerFunc
}

// Server accepts and dispatches one request per Poll call
type Server struct {
	addr   string
	apiKey string
	routes []route
	ln     net.Listener
	log    zerolog.Logger
}

// New creates a server. An empty apiKey disables authentication.
func New(addr, apiKey string) *Server {
	return &Server{
		addr:   addr,
		apiKey: apiKey,
		log:    logger.With("httpd"),
	}
}

// Handle registers a handler for a method and path
func (s *Server) Handle(method, path string, h HandlerFunc) {
	s.routes = append(s.routes, route{method: method, path: path, handler: h})
}

// Start opens the listening socket
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpd: listen on %s failed: %w", s.addr, err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the bound listener address
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Close shuts the listening socket
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

// Restart tears the listening socket down and brings it back up. Used by
// the supervisor's recovery path to reinitialize the network-facing state.
func (s *Server) Restart() error {
	s.Close()
	return s.Start()
}

// Poll blocks until one request arrives, services it to completion, and
// returns. The returned error is the cycle outcome: nil for success or a
// client-side problem, non-nil when the handler or transport failed.
func (s *Server) Poll() error {
	if s.ln == nil {
		return fmt.Errorf("httpd: server is not listening: %w", net.ErrClosed)
	}

	conn, err := s.ln.Accept()
	if err != nil {
		return fmt.Errorf("httpd: accept failed: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(connTimeout))

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		// Unparseable request: respond and move on, not a cycle failure
		s.writeResponse(conn, Response{Status: http.StatusBadRequest, Body: "Bad request"})
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	req.Body.Close()
	if err != nil {
		s.writeResponse(conn, Response{Status: http.StatusBadRequest, Body: "Failed to read request body"})
		return nil
	}

	resp, cycleErr := s.dispatch(&Request{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
		Header: req.Header,
		Body:   body,
	})
	s.writeResponse(conn, resp)
	return cycleErr
}

func (s *Server) dispatch(req *Request) (Response, error) {
	s.log.Debug().Str("method", req.Method).Str("path", req.Path).Msg("request")

	if !s.authorized(req) {
		s.log.Warn().Str("path", req.Path).Msg("authentication failed")
		return Response{Status: http.StatusUnauthorized, Body: "Unauthorized"}, nil
	}

	pathKnown := false
	for _, rt := range s.routes {
		if rt.path != req.Path {
			continue
		}
		pathKnown = true
		if rt.method != req.Method {
			continue
		}

		resp, err := rt.handler(req)
		if err != nil {
			s.log.Error().Err(err).Str("path", req.Path).Msg("handler failed")
			if resp.Status == 0 {
				resp = Response{Status: http.StatusInternalServerError, Body: err.Error()}
			}
			return resp, err
		}
		if resp.Status == 0 {
			resp.Status = http.StatusOK
		}
		return resp, nil
	}

	if pathKnown {
		return Response{Status: http.StatusMethodNotAllowed, Body: "Method not allowed"}, nil
	}
	return Response{Status: http.StatusNotFound, Body: "Not found"}, nil
}

// authorized checks the shared-secret header before any handler logic runs
func (s *Server) authorized(req *Request) bool {
	if s.apiKey == "" {
		return true
	}
	provided := req.Header.Get(AuthHeader)
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) == 1
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	if resp.ContentType == "" {
		resp.ContentType = "text/plain; charset=utf-8"
	}

	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", resp.Status, http.StatusText(resp.Status))
	fmt.Fprintf(w, "Content-Type: %s\r\n", resp.ContentType)
	fmt.Fprintf(w, "Content-Length: %d\r\n", len(resp.Body))
	fmt.Fprintf(w, "Connection: close\r\n\r\n")
	w.WriteString(resp.Body)
	w.Flush()
}
