package httpjson

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	helloadd "github.com/xizhibei/go-hello-add"
	"github.com/xizhibei/go-hello-add/compressor"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-Id"

	// DefaultCompressMinBytes is the smallest body that gets compressed.
	DefaultCompressMinBytes = 1024

	// DefaultMaxBodyBytes is the largest request body read.
	DefaultMaxBodyBytes = 1 << 20
)

var (
	// ErrServerStarted is returned by Start when the server is already listening.
	ErrServerStarted = errors.New("[HELLO-ADD] server already started")
)

// ServerOptions configures the HTTP listener.
// Zero durations fall back to the defaults documented on each field.
type ServerOptions struct {
	Addr              string        // default helloadd.DefaultListenAddress
	ReadTimeout       time.Duration // default 5s
	ReadHeaderTimeout time.Duration // default 2s
	WriteTimeout      time.Duration // default 10s
	IdleTimeout       time.Duration // default 60s
	ShutdownTimeout   time.Duration // default 5s

	// CompressMinBytes is the smallest response body compressed when the client
	// accepts it. 0 means DefaultCompressMinBytes, negative disables compression.
	CompressMinBytes int

	// MaxBodyBytes is the largest request body read; Bind fails with
	// helloadd.ErrBodyTooLarge beyond it. 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

func (o *ServerOptions) setDefaults() {
	if o.Addr == "" {
		o.Addr = helloadd.DefaultListenAddress
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 5 * time.Second
	}
	if o.ReadHeaderTimeout == 0 {
		o.ReadHeaderTimeout = 2 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.CompressMinBytes == 0 {
		o.CompressMinBytes = DefaultCompressMinBytes
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Server serves registered routes as JSON over HTTP.
type Server struct {
	*helloadd.Server
	log        *zap.SugaredLogger
	validator  *validator.Validate
	compressor *compressor.CompressorManager
	opts       ServerOptions

	mux       *http.ServeMux
	muxMu     sync.Mutex
	installed map[string]struct{}

	http     *http.Server
	listener net.Listener
	lnMu     sync.Mutex
	serving  atomic.Bool
}

// NewServer creates an HTTP transport around a new helloadd.Server.
// Nothing listens until Start is called.
func NewServer(opts ServerOptions, validator *validator.Validate, options ...helloadd.ServerOption) *Server {
	opts.setDefaults()

	options = append([]helloadd.ServerOption{helloadd.WithErrorClasses(ErrTrailingData)}, options...)

	s := &Server{
		Server:     helloadd.NewServer(options...),
		log:        zap.S().With("module", "hello-add.httpjson"),
		validator:  validator,
		compressor: compressor.NewCompressorManager(),
		opts:       opts,
		mux:        http.NewServeMux(),
		installed:  make(map[string]struct{}),
	}

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.mux,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		ErrorLog:          zap.NewStdLog(zap.L().With(zap.String("module", "hello-add.httpjson"))),
	}

	return s
}

// Register binds hdl to route and exposes the route on the mux.
// Registering the same route again replaces the handler.
func (s *Server) Register(route helloadd.Route, hdl *helloadd.Handler) {
	s.Server.Register(route, hdl)

	pattern := route.Pattern()

	s.muxMu.Lock()
	defer s.muxMu.Unlock()
	if _, ok := s.installed[pattern]; ok {
		return
	}
	s.mux.Handle(pattern, s.serve(route))
	s.installed[pattern] = struct{}{}
}

func (s *Server) serve(route helloadd.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := NewHTTPContext(w, r, route, s)
		defer c.finish()

		c.readBody(s.opts.MaxBodyBytes)

		s.Server.Call(c)
	}
}

// ServeHTTP dispatches to the registered routes. Unknown paths get 404,
// known paths with another method get 405.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start binds the listen address and serves in a background goroutine.
func (s *Server) Start() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()

	if s.listener != nil {
		return ErrServerStarted
	}

	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.opts.Addr)
	}
	s.listener = l
	s.serving.Store(true)

	go func() {
		s.log.Infof("Listening on %s", l.Addr())
		err := s.http.Serve(l)
		s.serving.Store(false)
		if !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("Serve error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts down the listener, waiting up to ShutdownTimeout for
// in-flight requests, then stops the worker pool.
func (s *Server) Stop(ctx context.Context) error {
	if timeout := s.opts.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := s.http.Shutdown(ctx)
	s.serving.Store(false)
	_ = s.Server.Close()
	if err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}

// Close closes the listener and all connections immediately.
func (s *Server) Close() error {
	err := s.http.Close()
	s.serving.Store(false)
	_ = s.Server.Close()
	return err
}

// IsConnected reports whether the listener is serving.
func (s *Server) IsConnected() bool {
	return s.serving.Load()
}

// writeJSON encodes body and writes it with status, compressing when the
// client accepts it and the body is large enough.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorBody{Message: errors.Wrap(err, "encode response").Error()})
	}
	data = append(data, '\n')

	h := w.Header()
	h.Set("Content-Type", "application/json")

	if s.opts.CompressMinBytes > 0 {
		h.Add("Vary", "Accept-Encoding")
		if len(data) >= s.opts.CompressMinBytes {
			if enc := compressor.Negotiate(r.Header.Get("Accept-Encoding")); enc != compressor.ContentEncodingPlain {
				compressed, cerr := s.compressor.Compress(enc, data)
				if cerr == nil {
					data = compressed
					h.Set("Content-Encoding", enc.String())
				} else {
					s.log.Warnf("Compress %s response: %v", enc, cerr)
				}
			}
		}
	}

	w.WriteHeader(status)
	if _, werr := w.Write(data); werr != nil {
		return errors.Wrap(werr, "write response")
	}
	return err
}
