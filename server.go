package helloadd

import (
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-hello-add/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrNoReply is returned to the client when a handler finishes without replying.
	ErrNoReply = errors.New("[HELLO-ADD] empty reply")

	// ErrTimeout is returned to the client when a handler exceeds its timeout.
	ErrTimeout = errors.New("[HELLO-ADD] timeout")

	// ErrUnhandledRoute is returned when no handler is registered for a route.
	ErrUnhandledRoute = errors.New("[HELLO-ADD] unhandled route")

	// ErrBodyTooLarge is returned by Context.Bind when the request body exceeds the transport's limit.
	ErrBodyTooLarge = errors.New("[HELLO-ADD] request body too large")
)

// Server dispatches requests to registered handlers.
// It knows nothing about the wire; transports build a Context per request and hand it to Call.
type Server struct {
	log        *zap.SugaredLogger  // Logger for server logs.
	handlerMap map[Route]*Handler  // Map of registered handlers.
	handlerMu  sync.RWMutex        // Guards handlerMap.
	telemetry  telemetry.Telemetry // Tracing and request metrics.

	cbList       []OnAfterResponseCallback // Callbacks executed after each response.
	cbMu         sync.RWMutex              // Guards cbList.
	afterResPool sync.Pool                 // Pool of after-response events.

	options    *serverOptions // Options for server configuration.
	workerPool *tunny.Pool    // Pool of worker goroutines for request processing.
	closeOnce  sync.Once
}

// NewServer creates a new Server with the provided options.
func NewServer(options ...ServerOption) *Server {
	o := serverOptions{
		name:           uuid.New().String(),
		logResponse:    false,
		workerNum:      runtime.NumCPU() * 4,
		handlerTimeout: DefaultHandlerTimeout,
		errorClasses:   []error{ErrUnhandledRoute, ErrTimeout, ErrNoReply, ErrBodyTooLarge},
	}

	for _, option := range options {
		option(&o)
	}

	server := Server{
		log:        zap.S().With("module", "hello-add.server"),
		handlerMap: make(map[Route]*Handler),
		telemetry:  telemetry.Disabled(),
		options:    &o,

		afterResPool: sync.Pool{
			New: func() interface{} {
				return new(AfterResponseEvent)
			},
		},
		workerPool: tunny.NewCallback(o.workerNum),
	}

	return &server
}

// Name returns the server name.
func (s *Server) Name() string {
	return s.options.name
}

// SetTelemetry replaces the telemetry used for spans and request metrics.
func (s *Server) SetTelemetry(tel telemetry.Telemetry) {
	if tel == nil {
		return
	}
	s.telemetry = tel
}

// Register binds hdl to route. An existing handler for the route is overridden.
func (s *Server) Register(route Route, hdl *Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	if _, ok := s.handlerMap[route]; ok {
		s.log.Warnf("Route %s already registered, will override", route)
	}

	s.handlerMap[route] = hdl
	s.log.Debugf("Route %s registered", route)
}

// Routes returns the registered routes ordered by path, then method.
func (s *Server) Routes() []Route {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()

	routes := make([]Route, 0, len(s.handlerMap))
	for r := range s.handlerMap {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

func (s *Server) handler(route Route) (*Handler, bool) {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	hdl, ok := s.handlerMap[route]
	return hdl, ok
}

// Call runs the handler registered for c.Route() on the worker pool and makes sure
// exactly one reply is sent: a 404 for unknown routes, a 408 on timeout, a 500 on panic
// or when the handler returns without replying.
func (s *Server) Call(c Context) {
	start := time.Now()
	route := c.Route()

	ctx, span := s.telemetry.StartSpan(c.Ctx(), "HELLOADD.Server.Call "+route.String(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", route.Method),
			attribute.String("http.route", route.Path),
		),
	)
	defer span.End()

	defer func() {
		duration := time.Since(start).Round(time.Millisecond)
		res := c.GetResponse()

		status := 0
		var resErr error
		if res != nil {
			status = res.Status
			resErr = res.Error
		}

		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if resErr != nil {
			span.RecordError(resErr)
			span.SetStatus(codes.Error, resErr.Error())
		}
		errClass := ""
		if resErr != nil {
			errClass = s.ErrorClass(resErr, status)
		}
		s.telemetry.RecordRequest(ctx, duration, route.String(), strconv.Itoa(status), errClass)

		evt := s.afterResPool.Get().(*AfterResponseEvent)
		evt.Labels = c.PrometheusLabels()
		evt.Duration = duration
		evt.Res = res

		if s.options.logResponse {
			s.log.Infof("Response to %s [%d] (%v)", c.ReplyDesc(), status, duration)
		}

		s.emitAfterResponse(evt)
	}()

	hdl, ok := s.handler(route)
	if !ok {
		c.ReplyError(http.StatusNotFound, errors.Wrapf(ErrUnhandledRoute, "%s", route))
		return
	}

	timeout := hdl.Timeout
	if timeout <= 0 {
		timeout = s.options.handlerTimeout
	}

	_, err := s.workerPool.ProcessTimed(func() {
		defer func() {
			if i := recover(); i != nil {
				err := errors.Newf("panic in route %s %v", route, i)
				s.log.Desugar().WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)).Sugar().Error(err)
				c.ReplyError(http.StatusInternalServerError, err)
			}
		}()

		hdl.Method(c)

		// If the send is successful, it means that the handler did not reply.
		if c.ReplyError(http.StatusInternalServerError, ErrNoReply) {
			s.log.Warnf("Route %s no reply", route)
		}
	}, timeout)

	if err != nil {
		if errors.Is(err, tunny.ErrJobTimedOut) {
			c.ReplyError(http.StatusRequestTimeout, ErrTimeout)
			return
		}
		c.ReplyError(http.StatusInternalServerError, err)
	}
}

// Close stops the worker pool. Calls made afterwards reply 500.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(s.workerPool.Close)
	return nil
}

// AfterResponseEvent describes a finished request.
// Events are pooled: callbacks must not keep a reference after returning.
type AfterResponseEvent struct {
	Labels   prometheus.Labels
	Duration time.Duration
	Res      *Response
}

// OnAfterResponseCallback is called after every response with the finished request.
type OnAfterResponseCallback func(e *AfterResponseEvent)

// OnAfterResponse registers a callback executed after each response is sent.
func (s *Server) OnAfterResponse(cb OnAfterResponseCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.cbList = append(s.cbList, cb)
}

func (s *Server) emitAfterResponse(e *AfterResponseEvent) {
	s.cbMu.RLock()
	for _, cb := range s.cbList {
		cb(e)
	}
	s.cbMu.RUnlock()

	e.Labels = nil
	e.Res = nil
	s.afterResPool.Put(e)
}

// ErrorClass returns a bounded label for err: the message of the first error class
// err wraps, or the text of status when it wraps none of them.
func (s *Server) ErrorClass(err error, status int) string {
	for _, class := range s.options.errorClasses {
		if errors.Is(err, class) {
			return class.Error()
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unknown"
}

// RegisterMetrics records every response into responseTime and counts errors in errorCount.
// Both vectors receive the context's Prometheus labels plus "name" and "status";
// errorCount additionally gets "message", the ErrorClass of the error.
func (s *Server) RegisterMetrics(responseTime *prometheus.HistogramVec, errorCount *prometheus.GaugeVec) {
	s.OnAfterResponse(func(e *AfterResponseEvent) {
		status := "0"
		if e.Res != nil {
			status = strconv.FormatInt(int64(e.Res.Status), 10)
		}

		labels := prometheus.Labels{}
		for k, v := range e.Labels {
			labels[k] = v
		}
		labels["name"] = s.options.name
		labels["status"] = status

		if responseTime != nil {
			responseTime.
				With(labels).
				Observe(e.Duration.Seconds())
		}

		if e.Res != nil && e.Res.Error != nil && errorCount != nil {
			labels["message"] = s.ErrorClass(e.Res.Error, e.Res.Status)
			errorCount.
				With(labels).
				Inc()
		}
	})
}
