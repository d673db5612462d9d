package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	helloadd "github.com/xizhibei/go-hello-add"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	// ErrTrailingData is returned by Bind when the body holds more than one JSON value.
	ErrTrailingData = errors.New("[HELLO-ADD] unexpected data after JSON value")
)

// ErrorBody is the JSON payload of every error response.
type ErrorBody struct {
	Message string `json:"message"`
}

// HTTPContext is the helloadd.Context of a single HTTP request.
type HTTPContext struct {
	helloadd.BaseContext
	w     http.ResponseWriter
	r     *http.Request
	route helloadd.Route
	id    string
	svc   *Server
	ctx   context.Context

	body    []byte
	bodyErr error

	// wMu guards w; done is set once the net/http handler has returned.
	wMu  sync.Mutex
	done bool
}

// NewHTTPContext creates the context for r. The trace context is extracted from
// the request headers; the request id is taken from X-Request-Id or generated.
func NewHTTPContext(w http.ResponseWriter, r *http.Request, route helloadd.Route, svc *Server) *HTTPContext {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	c := &HTTPContext{
		w:     w,
		r:     r,
		route: route,
		id:    id,
		svc:   svc,
		ctx:   ctx,
	}
	c.BaseContext.BaseReply = c.reply
	return c
}

// ID returns the request id.
func (c *HTTPContext) ID() *helloadd.ID {
	return &helloadd.ID{Str: c.id}
}

// Route returns the route the request matched.
func (c *HTTPContext) Route() helloadd.Route {
	return c.route
}

// Ctx returns the request context carrying the remote span, if any.
func (c *HTTPContext) Ctx() context.Context {
	return c.ctx
}

// ReplyDesc returns the route and request id, for logs.
func (c *HTTPContext) ReplyDesc() string {
	return c.route.String() + " " + c.id
}

// PrometheusLabels returns the method and path labels of the request.
func (c *HTTPContext) PrometheusLabels() prometheus.Labels {
	return prometheus.Labels{
		"method": c.route.Method,
		"path":   c.route.Path,
	}
}

// readBody reads up to limit bytes of the body on the net/http goroutine,
// so handlers never block a worker on the client.
func (c *HTTPContext) readBody(limit int64) {
	if c.r.Body == nil {
		return
	}
	c.body, c.bodyErr = io.ReadAll(http.MaxBytesReader(c.w, c.r.Body, limit))
}

// Bind decodes the JSON body into request and validates it.
// An empty body, or a literal null, leaves request untouched. Unknown fields
// are ignored. The request content type is not checked.
func (c *HTTPContext) Bind(request interface{}) error {
	if c.bodyErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(c.bodyErr, &tooLarge) {
			return errors.Wrapf(helloadd.ErrBodyTooLarge, "limit %d bytes", tooLarge.Limit)
		}
		return errors.Wrap(c.bodyErr, "read body")
	}

	if len(bytes.TrimSpace(c.body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(c.body))
		if err := dec.Decode(request); err != nil {
			return errors.Wrap(err, "decode json")
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return ErrTrailingData
		}
	}

	return c.validate(request)
}

func (c *HTTPContext) validate(request interface{}) error {
	if c.svc.validator == nil {
		return nil
	}

	err := c.svc.validator.Struct(request)
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Not a struct; nothing to validate.
		return nil
	}
	return err
}

func (c *HTTPContext) reply(res *helloadd.Response) {
	c.wMu.Lock()
	defer c.wMu.Unlock()

	if c.done {
		c.svc.log.Warnf("Reply to %s after the request finished, dropped", c.ReplyDesc())
		return
	}

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}

	var body interface{} = res.Result
	if res.Error != nil {
		body = ErrorBody{Message: res.Error.Error()}
	}

	c.w.Header().Set(RequestIDHeader, c.id)
	if err := c.svc.writeJSON(c.w, c.r, status, body); err != nil {
		c.svc.log.Errorf("Reply to %s: %v", c.ReplyDesc(), err)
	}
}

// finish marks the request as complete; later replies are dropped.
func (c *HTTPContext) finish() {
	c.wMu.Lock()
	defer c.wMu.Unlock()
	c.done = true
}
