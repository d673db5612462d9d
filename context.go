package helloadd

//go:generate mockgen -source=context.go -destination=mock/mock_context.go

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// ID identifies a single request.
type ID struct {
	Num uint64 // Num is the numeric value of the identifier.
	Str string // Str is the string value of the identifier.
}

// String returns Str when set, the decimal form of Num otherwise.
func (id *ID) String() string {
	if id.Str != "" {
		return id.Str
	}
	return strconv.FormatUint(id.Num, 10)
}

// Route is a (method, path) pair used for dispatch matching.
type Route struct {
	Method string
	Path   string
}

// String returns the route in "METHOD /path" form.
func (r Route) String() string {
	return r.Method + " " + r.Path
}

// Pattern returns the net/http ServeMux pattern matching exactly this route.
// A trailing slash would otherwise match the whole subtree, so it gets pinned with {$}.
func (r Route) Pattern() string {
	p := r.Path
	if p == "" {
		p = "/"
	}
	if strings.HasSuffix(p, "/") {
		p += "{$}"
	}
	return r.Method + " " + p
}

// Get is shorthand for a GET route.
func Get(path string) Route {
	return Route{Method: http.MethodGet, Path: path}
}

// Post is shorthand for a POST route.
func Post(path string) Route {
	return Route{Method: http.MethodPost, Path: path}
}

// Response represents a response message.
// Result holds the response data.
// Error holds any error that occurred during the request.
// Status holds the HTTP status code of the response.
type Response struct {
	Result interface{}
	Error  error
	Status int
}

// Context represents the per-request context a handler works with.
type Context interface {
	// ID returns the unique identifier of the request.
	ID() *ID

	// Route returns the route the request was dispatched on.
	Route() Route

	// Ctx returns the underlying context.Context.
	Ctx() context.Context

	// ReplyDesc returns a short description of the reply target, used in logs.
	ReplyDesc() string

	// Bind decodes the request payload into request.
	Bind(request interface{}) error

	// Reply sends a response message.
	// It returns true if the response was sent, false if a reply was already sent.
	Reply(res *Response) bool

	// ReplyOK sends a successful response message with the given data.
	ReplyOK(data interface{}) bool

	// ReplyError sends an error response message with the given status and error.
	ReplyError(status int, err error) bool

	// GetResponse returns the response that was sent, nil if none.
	GetResponse() *Response

	// PrometheusLabels returns the Prometheus labels associated with the request.
	PrometheusLabels() prometheus.Labels
}

// BaseContext implements the reply bookkeeping shared by transport contexts.
// Transports set BaseReply to the function that actually writes the response.
type BaseContext struct {
	res       *Response           // res is the response object.
	resMu     sync.Mutex          // resMu guards res.
	replyed   atomic.Bool         // replyed is set once the first reply goes out.
	BaseReply func(res *Response) // BaseReply writes the response to the transport.
}

// Reply records res and hands it to BaseReply.
// Only the first call has any effect; later calls return false.
func (c *BaseContext) Reply(res *Response) bool {
	if !c.replyed.CompareAndSwap(false, true) {
		return false
	}

	c.setResponse(res)

	if c.BaseReply != nil {
		c.BaseReply(res)
	}

	return true
}

// ReplyOK sends a 200 response with the given data.
func (c *BaseContext) ReplyOK(data interface{}) bool {
	return c.Reply(&Response{
		Status: http.StatusOK,
		Result: data,
	})
}

// ReplyError sends an error response with the specified status code.
func (c *BaseContext) ReplyError(status int, err error) bool {
	return c.Reply(&Response{
		Status: status,
		Error:  err,
	})
}

// Replied reports whether a reply has been sent.
func (c *BaseContext) Replied() bool {
	return c.replyed.Load()
}

func (c *BaseContext) setResponse(res *Response) {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	c.res = res
}

// GetResponse returns the response associated with the context.
func (c *BaseContext) GetResponse() *Response {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	return c.res
}

// Handler represents a route handler.
// Method is the function to be executed when handling the request.
// Timeout is the maximum duration allowed for the request to complete;
// zero means the server default.
type Handler struct {
	Method  func(c Context)
	Timeout time.Duration
}
