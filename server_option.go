package helloadd

import "time"

type serverOptions struct {
	logResponse    bool
	name           string
	workerNum      int
	handlerTimeout time.Duration
	errorClasses   []error
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(o *serverOptions)

// WithServerName sets the name reported in the "name" metrics label.
// A random UUID is used when no name is given.
func WithServerName(name string) ServerOption {
	return func(o *serverOptions) {
		o.name = name
	}
}

// WithLogResponse enables or disables logging of every response.
func WithLogResponse(logResponse bool) ServerOption {
	return func(o *serverOptions) {
		o.logResponse = logResponse
	}
}

// WithWorkerNum sets the number of workers executing handlers.
// Values below 1 are ignored.
func WithWorkerNum(count int) ServerOption {
	return func(o *serverOptions) {
		if count > 0 {
			o.workerNum = count
		}
	}
}

// WithHandlerTimeout sets the timeout used for handlers registered with a zero Timeout.
func WithHandlerTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		if d > 0 {
			o.handlerTimeout = d
		}
	}
}

// WithErrorClasses adds errors used to label failed requests in metrics.
// A failed request is labeled with the message of the first class it wraps,
// so the label set stays bounded whatever the error text holds.
func WithErrorClasses(errs ...error) ServerOption {
	return func(o *serverOptions) {
		o.errorClasses = append(o.errorClasses, errs...)
	}
}
