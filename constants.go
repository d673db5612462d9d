package helloadd

import "time"

const (
	// DefaultListenAddress binds all interfaces on port 5000.
	DefaultListenAddress = "0.0.0.0:5000"

	// DefaultHandlerTimeout applies to handlers registered without a Timeout.
	DefaultHandlerTimeout = 5 * time.Second
)
