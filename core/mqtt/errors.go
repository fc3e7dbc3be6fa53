package mqtt

import "errors"

// ErrConnectTimeout is returned when a broker does not acknowledge the
// connection within the connect timeout.
var ErrConnectTimeout = errors.New("mqtt connect timeout")

// ErrServerNotFound is returned when no broker is configured for the
// requested id.
var ErrServerNotFound = errors.New("mqtt server not found")
