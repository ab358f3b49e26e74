package constants

import "time"

// Web server constants
const (
	// RequestTimeout bounds a single API request. The camera websocket is exempt.
	RequestTimeout = 2 * time.Minute

	// ServerReadTimeout is the maximum duration for reading a request
	ServerReadTimeout = 30 * time.Second

	// ServerWriteTimeout is the maximum duration before timing out a response write
	ServerWriteTimeout = 5 * time.Minute

	// ServerIdleTimeout is how long keep-alive connections stay open
	ServerIdleTimeout = 60 * time.Second

	// ShutdownTimeout bounds the graceful shutdown of the server
	ShutdownTimeout = 10 * time.Second
)

// Capture constants
const (
	// CaptureSettle is how long a snapshot file must stay unchanged before it is read
	CaptureSettle = 300 * time.Millisecond
)
