package consts

import "time"

// Buffer sizes for various operations
const (
	// BufferSize4KB is 4 kilobytes
	BufferSize4KB = 4 * 1024
	// BufferSize4MB is 4 megabytes
	BufferSize4MB = 4 * 1024 * 1024
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout15Seconds is a 15 second timeout
	Timeout15Seconds = 15 * time.Second
)

// Websocket client connections
const (
	// WebsocketWriteWait bounds a single write to a client.
	WebsocketWriteWait = Timeout10Seconds
	// WebsocketCloseWait bounds sending the close frame.
	WebsocketCloseWait = Timeout1Second
	// WebsocketBufferSize is the upgrader's read and write buffer size.
	WebsocketBufferSize = BufferSize4KB
)

// Server lifecycle
const (
	// ReadHeaderTimeout is applied to every HTTP listener.
	ReadHeaderTimeout = Timeout10Seconds
	// ShutdownTimeout is how long a graceful shutdown may take.
	ShutdownTimeout = Timeout15Seconds
	// DebugServerShutdownTimeout bounds stopping the pprof endpoint.
	DebugServerShutdownTimeout = Timeout5Seconds
	// ToolSettleTimeout bounds how long session cleanup waits for a
	// cancelled tool call.
	ToolSettleTimeout = Timeout10Seconds
)
