package relay

// Client -> server message types.
const (
	TypeAudio = "audio"
	TypeImage = "image"
	TypeText  = "text"
	TypeEnd   = "end"
)

// Server -> client message types. TypeAudio and TypeText are shared.
const (
	TypeError            = "error"
	TypeFunctionCall     = "function_call"
	TypeFunctionResponse = "function_response"
	TypeInterrupted      = "interrupted"
	TypeTurnComplete     = "turn_complete"
)

// Error types carried in ErrorData.ErrorType.
const (
	ErrorTypeQuotaExceeded    = "quota_exceeded"
	ErrorTypeConnectionClosed = "connection_closed"
	ErrorTypeTimeout          = "timeout"
	ErrorTypeGeneral          = "general"
)

// ClientMessage is a message from the browser. Data is base64 for audio
// and image, raw text otherwise.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ServerMessage is a typed message to the browser. Data is always present,
// a nil result goes out as null.
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SignalMessage is a typed message without payload, such as turn_complete.
type SignalMessage struct {
	Type string `json:"type"`
}

// ReadyMessage is sent once the upstream session is established.
type ReadyMessage struct {
	Ready bool `json:"ready"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Message   string `json:"message"`
	Action    string `json:"action"`
	ErrorType string `json:"error_type"`
}

// FunctionCallData is the payload of a function_call message.
type FunctionCallData struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// InterruptedData is the payload of an interrupted message.
type InterruptedData struct {
	Message string `json:"message"`
}

// User-facing texts.
const (
	quotaMessage       = "Quota exceeded."
	quotaAction        = "Please wait a moment and try again in a few minutes."
	quotaChatText      = "⚠️ Quota exceeded. Please wait a moment and try again in a few minutes."
	closedMessage      = "Connection closed unexpectedly"
	closedAction       = "Reconnecting..."
	timeoutMessage     = "Session timed out due to inactivity."
	timeoutAction      = "You can start a new conversation."
	generalMessage     = "An unexpected error occurred."
	generalAction      = "Please try again."
	interruptedMessage = "Response interrupted by user input"
)
