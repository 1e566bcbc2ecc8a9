package protocol

// Websocket close codes. The 4xxx values are application-defined and
// stable; clients may switch on them.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseInternalError = 1011
	CloseUnauthorized  = 4401
	CloseIdleTimeout   = 4408
	CloseTTLExceeded   = 4410
	CloseBusy          = 4503
)

// Close reasons sent alongside the codes above.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonBusy         = "server busy"
	ReasonEngineDown   = "engine unavailable"
	ReasonIdleTimeout  = "idle timeout"
	ReasonTTLExceeded  = "TTL exceeded"
	ReasonInternal     = "internal error"
	ReasonEnd          = "end of input"
	ReasonShutdown     = "server shutting down"
)
