package ctxkey

const (
	// RequestId is a per-request unique identifier used for logging and the
	// response header. Set in middleware/request-id.
	RequestId = "X-Mediadex-Request-Id"

	// PrincipalId carries the acting principal through handler context when
	// a request originates from the chat platform surface.
	PrincipalId = "principal_id"

	// CorrelationId links a user-visible error message to its log entries.
	CorrelationId = "correlation_id"
)
