package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// ReasonSessionCreate marks a failed create-session request against the
	// orchestration service. This is the only reason that propagates out of
	// StartCall.
	ReasonSessionCreate ReasonCode = "session_create"

	ReasonTransportDial   ReasonCode = "transport_dial"
	ReasonTransportSocket ReasonCode = "transport_socket"
	ReasonTransportSend   ReasonCode = "transport_send"
	ReasonTransportClosed ReasonCode = "transport_closed"

	ReasonEnvelopeDecode ReasonCode = "envelope_decode"
)
